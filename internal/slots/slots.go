// Package slots collects intent parameters across turns.
//
// The filler asks the extraction capability for the parameters still
// missing, keeps only values for those parameters that pass their type
// check, and decides whether to ask the user again. A parameter's retry
// count grows only on turns where nothing new was learned, so a user who
// is making progress is never pushed toward the retry ceiling.
package slots

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/erentorlak/todv2/internal/capability"
	"github.com/erentorlak/todv2/internal/catalog"
)

// DefaultMaxRetries is the clarification ceiling per parameter.
const DefaultMaxRetries = 5

var (
	// ErrExtractionFailed wraps a collaborator failure; the turn proceeds as if nothing was extracted.
	ErrExtractionFailed = errors.New("parameter extraction failed")
	// ErrRetryLimitExceeded indicates a parameter could not be collected within the retry ceiling.
	ErrRetryLimitExceeded = errors.New("retry limit exceeded")
)

// Outcome is the result class of one fill attempt.
type Outcome int

const (
	// Complete means nothing was missing on entry.
	Complete Outcome = iota
	// Progressed means parameters were extracted, or none are missing any more.
	Progressed
	// NeedsClarification means the user must be asked again.
	NeedsClarification
	// Failed means a parameter hit the retry ceiling.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Complete:
		return "complete"
	case Progressed:
		return "progressed"
	case NeedsClarification:
		return "needs-clarification"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Request is the input of one fill attempt.
type Request struct {
	Intent      catalog.IntentSpec
	Required    []string
	Current     map[string]string
	Utterance   string
	RetryCounts map[string]int
	// Rephrase asks again without counting the turn against the ceiling,
	// for turns whose utterance was never meant as an answer.
	Rephrase bool
}

// Result is the output of one fill attempt. Parameters and RetryCounts are
// fresh maps; the request maps are never modified.
type Result struct {
	Outcome     Outcome
	Parameters  map[string]string
	RetryCounts map[string]int
	Missing     []string
	// Extracted holds the values accepted this turn.
	Extracted map[string]string
	// Message is the clarification question or failure notice.
	Message string
	// FailedParameter is set when Outcome is Failed.
	FailedParameter string
	// Err is ErrRetryLimitExceeded on failure, or an ErrExtractionFailed
	// wrapper when the collaborator errored.
	Err error
}

// Filler runs the slot-filling policy.
type Filler struct {
	extractor  capability.Extractor
	maxRetries int
}

// New creates a filler. maxRetries <= 0 selects DefaultMaxRetries.
func New(extractor capability.Extractor, maxRetries int) *Filler {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Filler{extractor: extractor, maxRetries: maxRetries}
}

// MaxRetries returns the configured ceiling.
func (f *Filler) MaxRetries() int {
	return f.maxRetries
}

// Fill runs one slot-filling step.
func (f *Filler) Fill(ctx context.Context, req Request) Result {
	res := Result{
		Parameters:  copyStrings(req.Current),
		RetryCounts: copyCounts(req.RetryCounts),
		Extracted:   make(map[string]string),
	}

	missing := Missing(req.Required, res.Parameters)
	if len(missing) == 0 {
		res.Outcome = Complete
		return res
	}

	extracted, err := f.extractor.Extract(ctx, req.Utterance, req.Intent, missing)
	if err != nil {
		res.Err = fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		log.Printf("[slots] %s: %v", req.Intent.Name, res.Err)
		extracted = nil
	}

	wanted := make(map[string]bool, len(missing))
	for _, name := range missing {
		wanted[name] = true
	}
	for name, value := range extracted {
		if !wanted[name] {
			continue
		}
		value = strings.TrimSpace(value)
		typ := catalog.TypeString
		if p, ok := req.Intent.Param(name); ok {
			typ = p.Type
		}
		if !catalog.ValidateValue(typ, value) {
			log.Printf("[slots] %s: discarding %s=%q, not a valid %s", req.Intent.Name, name, value, typ)
			continue
		}
		res.Parameters[name] = value
		res.Extracted[name] = value
	}

	res.Missing = Missing(req.Required, res.Parameters)
	if len(res.Missing) == 0 || len(res.Missing) < len(missing) {
		res.Outcome = Progressed
		return res
	}

	// No progress this turn.
	if req.Rephrase {
		res.Outcome = NeedsClarification
		res.Message = Clarify(questions(req.Intent, res.Missing))
		return res
	}
	for _, name := range res.Missing {
		if res.RetryCounts[name] >= f.maxRetries {
			res.Outcome = Failed
			res.FailedParameter = name
			res.Err = fmt.Errorf("%w: %s after %d attempts", ErrRetryLimitExceeded, name, res.RetryCounts[name])
			res.Message = FailureMessage(name)
			return res
		}
	}

	for _, name := range res.Missing {
		res.RetryCounts[name]++
	}
	res.Outcome = NeedsClarification
	res.Message = Clarify(questions(req.Intent, res.Missing))
	return res
}

func questions(intent catalog.IntentSpec, names []string) []string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = intent.Question(name)
	}
	return out
}

// Missing returns the names in required with no non-blank value in params.
func Missing(required []string, params map[string]string) []string {
	var missing []string
	for _, name := range required {
		if strings.TrimSpace(params[name]) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// Clarify phrases one question covering every missing parameter.
func Clarify(questions []string) string {
	switch len(questions) {
	case 0:
		return "I need some additional information to help you. Could you please provide more details?"
	case 1:
		return "I need one more detail: " + questions[0]
	case 2:
		return fmt.Sprintf("I need two more details: %s and %s", questions[0], questions[1])
	default:
		last := len(questions) - 1
		return fmt.Sprintf("I need a few more details: %s, and %s", strings.Join(questions[:last], ", "), questions[last])
	}
}

// FailureMessage is the terminal notice for a parameter that hit the ceiling.
func FailureMessage(param string) string {
	return fmt.Sprintf("I've tried several times to get the %s from you, but I'm still not clear on what you need. "+
		"Could you please start over with a complete request? For example: 'Book a flight from New York to Paris on December 25th'", param)
}

func copyStrings(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
