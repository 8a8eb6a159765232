// Package executor runs the tool batches planned for the current intent.
//
// One call to Run executes at most one batch. Members of a batch have no
// dependencies among themselves and run concurrently; batches run strictly in
// order. A batch that has any failing member is not advanced past, so the
// next pass re-invokes the whole batch.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/erentorlak/todv2/internal/catalog"
	"github.com/erentorlak/todv2/internal/tools"
	"github.com/erentorlak/todv2/pkg/models"
)

var (
	// ErrParameterValidation indicates a tool was about to run without a required parameter.
	ErrParameterValidation = errors.New("parameter validation failed")
	// ErrToolExecution indicates a tool raised, panicked or returned an error payload.
	ErrToolExecution = errors.New("tool execution failed")
)

// Invoker dispatches a tool call by name. *tools.Toolbox implements it.
type Invoker interface {
	Invoke(ctx context.Context, name string, args tools.Args) (map[string]any, error)
}

var _ Invoker = (*tools.Toolbox)(nil)

// Report describes one Run.
type Report struct {
	// Index is the batch cursor the run started at.
	Index int
	Batch []string
	// Results holds the outcome of every member that was attempted.
	Results  map[string]models.ToolResult
	Failed   []string
	Advanced bool
	// Done is true once the cursor is past the last batch.
	Done bool
}

// Executor validates and invokes batch members.
type Executor struct {
	catalog     catalog.Describer
	invoker     Invoker
	maxParallel int
}

// New creates an executor. maxParallel <= 0 means no limit.
func New(d catalog.Describer, invoker Invoker, maxParallel int) *Executor {
	return &Executor{catalog: d, invoker: invoker, maxParallel: maxParallel}
}

// Run executes the batch at the session's cursor and merges the outcome
// into the session.
func (e *Executor) Run(ctx context.Context, s *models.Session) Report {
	dc := &s.Context
	rep := Report{Index: dc.CurrentBatchIndex, Results: make(map[string]models.ToolResult)}

	if dc.CurrentBatchIndex >= len(dc.ExecutionOrder) {
		dc.AllToolsCompleted = true
		rep.Done = true
		return rep
	}
	rep.Batch = append([]string(nil), dc.ExecutionOrder[dc.CurrentBatchIndex]...)

	optional := e.optionalParams(s.CurrentIntent)

	type call struct {
		name string
		args tools.Args
	}
	var calls []call
	for _, name := range rep.Batch {
		args, err := e.buildArgs(name, s.ExtractedParameters, optional)
		if err != nil {
			log.Printf("[executor] %s: %v", name, err)
			rep.Results[name] = models.ToolResult{Success: false, Error: err.Error()}
			continue
		}
		calls = append(calls, call{name: name, args: args})
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	if e.maxParallel > 0 {
		g.SetLimit(e.maxParallel)
	}
	for _, c := range calls {
		g.Go(func() error {
			res := e.invoke(gctx, c.name, c.args)
			mu.Lock()
			rep.Results[c.name] = res
			mu.Unlock()
			// Failures are recorded, never returned, so siblings keep running.
			return nil
		})
	}
	_ = g.Wait()

	for _, name := range rep.Batch {
		if !rep.Results[name].Success {
			rep.Failed = append(rep.Failed, name)
		}
	}

	if s.ToolResults == nil {
		s.ToolResults = make(map[string]models.ToolResult)
	}
	for name, res := range rep.Results {
		s.ToolResults[name] = res
	}
	dc.ResultsComposed = false

	if len(rep.Failed) == 0 {
		for _, name := range rep.Batch {
			if !contains(dc.CompletedTools, name) {
				dc.CompletedTools = append(dc.CompletedTools, name)
			}
		}
		dc.CurrentBatchIndex++
		rep.Advanced = true
		if dc.CurrentBatchIndex >= len(dc.ExecutionOrder) {
			dc.AllToolsCompleted = true
			rep.Done = true
		}
		log.Printf("[executor] batch %d %v completed", rep.Index, rep.Batch)
	} else {
		log.Printf("[executor] batch %d failed: %s", rep.Index, strings.Join(rep.Failed, ", "))
	}
	return rep
}

// optionalParams returns the parameters the intent declares as not required.
func (e *Executor) optionalParams(intent string) map[string]bool {
	out := make(map[string]bool)
	spec, err := e.catalog.DescribeIntent(intent)
	if err != nil {
		return out
	}
	for _, p := range spec.Parameters {
		if !p.Required {
			out[p.Name] = true
		}
	}
	return out
}

// buildArgs maps every declared parameter of a tool to a value or Absent.
func (e *Executor) buildArgs(name string, params map[string]string, optional map[string]bool) (tools.Args, error) {
	spec, err := e.catalog.DescribeTool(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParameterValidation, err)
	}
	args := make(tools.Args, len(spec.Parameters))
	var missing []string
	for _, p := range spec.Parameters {
		v := strings.TrimSpace(params[p])
		if v == "" {
			if !optional[p] {
				missing = append(missing, p)
			}
			args[p] = tools.Absent
			continue
		}
		args[p] = tools.Some(v)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s missing %s", ErrParameterValidation, name, strings.Join(missing, ", "))
	}
	return args, nil
}

// invoke runs one tool, converting errors, panics and error payloads into a
// failed result.
func (e *Executor) invoke(ctx context.Context, name string, args tools.Args) (res models.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[executor] %s panicked: %v\n%s", name, r, debug.Stack())
			res = models.ToolResult{Success: false, Error: fmt.Sprintf("%v: %s panicked: %v", ErrToolExecution, name, r)}
		}
	}()

	data, err := e.invoker.Invoke(ctx, name, args)
	if err != nil {
		log.Printf("[executor] %s: %v", name, err)
		return models.ToolResult{Success: false, Error: fmt.Errorf("%w: %s: %w", ErrToolExecution, name, err).Error()}
	}
	if data == nil {
		data = map[string]any{}
	}
	if status, _ := data["status"].(string); status == "error" {
		msg, _ := data["message"].(string)
		if msg == "" {
			msg = "tool reported an error"
		}
		return models.ToolResult{Success: false, Error: fmt.Sprintf("%v: %s: %s", ErrToolExecution, name, msg), Data: data}
	}
	return models.ToolResult{Success: true, Data: data}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
