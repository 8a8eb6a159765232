package capability

import (
	"context"
	"regexp"
	"strings"

	"github.com/erentorlak/todv2/internal/catalog"
)

// PatternExtractor is a rule-based Extractor for running without a model.
// It understands the common travel phrasings ("from X to Y on Z", "for N
// days", "hotel in X") and, when exactly one slot is missing, accepts a
// short bare answer that validates against the slot's type.
type PatternExtractor struct{}

var (
	placeStop  = `(?:\s+(?:to|on|for|from|in|at|starting|leaving)\b|[,.!?]|$)`
	fromRe     = regexp.MustCompile(`\b[Ff]rom\s+([A-Z][A-Za-z .'-]*?)` + placeStop)
	toRe       = regexp.MustCompile(`\b[Tt]o\s+([A-Z][A-Za-z .'-]*?)` + placeStop)
	inRe       = regexp.MustCompile(`\b(?:[Ii]n|[Aa]t)\s+([A-Z][A-Za-z .'-]*?)` + placeStop)
	daysRe     = regexp.MustCompile(`(?i)\b(\d{1,3})\s*(?:days?|nights?)\b`)
	isoDateRe  = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	slashRe    = regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`)
	monthDayRe = regexp.MustCompile(`(?i)\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?\b`)
	dayMonthRe = regexp.MustCompile(`(?i)\b\d{1,2}(?:st|nd|rd|th)?\s+(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\b`)
)

// Extract implements Extractor.
func (PatternExtractor) Extract(_ context.Context, utterance string, intent catalog.IntentSpec, missing []string) (map[string]string, error) {
	out := make(map[string]string)
	text := strings.TrimSpace(utterance)

	for _, name := range missing {
		p, ok := intent.Param(name)
		if !ok {
			continue
		}
		if v := matchParam(name, p.Type, text); v != "" {
			out[name] = v
		}
	}

	if len(missing) == 1 && len(out) == 0 {
		p, _ := intent.Param(missing[0])
		answer := strings.Trim(text, " .!?")
		if len(strings.Fields(answer)) <= 3 && catalog.ValidateValue(p.Type, answer) {
			out[missing[0]] = answer
		}
	}
	return out, nil
}

func matchParam(name string, typ catalog.ParamType, text string) string {
	switch {
	case typ == catalog.TypeDate:
		for _, re := range []*regexp.Regexp{isoDateRe, slashRe, monthDayRe, dayMonthRe} {
			if m := re.FindString(text); m != "" {
				return m
			}
		}
	case typ == catalog.TypeInt:
		if m := daysRe.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	case name == "origin":
		return firstGroup(fromRe, text)
	case name == "destination":
		if v := firstGroup(toRe, text); v != "" {
			return v
		}
		return firstGroup(inRe, text)
	}
	return ""
}

func firstGroup(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// NameClassifier is a rule-based Classifier for running without a model.
// It scores each intent by the utterance words that appear in the intent's
// name, so "book a hotel" picks book_hotel over book_flight. Ties mean no
// intent.
type NameClassifier struct{}

// Classify implements Classifier.
func (NameClassifier) Classify(_ context.Context, utterance string, intents []catalog.IntentSpec) (string, error) {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(utterance), notWordRune) {
		words[strings.TrimSuffix(w, "s")] = true
	}

	best, bestScore, tied := "", 0, false
	for _, in := range intents {
		score := 0
		for _, part := range strings.Split(strings.ToLower(in.Name), "_") {
			if part != "" && words[part] {
				score++
			}
		}
		switch {
		case score > bestScore:
			best, bestScore, tied = in.Name, score, false
		case score == bestScore && score > 0:
			tied = true
		}
	}
	if tied {
		return "", nil
	}
	return best, nil
}

func notWordRune(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
}
