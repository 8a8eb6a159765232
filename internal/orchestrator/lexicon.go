package orchestrator

import (
	"strings"
	"unicode"
)

// Replies the router emits verbatim.
const (
	farewellReply    = "Goodbye! Have a great day!"
	confirmReask     = "Please respond with 'yes' to switch or 'no' to continue with the current task."
	noReplyFallback  = "I'm not sure how to help with that. Could you rephrase your request?"
	hopLimitFallback = "Sorry, I lost track of that request. Could you say it again?"
)

var (
	farewellWords = set("bye", "goodbye", "exit", "quit", "thanks")
	yesWords      = set("yes", "y", "yeah", "yep", "sure", "ok", "okay", "switch", "pause")
	noWords       = set("no", "n", "nope", "continue", "keep")
)

// Answer is the reading of a reply to a yes/no question.
type Answer int

const (
	AnswerUnclear Answer = iota
	AnswerYes
	AnswerNo
)

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// tokens lowercases text and splits it into words.
func tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// IsFarewell reports whether an utterance ends the conversation. Words are
// matched whole, so "bye" does not fire on "Abbey Road".
func IsFarewell(text string) bool {
	toks := tokens(text)
	for i, tok := range toks {
		if farewellWords[tok] {
			return true
		}
		if tok == "thank" && i+1 < len(toks) && toks[i+1] == "you" {
			return true
		}
	}
	return false
}

// ParseAnswer reads a yes/no reply. A reply containing both kinds of word
// is unclear.
func ParseAnswer(text string) Answer {
	var yes, no bool
	for _, tok := range tokens(text) {
		yes = yes || yesWords[tok]
		no = no || noWords[tok]
	}
	switch {
	case yes && !no:
		return AnswerYes
	case no && !yes:
		return AnswerNo
	default:
		return AnswerUnclear
	}
}
