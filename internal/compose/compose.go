// Package compose writes the assistant's reply for a turn once the router
// has nothing left to ask.
package compose

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/erentorlak/todv2/internal/capability"
	"github.com/erentorlak/todv2/internal/catalog"
	"github.com/erentorlak/todv2/internal/slots"
	"github.com/erentorlak/todv2/pkg/models"
)

// Result reports what the composer did.
type Result struct {
	Kind models.ResponseKind
	Text string
	// Appended is false when the composer passed through without replying.
	Appended bool
	// Continue asks the router to run again; otherwise the turn is done.
	Continue bool
}

// Composer turns session state into an assistant message.
type Composer struct {
	catalog   catalog.Describer
	generator capability.Generator
}

// New creates a composer. A nil generator uses templates only.
func New(d catalog.Describer, g capability.Generator) *Composer {
	return &Composer{catalog: d, generator: g}
}

// Compose appends at most one assistant message to the session.
func (c *Composer) Compose(ctx context.Context, s *models.Session) Result {
	if last, ok := s.LastMessage(); ok && last.Role == models.RoleAssistant {
		return Result{Kind: s.Context.LastResponseKind}
	}

	if s.CurrentIntent == "" {
		text := c.generate(ctx, capability.GenerateRequest{Kind: capability.KindIdle, Intents: c.catalog.Intents()}, IdleText(c.catalog.Intents()))
		return c.reply(s, models.ResponseIdle, text, false)
	}

	intent, err := c.catalog.DescribeIntent(s.CurrentIntent)
	if err != nil {
		intent = catalog.IntentSpec{Name: s.CurrentIntent}
	}

	// An intent without tools completes on its first execute pass.
	if len(s.ToolResults) > 0 || s.Context.AllToolsCompleted {
		req := capability.GenerateRequest{
			Kind:       capability.KindSummary,
			Intent:     intent,
			Parameters: s.ExtractedParameters,
			Results:    s.ToolResults,
		}
		text := c.generate(ctx, req, SummaryText(intent.Name, s.ToolResults))
		s.Context.ResultsComposed = true
		return c.reply(s, models.ResponseSummary, text, !s.Context.AllToolsCompleted)
	}

	req := capability.GenerateRequest{
		Kind:       capability.KindAcknowledgment,
		Intent:     intent,
		Parameters: s.ExtractedParameters,
	}
	text := c.generate(ctx, req, AcknowledgmentText(intent.Name))
	if missing := s.MissingParameters(); len(missing) > 0 {
		questions := make([]string, len(missing))
		for i, name := range missing {
			questions[i] = intent.Question(name)
		}
		text += " " + slots.Clarify(questions)
	}
	return c.reply(s, models.ResponseAcknowledgment, text, true)
}

func (c *Composer) reply(s *models.Session, kind models.ResponseKind, text string, cont bool) Result {
	s.AddMessage(models.RoleAssistant, text)
	s.Context.LastResponseKind = kind
	return Result{Kind: kind, Text: text, Appended: true, Continue: cont}
}

// generate calls the generator and falls back to the template on error or
// empty output.
func (c *Composer) generate(ctx context.Context, req capability.GenerateRequest, fallback string) string {
	if c.generator == nil {
		return fallback
	}
	text, err := c.generator.Generate(ctx, req)
	if err != nil {
		log.Printf("[compose] %s generation failed, using template: %v", req.Kind, err)
		return fallback
	}
	if strings.TrimSpace(text) == "" {
		return fallback
	}
	return strings.TrimSpace(text)
}

// Spaced renders an intent name for prose.
func Spaced(intent string) string {
	return strings.ReplaceAll(intent, "_", " ")
}

// SummaryText is the templated result summary. Tool messages, when the
// payload carries one, are listed in name order.
func SummaryText(intent string, results map[string]models.ToolResult) string {
	failed := false
	names := make([]string, 0, len(results))
	for name, r := range results {
		if !r.Success {
			failed = true
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	if failed {
		fmt.Fprintf(&b, "I encountered some issues with your %s request. Please try again.", Spaced(intent))
	} else {
		fmt.Fprintf(&b, "Great! I've completed your %s request.", Spaced(intent))
	}
	for _, name := range names {
		r := results[name]
		if !r.Success {
			fmt.Fprintf(&b, "\n- %s: %s", name, r.Error)
			continue
		}
		if msg, _ := r.Data["message"].(string); msg != "" {
			fmt.Fprintf(&b, "\n- %s", msg)
		}
	}
	return b.String()
}

// AcknowledgmentText is the templated acknowledgment of a detected intent.
func AcknowledgmentText(intent string) string {
	return fmt.Sprintf("Got it. I'm working on your %s request.", Spaced(intent))
}

// IdleText lists what the assistant can do.
func IdleText(intents []catalog.IntentSpec) string {
	if len(intents) == 0 {
		return "Hello! How can I help you today?"
	}
	var b strings.Builder
	b.WriteString("Hello! I can help you with the following:")
	for _, in := range intents {
		fmt.Fprintf(&b, "\n- %s", in.DisplayName())
	}
	b.WriteString("\nWhat would you like to do?")
	return b.String()
}
