package compose

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/erentorlak/todv2/internal/capability"
	"github.com/erentorlak/todv2/internal/catalog"
	"github.com/erentorlak/todv2/pkg/models"
)

func failingGenerator() capability.Generator {
	return capability.GeneratorFunc(func(context.Context, capability.GenerateRequest) (string, error) {
		return "", errors.New("model unavailable")
	})
}

func TestCompose_Idempotent(t *testing.T) {
	s := models.NewSession("s1")
	s.CurrentIntent = "book_hotel"
	s.AddMessage(models.RoleUser, "Book a hotel")
	s.AddMessage(models.RoleAssistant, "I need two more details: ...")
	s.Context.LastResponseKind = models.ResponseClarification

	c := New(catalog.Default(), nil)
	for i := 0; i < 3; i++ {
		res := c.Compose(context.Background(), s)
		if res.Appended || res.Continue {
			t.Fatalf("pass %d: composer should pass through, got %+v", i, res)
		}
	}
	if len(s.Messages) != 2 {
		t.Errorf("expected 2 messages, got %d", len(s.Messages))
	}
}

func TestCompose_SummaryFallback(t *testing.T) {
	tests := []struct {
		name     string
		results  map[string]models.ToolResult
		complete bool
		want     string
		cont     bool
	}{
		{
			name: "success",
			results: map[string]models.ToolResult{
				"search_flights": {Success: true, Data: map[string]any{"message": "Found 3 flights"}},
				"book_flight":    {Success: true, Data: map[string]any{"message": "Flight booked"}},
			},
			complete: true,
			want:     "Great! I've completed your book flight request.\n- Flight booked\n- Found 3 flights",
		},
		{
			name: "failure",
			results: map[string]models.ToolResult{
				"search_flights": {Success: false, Error: "tool execution failed"},
			},
			want: "I encountered some issues with your book flight request. Please try again.\n- search_flights: tool execution failed",
			cont: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := models.NewSession("s")
			s.CurrentIntent = "book_flight"
			s.AddMessage(models.RoleUser, "Book a flight")
			s.ToolResults = tt.results
			s.Context.AllToolsCompleted = tt.complete

			res := New(catalog.Default(), failingGenerator()).Compose(context.Background(), s)
			if res.Text != tt.want {
				t.Errorf("text = %q, want %q", res.Text, tt.want)
			}
			if res.Continue != tt.cont {
				t.Errorf("continue = %v, want %v", res.Continue, tt.cont)
			}
			if !s.Context.ResultsComposed {
				t.Error("ResultsComposed not set")
			}
			if s.Context.LastResponseKind != models.ResponseSummary {
				t.Errorf("kind = %q", s.Context.LastResponseKind)
			}
		})
	}
}

func TestCompose_UsesGenerator(t *testing.T) {
	var got capability.GenerateRequest
	gen := capability.GeneratorFunc(func(_ context.Context, req capability.GenerateRequest) (string, error) {
		got = req
		return "  Your flight is booked.  ", nil
	})
	s := models.NewSession("s")
	s.CurrentIntent = "book_flight"
	s.AddMessage(models.RoleUser, "Book a flight")
	s.ToolResults = map[string]models.ToolResult{"book_flight": {Success: true}}
	s.Context.AllToolsCompleted = true

	res := New(catalog.Default(), gen).Compose(context.Background(), s)
	if res.Text != "Your flight is booked." {
		t.Errorf("text = %q", res.Text)
	}
	if got.Kind != capability.KindSummary || got.Intent.Name != "book_flight" {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestCompose_AcknowledgmentListsRemainingQuestions(t *testing.T) {
	s := models.NewSession("s")
	s.CurrentIntent = "book_hotel"
	s.AddMessage(models.RoleUser, "A hotel in Rome")
	s.ExtractedParameters = map[string]string{"destination": "Rome"}
	s.Context.RequiredParameters = []string{"destination", "days"}

	res := New(catalog.Default(), failingGenerator()).Compose(context.Background(), s)
	want := "Got it. I'm working on your book hotel request. I need one more detail: How many days will you be staying?"
	if res.Text != want {
		t.Errorf("text = %q, want %q", res.Text, want)
	}
	if !res.Continue {
		t.Error("acknowledgment should return to the router")
	}
}

func TestCompose_Idle(t *testing.T) {
	s := models.NewSession("s")
	s.AddMessage(models.RoleUser, "hello")
	res := New(catalog.Default(), nil).Compose(context.Background(), s)
	if res.Kind != models.ResponseIdle || res.Continue {
		t.Fatalf("unexpected result %+v", res)
	}
	for _, want := range []string{"Book airline tickets", "Book hotel accommodation", "Plan a complete vacation"} {
		if !strings.Contains(res.Text, want) {
			t.Errorf("idle text missing %q:\n%s", want, res.Text)
		}
	}
}

func TestCompose_CompletedWithoutResults(t *testing.T) {
	s := models.NewSession("s1")
	s.CurrentIntent = "book_hotel"
	s.AddMessage(models.RoleUser, "Book a hotel")
	s.Context.AllToolsCompleted = true

	res := New(catalog.Default(), nil).Compose(context.Background(), s)
	if res.Kind != models.ResponseSummary || res.Continue {
		t.Fatalf("expected a final summary, got %+v", res)
	}
	if res.Text != "Great! I've completed your book hotel request." {
		t.Errorf("unexpected text %q", res.Text)
	}
	if !s.Context.ResultsComposed {
		t.Error("ResultsComposed not set")
	}
}
