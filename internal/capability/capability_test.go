package capability

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/erentorlak/todv2/internal/api"
	"github.com/erentorlak/todv2/internal/catalog"
)

// fakeCompleter returns canned output and records requests.
type fakeCompleter struct {
	out   string
	err   error
	calls []api.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req api.Request) (string, error) {
	f.calls = append(f.calls, req)
	return f.out, f.err
}

func intent(t *testing.T, name string) catalog.IntentSpec {
	t.Helper()
	in, err := catalog.Default().DescribeIntent(name)
	if err != nil {
		t.Fatal(err)
	}
	return in
}

func TestDecodeParameters(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{"plain", `{"origin": "NYC"}`, map[string]string{"origin": "NYC"}},
		{"fenced", "```json\n{\"destination\": \"Paris\"}\n```", map[string]string{"destination": "Paris"}},
		{"numbers", `{"days": 3, "ratio": 2.5}`, map[string]string{"days": "3", "ratio": "2.5"}},
		{"null dropped", `{"origin": null}`, map[string]string{}},
		{"empty", "", map[string]string{}},
		{"repaired", `{"origin": "NYC", "destination": "Paris",}`, map[string]string{"origin": "NYC", "destination": "Paris"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeParameters(tt.raw)
			if err != nil {
				t.Fatalf("DecodeParameters failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLLMClassifier(t *testing.T) {
	intents := catalog.Default().Intents()
	llm := &fakeCompleter{out: " Book_Hotel\n"}
	c := NewLLMClassifier(llm, 8)

	got, err := c.Classify(context.Background(), "somewhere to sleep", intents)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if got != "book_hotel" {
		t.Errorf("expected book_hotel, got %q", got)
	}
	if llm.calls[0].Role != api.RoleSupervisor {
		t.Errorf("expected supervisor role, got %s", llm.calls[0].Role)
	}

	// Second call is served from cache.
	if _, err := c.Classify(context.Background(), "Somewhere to sleep ", intents); err != nil {
		t.Fatal(err)
	}
	if len(llm.calls) != 1 {
		t.Errorf("expected cached answer, got %d calls", len(llm.calls))
	}
}

func TestLLMClassifier_UnknownLabel(t *testing.T) {
	c := NewLLMClassifier(&fakeCompleter{out: "general"}, 0)
	got, err := c.Classify(context.Background(), "hi", catalog.Default().Intents())
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Errorf("expected no intent, got %q", got)
	}
}

func TestLLMClassifier_Error(t *testing.T) {
	c := NewLLMClassifier(api.Offline{}, 4)
	if _, err := c.Classify(context.Background(), "hi", nil); !errors.Is(err, api.ErrNoBackend) {
		t.Errorf("expected ErrNoBackend, got %v", err)
	}
}

func TestLLMExtractor(t *testing.T) {
	llm := &fakeCompleter{out: `{"origin": "New York", "destination": "Paris"}`}
	e := NewLLMExtractor(llm)

	got, err := e.Extract(context.Background(), "from New York to Paris", intent(t, "book_flight"), []string{"origin", "destination", "date"})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if diff := cmp.Diff(map[string]string{"origin": "New York", "destination": "Paris"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	req := llm.calls[0]
	if req.Role != api.RoleInputParameter {
		t.Errorf("expected input_parameter role, got %s", req.Role)
	}
	if !strings.Contains(req.System, "origin, destination, date") {
		t.Errorf("prompt should list missing parameters: %s", req.System)
	}
}

func TestLLMGenerator(t *testing.T) {
	llm := &fakeCompleter{out: "All booked!"}
	g := NewLLMGenerator(llm)
	got, err := g.Generate(context.Background(), GenerateRequest{Kind: KindSummary, Intent: intent(t, "book_flight")})
	if err != nil {
		t.Fatal(err)
	}
	if got != "All booked!" {
		t.Errorf("unexpected text %q", got)
	}
	if llm.calls[0].Role != api.RoleGeneration {
		t.Errorf("expected generation role, got %s", llm.calls[0].Role)
	}

	empty := NewLLMGenerator(&fakeCompleter{out: "  "})
	if _, err := empty.Generate(context.Background(), GenerateRequest{Kind: KindIdle}); err == nil {
		t.Error("expected error for empty generation")
	}
}

func TestPatternExtractor(t *testing.T) {
	flight := intent(t, "book_flight")
	hotel := intent(t, "book_hotel")

	tests := []struct {
		name      string
		utterance string
		in        catalog.IntentSpec
		missing   []string
		want      map[string]string
	}{
		{
			name:      "full flight request",
			utterance: "Book a flight from New York to Paris on Dec 25",
			in:        flight,
			missing:   []string{"origin", "destination", "date"},
			want:      map[string]string{"origin": "New York", "destination": "Paris", "date": "Dec 25"},
		},
		{
			name:      "hotel with days",
			utterance: "I need a hotel in Rome for 4 nights",
			in:        hotel,
			missing:   []string{"destination", "days"},
			want:      map[string]string{"destination": "Rome", "days": "4"},
		},
		{
			name:      "nothing to find",
			utterance: "Book a hotel",
			in:        hotel,
			missing:   []string{"destination", "days"},
			want:      map[string]string{},
		},
		{
			name:      "bare answer for single slot",
			utterance: "Berlin",
			in:        hotel,
			missing:   []string{"destination"},
			want:      map[string]string{"destination": "Berlin"},
		},
		{
			name:      "bare answer must validate",
			utterance: "a few",
			in:        hotel,
			missing:   []string{"days"},
			want:      map[string]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PatternExtractor{}.Extract(context.Background(), tt.utterance, tt.in, tt.missing)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNameClassifier(t *testing.T) {
	intents := catalog.Default().Intents()
	tests := []struct {
		utterance string
		want      string
	}{
		{"Book a flight from New York to Paris on Dec 25", "book_flight"},
		{"Book a hotel", "book_hotel"},
		{"Any hotels in Rome?", "book_hotel"},
		{"Help me plan a vacation", "plan_vacation"},
		{"I want to book something", ""},
		{"I like turtles", ""},
	}
	for _, tt := range tests {
		got, err := NameClassifier{}.Classify(context.Background(), tt.utterance, intents)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.utterance, got, tt.want)
		}
	}
}
