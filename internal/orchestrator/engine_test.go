package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"github.com/erentorlak/todv2/internal/capability"
	"github.com/erentorlak/todv2/internal/catalog"
	"github.com/erentorlak/todv2/internal/graph"
	"github.com/erentorlak/todv2/internal/slots"
	"github.com/erentorlak/todv2/internal/state"
	"github.com/erentorlak/todv2/internal/tools"
	"github.com/erentorlak/todv2/pkg/models"
)

func TestMain(m *testing.M) {
	// The genai client pulls in opencensus, whose view worker starts in init
	// and never exits.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type harness struct {
	engine  *Engine
	store   *state.Memory
	metrics *Metrics
}

func newHarness(t *testing.T, box *tools.Toolbox, opts ...Option) *harness {
	t.Helper()
	if box == nil {
		box = tools.Travel()
	}
	store := state.NewMemory()
	metrics := MustNewMetrics(prometheus.NewRegistry())
	base := []Option{
		WithClassifier(capability.NameClassifier{}),
		WithMetrics(metrics),
		WithIDGenerator(func() string { return "sess" }),
	}
	e := New(RequiredConfig{Catalog: catalog.Default(), Tools: box, Store: store}, append(base, opts...)...)
	return &harness{engine: e, store: store, metrics: metrics}
}

func (h *harness) say(t *testing.T, utterance string) Reply {
	t.Helper()
	reply, err := h.engine.Turn(context.Background(), "sess", utterance)
	if err != nil {
		t.Fatalf("Turn(%q) failed: %v", utterance, err)
	}
	return reply
}

func (h *harness) session(t *testing.T) *models.Session {
	t.Helper()
	s, err := h.engine.Session("sess")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// seedFlight stores a session midway through collecting book_flight parameters.
func (h *harness) seedFlight(t *testing.T) {
	t.Helper()
	s := models.NewSession("sess")
	s.CurrentIntent = "book_flight"
	s.ExtractedParameters = map[string]string{"origin": "NYC"}
	s.SelectedTools = []string{"search_flights", "book_flight"}
	s.Context.RequiredParameters = []string{"origin", "destination", "date"}
	s.Context.ExecutionOrder = [][]string{{"search_flights"}, {"book_flight"}}
	s.Context.Scheduled = true
	s.Context.RetryCounts = map[string]int{"destination": 1, "date": 1}
	s.AddMessage(models.RoleUser, "Book a flight from NYC")
	s.AddMessage(models.RoleAssistant, "I need two more details: Where would you like to fly to? and What date would you like to travel?")
	if err := h.store.SaveSession(s); err != nil {
		t.Fatal(err)
	}
}

func TestTurn_BookFlightEndToEnd(t *testing.T) {
	h := newHarness(t, nil)

	reply := h.say(t, "Book a flight from New York to Paris on Dec 25")

	if !strings.HasPrefix(reply.Text, "Great! I've completed your book flight request.") {
		t.Errorf("unexpected reply %q", reply.Text)
	}
	if reply.Ended {
		t.Error("conversation should stay open after a completed request")
	}

	s := h.session(t)
	if s.CurrentIntent != "book_flight" {
		t.Errorf("intent = %q", s.CurrentIntent)
	}
	if diff := cmp.Diff([][]string{{"search_flights"}, {"book_flight"}}, s.Context.ExecutionOrder); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
	wantParams := map[string]string{"origin": "New York", "destination": "Paris", "date": "Dec 25"}
	if diff := cmp.Diff(wantParams, s.ExtractedParameters); diff != "" {
		t.Errorf("parameters mismatch (-want +got):\n%s", diff)
	}
	for _, tool := range []string{"search_flights", "book_flight"} {
		if !s.ToolResults[tool].Success {
			t.Errorf("%s did not succeed: %+v", tool, s.ToolResults[tool])
		}
	}
	if !s.Context.AllToolsCompleted || !s.Context.ResultsComposed {
		t.Errorf("completion flags not set: %+v", s.Context)
	}
	if len(s.Context.RetryCounts) != 0 {
		t.Errorf("no clarification should have been counted: %v", s.Context.RetryCounts)
	}
	if got := len(s.Messages); got != 2 {
		t.Errorf("expected one user and one assistant message, got %d", got)
	}

	if got := testutil.ToFloat64(h.metrics.toolInvocations.WithLabelValues("book_flight", "success")); got != 1 {
		t.Errorf("book_flight success count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(h.metrics.turns.WithLabelValues("reply")); got != 1 {
		t.Errorf("turn count = %v, want 1", got)
	}
}

func TestTurn_HotelClarificationAndRetryLimit(t *testing.T) {
	h := newHarness(t, nil)

	reply := h.say(t, "Book a hotel")
	want := "I need two more details: Which city do you need a hotel in? and How many days will you be staying?"
	if reply.Text != want {
		t.Fatalf("reply = %q, want %q", reply.Text, want)
	}

	for i := 2; i <= 5; i++ {
		reply = h.say(t, "I like turtles")
		if reply.Text != want {
			t.Fatalf("clarification %d: reply = %q", i, reply.Text)
		}
		counts := h.session(t).Context.RetryCounts
		if counts["destination"] != i || counts["days"] != i {
			t.Fatalf("clarification %d: retry counts = %v", i, counts)
		}
	}

	reply = h.say(t, "I like turtles")
	if reply.Text != slots.FailureMessage("destination") {
		t.Fatalf("expected retry limit message, got %q", reply.Text)
	}
	s := h.session(t)
	if s.CurrentIntent != "" {
		t.Errorf("intent should be abandoned, got %q", s.CurrentIntent)
	}
	if s.Context.FailedParameter != "destination" || s.Context.LastResponseKind != models.ResponseParamFailure {
		t.Errorf("failure not recorded: %+v", s.Context)
	}
	if got := testutil.ToFloat64(h.metrics.retryLimits.WithLabelValues("book_hotel", "destination")); got != 1 {
		t.Errorf("retry limit count = %v, want 1", got)
	}
}

func TestTurn_PartialProgressAcknowledged(t *testing.T) {
	h := newHarness(t, nil)

	reply := h.say(t, "I need a hotel in Rome")
	want := "Got it. I'm working on your book hotel request. I need one more detail: How many days will you be staying?"
	if reply.Text != want {
		t.Fatalf("reply = %q, want %q", reply.Text, want)
	}
	s := h.session(t)
	if s.ExtractedParameters["destination"] != "Rome" {
		t.Errorf("destination not kept: %v", s.ExtractedParameters)
	}
	if len(s.Context.RetryCounts) != 0 {
		t.Errorf("progress must not count as a retry: %v", s.Context.RetryCounts)
	}

	reply = h.say(t, "3 days")
	if !strings.HasPrefix(reply.Text, "Great! I've completed your book hotel request.") {
		t.Errorf("unexpected reply %q", reply.Text)
	}
}

func TestTurn_IntentSwitchProposal(t *testing.T) {
	h := newHarness(t, nil)
	h.seedFlight(t)

	reply := h.say(t, "Actually I need a hotel in Rome for 3 days")

	if !strings.HasPrefix(reply.Text, "I notice you want to start Book hotel accommodation, but we were working on Book airline tickets.") {
		t.Errorf("unexpected confirmation %q", reply.Text)
	}
	s := h.session(t)
	want := &models.SwitchProposal{From: "book_flight", To: "book_hotel", Utterance: "Actually I need a hotel in Rome for 3 days"}
	if diff := cmp.Diff(want, s.Context.AwaitingConfirmation); diff != "" {
		t.Errorf("proposal mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]string{"origin": "NYC"}, s.ExtractedParameters); diff != "" {
		t.Errorf("parameters must be untouched (-want +got):\n%s", diff)
	}
	if s.CurrentIntent != "book_flight" {
		t.Errorf("intent switched early to %q", s.CurrentIntent)
	}
}

func TestTurn_IntentSwitchYes(t *testing.T) {
	h := newHarness(t, nil)
	h.seedFlight(t)
	h.say(t, "Actually I need a hotel in Rome for 3 days")

	reply := h.say(t, "yes")

	s := h.session(t)
	if s.CurrentIntent != "book_hotel" {
		t.Fatalf("intent = %q, want book_hotel", s.CurrentIntent)
	}
	wantPaused := []models.PausedIntent{{
		Intent:        "book_flight",
		Parameters:    map[string]string{"origin": "NYC"},
		SelectedTools: []string{"search_flights", "book_flight"},
		PausedAt:      models.PausedAtParameterCollection,
	}}
	if diff := cmp.Diff(wantPaused, s.PausedIntents); diff != "" {
		t.Errorf("paused intents mismatch (-want +got):\n%s", diff)
	}
	if s.Context.AwaitingConfirmation != nil {
		t.Error("proposal not cleared")
	}
	if diff := cmp.Diff(map[string]string{"destination": "Rome", "days": "3"}, s.ExtractedParameters); diff != "" {
		t.Errorf("switch should replay the original request (-want +got):\n%s", diff)
	}
	if len(s.Context.RetryCounts) != 0 {
		t.Errorf("retry counts should be reset, got %v", s.Context.RetryCounts)
	}
	if !strings.HasPrefix(reply.Text, "Great! I've completed your book hotel request.") {
		t.Errorf("unexpected reply %q", reply.Text)
	}
}

func TestTurn_IntentSwitchNo(t *testing.T) {
	h := newHarness(t, nil)
	h.seedFlight(t)
	h.say(t, "Actually I need a hotel in Rome for 3 days")

	reply := h.say(t, "no")

	s := h.session(t)
	if s.CurrentIntent != "book_flight" {
		t.Errorf("intent = %q, want book_flight", s.CurrentIntent)
	}
	if s.Context.AwaitingConfirmation != nil {
		t.Error("proposal not cleared")
	}
	if diff := cmp.Diff(map[string]string{"origin": "NYC"}, s.ExtractedParameters); diff != "" {
		t.Errorf("parameters changed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{"destination": 1, "date": 1}, s.Context.RetryCounts); diff != "" {
		t.Errorf("declining must not count as a retry (-want +got):\n%s", diff)
	}
	if len(s.PausedIntents) != 0 {
		t.Errorf("nothing should be paused: %+v", s.PausedIntents)
	}
	want := "I need two more details: Where would you like to fly to? and What date would you like to travel?"
	if reply.Text != want {
		t.Errorf("reply = %q, want %q", reply.Text, want)
	}
}

func TestTurn_IntentSwitchAmbiguous(t *testing.T) {
	h := newHarness(t, nil)
	h.seedFlight(t)
	h.say(t, "Actually I need a hotel in Rome for 3 days")

	for _, answer := range []string{"maybe", "yes, no, I don't know"} {
		reply := h.say(t, answer)
		if reply.Text != confirmReask {
			t.Errorf("%q: reply = %q", answer, reply.Text)
		}
	}
	s := h.session(t)
	if s.Context.AwaitingConfirmation == nil {
		t.Error("proposal should still be pending")
	}
	if s.Context.LastResponseKind != models.ResponseReconfirmation {
		t.Errorf("kind = %q", s.Context.LastResponseKind)
	}
}

func TestTurn_ResumesPausedIntent(t *testing.T) {
	h := newHarness(t, nil)
	h.seedFlight(t)
	h.say(t, "Actually I need a hotel in Rome for 3 days")
	h.say(t, "yes")

	reply := h.say(t, "What's next?")

	s := h.session(t)
	if s.CurrentIntent != "book_flight" {
		t.Fatalf("intent = %q, want book_flight resumed", s.CurrentIntent)
	}
	if diff := cmp.Diff([]string{"book_hotel"}, s.CompletedIntents); diff != "" {
		t.Errorf("completed intents mismatch (-want +got):\n%s", diff)
	}
	if len(s.PausedIntents) != 0 {
		t.Errorf("resumed intent still paused: %+v", s.PausedIntents)
	}
	if s.ExtractedParameters["origin"] != "NYC" {
		t.Errorf("paused parameters not restored: %v", s.ExtractedParameters)
	}
	if !strings.Contains(reply.Text, "Where would you like to fly to?") {
		t.Errorf("expected the remaining flight questions, got %q", reply.Text)
	}
}

func TestTurn_Farewell(t *testing.T) {
	tests := []string{"bye", "Thank you!", "ok thanks", "quit"}
	for _, utterance := range tests {
		t.Run(utterance, func(t *testing.T) {
			h := newHarness(t, nil)
			reply := h.say(t, utterance)
			if reply.Text != farewellReply || !reply.Ended {
				t.Fatalf("reply = %+v", reply)
			}
			if _, err := h.engine.Turn(context.Background(), "sess", "hello again"); !errors.Is(err, ErrSessionEnded) {
				t.Errorf("expected ErrSessionEnded, got %v", err)
			}
		})
	}
}

func TestTurn_IdleHelp(t *testing.T) {
	h := newHarness(t, nil)
	reply := h.say(t, "hello there")
	if !strings.Contains(reply.Text, "Book airline tickets") {
		t.Errorf("expected help text, got %q", reply.Text)
	}
	if h.session(t).CurrentIntent != "" {
		t.Error("no intent should be active")
	}
}

func TestTurn_FailedBatchRetriedNextTurn(t *testing.T) {
	var calls atomic.Int32
	box := tools.Travel()
	box.Register("book_flight", tools.Func(func(ctx context.Context, args tools.Args) (map[string]any, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("reservation system busy")
		}
		return tools.BookFlight(ctx, args)
	}))
	h := newHarness(t, box)

	reply := h.say(t, "Book a flight from New York to Paris on Dec 25")
	if !strings.HasPrefix(reply.Text, "I encountered some issues with your book flight request.") {
		t.Fatalf("unexpected reply %q", reply.Text)
	}
	s := h.session(t)
	if s.Context.CurrentBatchIndex != 1 || s.Context.AllToolsCompleted {
		t.Fatalf("cursor should stay on the failed batch: %+v", s.Context)
	}

	reply = h.say(t, "please try again")
	if !strings.HasPrefix(reply.Text, "Great! I've completed your book flight request.") {
		t.Errorf("unexpected reply %q", reply.Text)
	}
	if calls.Load() != 2 {
		t.Errorf("book_flight calls = %d, want 2", calls.Load())
	}
}

func TestTurn_UnknownToolIsTerminal(t *testing.T) {
	reg, err := catalog.New(
		[]catalog.IntentSpec{{Name: "rent_car", Tools: []string{"rent_car"}, Keywords: []string{"rent a car"}}},
		nil,
	)
	if err != nil {
		t.Fatal(err)
	}
	store := state.NewMemory()
	e := New(RequiredConfig{Catalog: reg, Tools: tools.NewToolbox(), Store: store},
		WithIDGenerator(func() string { return "sess" }))

	reply, err := e.Turn(context.Background(), "sess", "I want to rent a car")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(reply.Text, "rent car service is not available") {
		t.Errorf("unexpected reply %q", reply.Text)
	}
	s, _ := e.Session("sess")
	if s.CurrentIntent != "" {
		t.Errorf("intent should be abandoned, got %q", s.CurrentIntent)
	}
}

func TestTurn_ClassifierFailureDegrades(t *testing.T) {
	failing := capability.ClassifierFunc(func(context.Context, string, []catalog.IntentSpec) (string, error) {
		return "", errors.New("model timeout")
	})
	h := newHarness(t, nil, WithClassifier(failing))

	reply := h.say(t, "something vague")
	if !strings.Contains(reply.Text, "What would you like to do?") {
		t.Errorf("expected idle help after classifier failure, got %q", reply.Text)
	}

	reply = h.say(t, "I want a plane ticket from Boston to Denver on 2025-03-01")
	if !strings.HasPrefix(reply.Text, "Great! I've completed your book flight request.") {
		t.Errorf("keyword match should bypass the classifier, got %q", reply.Text)
	}
}

func TestTurn_NewSessionAndEmptyUtterance(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.engine.Turn(context.Background(), "", "   "); !errors.Is(err, ErrEmptyUtterance) {
		t.Errorf("expected ErrEmptyUtterance, got %v", err)
	}
	reply, err := h.engine.Turn(context.Background(), "", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if reply.SessionID != "sess" {
		t.Errorf("session id = %q", reply.SessionID)
	}
	if _, err := h.engine.Session("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestDumpState(t *testing.T) {
	h := newHarness(t, nil)
	h.say(t, "Book a hotel")
	out, err := h.engine.DumpState("sess")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"current_intent": "book_hotel"`, `"retry_counts"`} {
		if !strings.Contains(out, want) {
			t.Errorf("dump missing %s:\n%s", want, out)
		}
	}
}

func TestTurn_EmitsEvents(t *testing.T) {
	em := NewEventEmitter(64)
	h := newHarness(t, nil, WithEventEmitter(em))
	h.say(t, "Book a flight from New York to Paris on Dec 25")
	em.Close()

	var types []EventType
	for ev := range em.Events() {
		types = append(types, ev.Type)
	}
	want := []EventType{EventTurnStarted, EventIntentDetected, EventBatchCompleted, EventBatchCompleted, EventTurnCompleted}
	if diff := cmp.Diff(want, types, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestTurn_IntentWithoutTools(t *testing.T) {
	reg, err := catalog.New(
		[]catalog.IntentSpec{{Name: "small_talk", Keywords: []string{"chat"}}},
		nil,
	)
	if err != nil {
		t.Fatal(err)
	}
	e := New(RequiredConfig{Catalog: reg, Tools: tools.NewToolbox(), Store: state.NewMemory()},
		WithIDGenerator(func() string { return "sess" }))

	reply, err := e.Turn(context.Background(), "sess", "let's chat")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Text != "Great! I've completed your small talk request." {
		t.Errorf("unexpected reply %q", reply.Text)
	}
	s, _ := e.Session("sess")
	if s.CurrentIntent != "small_talk" || !s.Context.Scheduled {
		t.Errorf("intent = %q scheduled = %v", s.CurrentIntent, s.Context.Scheduled)
	}
	if !s.Context.AllToolsCompleted || !s.Context.ResultsComposed {
		t.Errorf("completion flags not set: %+v", s.Context)
	}

	reply, err = e.Turn(context.Background(), "sess", "let's chat again")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Text != "Great! I've completed your small talk request." {
		t.Errorf("second turn reply %q", reply.Text)
	}
	s, _ = e.Session("sess")
	if diff := cmp.Diff([]string{"small_talk"}, s.CompletedIntents); diff != "" {
		t.Errorf("completed intents mismatch (-want +got):\n%s", diff)
	}
}

func TestTurn_SchedulingStallRecorded(t *testing.T) {
	reg, err := catalog.New(
		[]catalog.IntentSpec{{Name: "daily_report", Tools: []string{"summarize"}, Keywords: []string{"report"}}},
		[]catalog.ToolSpec{{Name: "summarize", Requires: []string{"raw_data"}, Returns: "summary"}},
	)
	if err != nil {
		t.Fatal(err)
	}
	box := tools.NewToolbox()
	box.Register("summarize", tools.Func(func(context.Context, tools.Args) (map[string]any, error) {
		return map[string]any{"status": "success", "message": "Nothing to summarize today."}, nil
	}))
	em := NewEventEmitter(64)
	metrics := MustNewMetrics(prometheus.NewRegistry())
	e := New(RequiredConfig{Catalog: reg, Tools: box, Store: state.NewMemory()},
		WithMetrics(metrics),
		WithEventEmitter(em),
		WithIDGenerator(func() string { return "sess" }))

	reply, err := e.Turn(context.Background(), "sess", "send me the report")
	if err != nil {
		t.Fatal(err)
	}
	em.Close()

	if !strings.HasPrefix(reply.Text, "Great! I've completed your daily report request.") {
		t.Errorf("forced tool should still run, got %q", reply.Text)
	}
	s, _ := e.Session("sess")
	want := []models.SchedulingStall{{Tool: "summarize", Missing: []string{"raw_data"}}}
	if diff := cmp.Diff(want, s.Context.Stalls); diff != "" {
		t.Errorf("stalls mismatch (-want +got):\n%s", diff)
	}

	var stalled []EngineEvent
	for ev := range em.Events() {
		if ev.Type == EventSchedulingStall {
			stalled = append(stalled, ev)
		}
	}
	if len(stalled) != 1 {
		t.Fatalf("expected one stall event, got %d", len(stalled))
	}
	if ev := stalled[0]; ev.Intent != "daily_report" || !errors.Is(ev.Error, graph.ErrSchedulingStall) {
		t.Errorf("unexpected stall event %+v", ev)
	}
	if diff := cmp.Diff([]string{"summarize"}, stalled[0].Tools); diff != "" {
		t.Errorf("stall event tools mismatch (-want +got):\n%s", diff)
	}

	if got := testutil.ToFloat64(metrics.stalls.WithLabelValues("daily_report", "summarize")); got != 1 {
		t.Errorf("stall count = %v, want 1", got)
	}
}
