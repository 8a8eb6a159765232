package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/erentorlak/todv2/internal/catalog"
	"github.com/erentorlak/todv2/internal/tools"
	"github.com/erentorlak/todv2/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func flightSession() *models.Session {
	s := models.NewSession("s1")
	s.CurrentIntent = "book_flight"
	s.SelectedTools = []string{"search_flights", "book_flight"}
	s.ExtractedParameters = map[string]string{"origin": "New York", "destination": "Paris", "date": "Dec 25"}
	s.Context.ExecutionOrder = [][]string{{"search_flights"}, {"book_flight"}}
	return s
}

func TestRun_BatchesInOrder(t *testing.T) {
	e := New(catalog.Default(), tools.Travel(), 0)
	s := flightSession()

	first := e.Run(context.Background(), s)
	if !first.Advanced || first.Done {
		t.Fatalf("first batch: advanced=%v done=%v", first.Advanced, first.Done)
	}
	if s.Context.CurrentBatchIndex != 1 {
		t.Fatalf("cursor = %d, want 1", s.Context.CurrentBatchIndex)
	}
	if s.Context.AllToolsCompleted {
		t.Fatal("AllToolsCompleted set after first batch")
	}

	second := e.Run(context.Background(), s)
	if !second.Done || !s.Context.AllToolsCompleted {
		t.Fatalf("second batch should complete the plan: %+v", second)
	}
	if diff := cmp.Diff([]string{"search_flights", "book_flight"}, s.Context.CompletedTools); diff != "" {
		t.Errorf("completed tools mismatch (-want +got):\n%s", diff)
	}
	for _, name := range s.SelectedTools {
		if !s.ToolResults[name].Success {
			t.Errorf("%s: expected success, got %+v", name, s.ToolResults[name])
		}
	}

	third := e.Run(context.Background(), s)
	if !third.Done || len(third.Batch) != 0 {
		t.Errorf("run past the end should only report done: %+v", third)
	}
}

func TestRun_ValidationFailureDoesNotShortCircuit(t *testing.T) {
	var weatherCalls atomic.Int32
	box := tools.NewToolbox()
	box.Register("search_flights", tools.Func(tools.SearchFlights))
	box.Register("get_weather", tools.Func(func(ctx context.Context, args tools.Args) (map[string]any, error) {
		weatherCalls.Add(1)
		return tools.GetWeather(ctx, args)
	}))

	s := models.NewSession("s2")
	s.CurrentIntent = "plan_vacation"
	s.ExtractedParameters = map[string]string{"destination": "Rome", "date": "Dec 25"}
	s.Context.ExecutionOrder = [][]string{{"search_flights", "get_weather"}}

	rep := New(catalog.Default(), box, 0).Run(context.Background(), s)

	if weatherCalls.Load() != 1 {
		t.Errorf("sibling tool should still run, calls = %d", weatherCalls.Load())
	}
	if rep.Advanced {
		t.Error("cursor must not advance on failure")
	}
	if s.Context.CurrentBatchIndex != 0 {
		t.Errorf("cursor = %d, want 0", s.Context.CurrentBatchIndex)
	}
	res := s.ToolResults["search_flights"]
	if res.Success || !strings.Contains(res.Error, ErrParameterValidation.Error()) {
		t.Errorf("expected validation failure, got %+v", res)
	}
	if !s.ToolResults["get_weather"].Success {
		t.Errorf("get_weather should succeed: %+v", s.ToolResults["get_weather"])
	}
	if diff := cmp.Diff([]string{"search_flights"}, rep.Failed); diff != "" {
		t.Errorf("failed mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_CapturesErrorsAndPanics(t *testing.T) {
	box := tools.NewToolbox()
	box.Register("search_flights", tools.Func(func(context.Context, tools.Args) (map[string]any, error) {
		return nil, errors.New("upstream unavailable")
	}))
	box.Register("search_hotels", tools.Func(func(context.Context, tools.Args) (map[string]any, error) {
		panic("boom")
	}))
	box.Register("get_weather", tools.Func(func(context.Context, tools.Args) (map[string]any, error) {
		return map[string]any{"status": "error", "message": "no forecast"}, nil
	}))

	s := models.NewSession("s3")
	s.CurrentIntent = "plan_vacation"
	s.ExtractedParameters = map[string]string{"origin": "NYC", "destination": "Rome", "date": "Dec 25", "days": "3"}
	s.Context.ExecutionOrder = [][]string{{"search_flights", "search_hotels", "get_weather"}, {"book_flight", "book_hotel"}}

	rep := New(catalog.Default(), box, 2).Run(context.Background(), s)

	if len(rep.Failed) != 3 {
		t.Fatalf("expected three failures, got %v", rep.Failed)
	}
	for name, want := range map[string]string{
		"search_flights": "upstream unavailable",
		"search_hotels":  "panicked",
		"get_weather":    "no forecast",
	} {
		res := s.ToolResults[name]
		if res.Success || !strings.Contains(res.Error, want) {
			t.Errorf("%s: expected failure containing %q, got %+v", name, want, res)
		}
		if !strings.Contains(res.Error, ErrToolExecution.Error()) {
			t.Errorf("%s: expected tool execution error, got %q", name, res.Error)
		}
	}
	if s.Context.AllToolsCompleted {
		t.Error("AllToolsCompleted set despite failures")
	}
}

func TestRun_RetriesFailedBatch(t *testing.T) {
	var calls atomic.Int32
	box := tools.NewToolbox()
	box.Register("search_hotels", tools.Func(func(ctx context.Context, args tools.Args) (map[string]any, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("transient")
		}
		return tools.SearchHotels(ctx, args)
	}))

	s := models.NewSession("s4")
	s.CurrentIntent = "book_hotel"
	s.ExtractedParameters = map[string]string{"destination": "Rome", "days": "3"}
	s.Context.ExecutionOrder = [][]string{{"search_hotels"}}
	e := New(catalog.Default(), box, 0)

	if rep := e.Run(context.Background(), s); rep.Advanced {
		t.Fatal("first pass should fail")
	}
	if rep := e.Run(context.Background(), s); !rep.Advanced || !rep.Done {
		t.Fatalf("second pass should complete: %+v", rep)
	}
	if calls.Load() != 2 {
		t.Errorf("expected the batch to be invoked twice, got %d", calls.Load())
	}
	if !s.ToolResults["search_hotels"].Success {
		t.Error("later result should overwrite the failure")
	}
}

func TestRun_ConcurrentMembers(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(2)
	slow := func(context.Context, tools.Args) (map[string]any, error) {
		wg.Done()
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
			return map[string]any{"status": "success"}, nil
		case <-time.After(2 * time.Second):
			return nil, errors.New("members did not overlap")
		}
	}
	box := tools.NewToolbox()
	box.Register("search_flights", tools.Func(slow))
	box.Register("search_hotels", tools.Func(slow))

	s := models.NewSession("s5")
	s.CurrentIntent = "plan_vacation"
	s.ExtractedParameters = map[string]string{"origin": "NYC", "destination": "Rome", "date": "Dec 25", "days": "3"}
	s.Context.ExecutionOrder = [][]string{{"search_flights", "search_hotels"}}

	rep := New(catalog.Default(), box, 0).Run(context.Background(), s)
	if len(rep.Failed) != 0 {
		t.Fatalf("batch members should run concurrently: %+v", s.ToolResults)
	}
}

func TestRun_OptionalParametersAreAbsent(t *testing.T) {
	reg, err := catalog.New(
		[]catalog.IntentSpec{{
			Name:  "weather",
			Tools: []string{"get_weather"},
			Parameters: []catalog.ParamSpec{
				{Name: "destination", Required: true},
				{Name: "date", Required: false},
			},
		}},
		[]catalog.ToolSpec{{Name: "get_weather", Parameters: []string{"destination", "date"}}},
	)
	if err != nil {
		t.Fatal(err)
	}

	var got tools.Args
	box := tools.NewToolbox()
	box.Register("get_weather", tools.Func(func(_ context.Context, args tools.Args) (map[string]any, error) {
		got = args
		return map[string]any{"status": "success"}, nil
	}))

	s := models.NewSession("s6")
	s.CurrentIntent = "weather"
	s.ExtractedParameters = map[string]string{"destination": "Oslo"}
	s.Context.ExecutionOrder = [][]string{{"get_weather"}}

	if rep := New(reg, box, 0).Run(context.Background(), s); len(rep.Failed) != 0 {
		t.Fatalf("unexpected failure: %+v", s.ToolResults)
	}
	want := tools.Args{"destination": tools.Some("Oslo"), "date": tools.Absent}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildArgs(t *testing.T) {
	e := New(catalog.Default(), tools.Travel(), 0)
	tests := []struct {
		name     string
		tool     string
		params   map[string]string
		optional map[string]bool
		want     tools.Args
		wantErr  string
	}{
		{
			name:   "every declared parameter present",
			tool:   "search_flights",
			params: map[string]string{"origin": "New York", "destination": "Paris", "date": "Dec 25", "guests": "2"},
			want: tools.Args{
				"origin":      tools.Some("New York"),
				"destination": tools.Some("Paris"),
				"date":        tools.Some("Dec 25"),
			},
		},
		{
			name:    "blank required value is missing",
			tool:    "search_flights",
			params:  map[string]string{"origin": "  ", "destination": "Paris", "date": "Dec 25"},
			wantErr: "missing origin",
		},
		{
			name:     "optional value becomes absent",
			tool:     "search_flights",
			params:   map[string]string{"destination": "Paris", "date": "Dec 25"},
			optional: map[string]bool{"origin": true},
			want: tools.Args{
				"origin":      tools.Absent,
				"destination": tools.Some("Paris"),
				"date":        tools.Some("Dec 25"),
			},
		},
		{
			name:    "unknown tool",
			tool:    "teleport",
			wantErr: "unknown tool",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.buildArgs(tt.tool, tt.params, tt.optional)
			if tt.wantErr != "" {
				if !errors.Is(err, ErrParameterValidation) || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want validation error containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("buildArgs failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("args mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
