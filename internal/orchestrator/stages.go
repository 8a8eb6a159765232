package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/erentorlak/todv2/internal/catalog"
	"github.com/erentorlak/todv2/internal/compose"
	"github.com/erentorlak/todv2/internal/graph"
	"github.com/erentorlak/todv2/internal/slots"
	"github.com/erentorlak/todv2/pkg/models"
)

// schedule selects the tools for the current intent and plans their batches.
func (e *Engine) schedule(t *turn) Stage {
	s := t.s
	intent := s.CurrentIntent

	spec, err := e.catalog.DescribeIntent(intent)
	if err != nil {
		return e.setupFailure(t, intent, err)
	}
	nodes, err := catalog.NodesFor(e.catalog, intent)
	if err != nil {
		return e.setupFailure(t, intent, err)
	}

	g := graph.New()
	g.SetDebugLog(e.logger.Log)
	if err := g.Build(nodes); err != nil {
		return e.setupFailure(t, intent, err)
	}
	plan := g.Batches()

	s.Context.Stalls = nil
	for _, st := range plan.Stalls {
		log.Printf("[scheduler] %s: %v", intent, st.Err())
		e.metrics.IncStall(intent, st.Tool)
		e.emitter.Emit(EngineEvent{Type: EventSchedulingStall, SessionID: s.ID, Intent: intent, Tools: []string{st.Tool}, Error: st.Err()})
		s.Context.Stalls = append(s.Context.Stalls, models.SchedulingStall{Tool: st.Tool, Missing: st.Missing})
	}

	s.SelectedTools = append([]string(nil), spec.Tools...)
	s.Context.RequiredParameters = spec.RequiredParameters()
	s.Context.ExecutionOrder = plan.Batches
	s.Context.Scheduled = true
	s.Context.CurrentBatchIndex = 0
	s.Context.CompletedTools = nil
	s.Context.AllToolsCompleted = false
	s.Context.ResultsComposed = false
	if s.Context.RetryCounts == nil {
		s.Context.RetryCounts = make(map[string]int)
	}
	e.logger.Log("[%s] %s planned %v", s.ID, intent, plan.Batches)
	return StageRoute
}

// setupFailure reports an intent that cannot be served and abandons it.
func (e *Engine) setupFailure(t *turn, intent string, err error) Stage {
	log.Printf("[scheduler] %s: %v", intent, err)
	var text string
	switch {
	case errors.Is(err, catalog.ErrUnknownIntent):
		text = fmt.Sprintf("I'm sorry, I don't know how to help with %s requests.", compose.Spaced(intent))
	case errors.Is(err, catalog.ErrUnknownTool):
		text = fmt.Sprintf("I'm sorry, the %s service is not available right now. Please try again later.", compose.Spaced(intent))
	default:
		text = fmt.Sprintf("I'm sorry, I couldn't set up your %s request.", compose.Spaced(intent))
	}
	e.abandon(t.s)
	e.say(t, models.ResponseSetupFailure, text)
	return StageDone
}

// fillSlots runs the slot filler once for this turn.
func (e *Engine) fillSlots(ctx context.Context, t *turn) Stage {
	s := t.s
	t.filled = true

	spec, err := e.catalog.DescribeIntent(s.CurrentIntent)
	if err != nil {
		return e.setupFailure(t, s.CurrentIntent, err)
	}

	res := e.filler.Fill(ctx, slots.Request{
		Intent:      spec,
		Required:    s.Context.RequiredParameters,
		Current:     s.ExtractedParameters,
		Utterance:   t.utterance,
		RetryCounts: s.Context.RetryCounts,
		Rephrase:    t.noPenalty,
	})
	s.ExtractedParameters = res.Parameters
	s.Context.RetryCounts = res.RetryCounts
	if len(res.Extracted) > 0 {
		e.logger.Log("[%s] extracted %v", s.ID, res.Extracted)
	}

	switch res.Outcome {
	case slots.Complete:
		return StageRoute
	case slots.Progressed:
		if len(res.Missing) == 0 {
			return StageRoute
		}
		return StageCompose
	case slots.NeedsClarification:
		e.say(t, models.ResponseClarification, res.Message)
		return StageDone
	case slots.Failed:
		log.Printf("[slots] %s: %v", s.ID, res.Err)
		e.metrics.IncRetryLimit(spec.Name, res.FailedParameter)
		e.emitter.Emit(EngineEvent{Type: EventRetryLimit, SessionID: s.ID, Intent: spec.Name, Message: res.FailedParameter, Error: res.Err})
		e.abandon(s)
		s.Context.FailedParameter = res.FailedParameter
		e.say(t, models.ResponseParamFailure, res.Message)
		return StageDone
	default:
		return StageDone
	}
}

// execute runs the batch at the cursor.
func (e *Engine) execute(ctx context.Context, t *turn) Stage {
	s := t.s
	rep := e.executor.Run(ctx, s)
	for _, name := range rep.Batch {
		e.metrics.IncToolInvocation(name, rep.Results[name].Success)
	}
	if len(rep.Batch) > 0 {
		e.emitter.Emit(EngineEvent{Type: EventBatchCompleted, SessionID: s.ID, Intent: s.CurrentIntent, Tools: rep.Batch, Failed: rep.Failed})
	}
	if len(rep.Failed) > 0 {
		t.batchFailed = true
	}
	return StageRoute
}
