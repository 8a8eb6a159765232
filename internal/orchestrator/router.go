package orchestrator

import (
	"context"
	"fmt"
	"log"

	"github.com/erentorlak/todv2/internal/catalog"
	"github.com/erentorlak/todv2/pkg/models"
)

// route decides the next stage from session state. The checks run in a
// fixed priority order on every hop.
func (e *Engine) route(ctx context.Context, t *turn) Stage {
	s := t.s

	if s.Context.EndConversation || IsFarewell(t.utterance) {
		s.Context.EndConversation = true
		if t.replies == 0 {
			e.say(t, models.ResponseFarewell, farewellReply)
		}
		return StageDone
	}

	if p := s.Context.AwaitingConfirmation; p != nil && !t.decided {
		return e.resolveSwitch(t, *p)
	}

	if s.CurrentIntent != "" && s.Context.AllToolsCompleted && s.Context.ResultsComposed {
		e.retire(s)
	}

	classified := e.classify(ctx, t)

	if s.CurrentIntent == "" {
		switch {
		case classified != "":
			e.activate(t, classified)
			return StageSchedule
		case len(s.PausedIntents) > 0:
			resume := s.PausedIntents[len(s.PausedIntents)-1].Intent
			log.Printf("[router] %s: resuming paused intent %s", s.ID, resume)
			e.activate(t, resume)
			// The utterance was not addressed to the resumed intent.
			t.noPenalty = true
			return StageSchedule
		default:
			return StageCompose
		}
	}

	if classified != "" && classified != s.CurrentIntent {
		return e.proposeSwitch(t, classified)
	}

	switch {
	case !s.Context.Scheduled:
		return StageSchedule
	case len(s.MissingParameters()) > 0:
		if t.filled {
			return StageDone
		}
		return StageFillSlots
	case !s.Context.AllToolsCompleted && !t.batchFailed:
		return StageExecute
	case (len(s.ToolResults) > 0 || s.Context.AllToolsCompleted) && !s.Context.ResultsComposed:
		return StageCompose
	default:
		return StageDone
	}
}

// classify runs once per turn: keyword matching first, then the
// classifier. Failures and unknown labels mean no intent.
func (e *Engine) classify(ctx context.Context, t *turn) string {
	if t.classified {
		return t.intent
	}
	t.classified = true
	if t.decided {
		return ""
	}

	intents := e.catalog.Intents()
	intent := catalog.MatchKeywords(t.utterance, intents)
	if intent == "" && e.classifier != nil {
		var err error
		intent, err = e.classifier.Classify(ctx, t.utterance, intents)
		if err != nil {
			log.Printf("[router] %s: classification failed: %v", t.s.ID, err)
			intent = ""
		}
	}
	if intent != "" {
		if _, err := e.catalog.DescribeIntent(intent); err != nil {
			log.Printf("[router] %s: ignoring classification: %v", t.s.ID, err)
			intent = ""
		}
	}
	t.intent = intent
	return intent
}

// proposeSwitch asks before leaving the current intent.
func (e *Engine) proposeSwitch(t *turn, to string) Stage {
	s := t.s
	from := s.CurrentIntent
	s.Context.AwaitingConfirmation = &models.SwitchProposal{From: from, To: to, Utterance: t.utterance}
	e.metrics.IncIntentSwitch("proposed")
	e.emitter.Emit(EngineEvent{Type: EventSwitchProposed, SessionID: s.ID, Intent: from, Message: to})

	current, next := e.displayName(from), e.displayName(to)
	e.say(t, models.ResponseConfirmation, fmt.Sprintf(
		"I notice you want to start %s, but we were working on %s. Would you like me to pause the %s and start %s? (Reply with 'yes' to switch or 'no' to continue with %s)",
		next, current, current, next, current))
	return StageDone
}

// resolveSwitch interprets the reply to a pending switch proposal.
func (e *Engine) resolveSwitch(t *turn, p models.SwitchProposal) Stage {
	s := t.s
	switch ParseAnswer(t.utterance) {
	case AnswerYes:
		t.decided = true
		e.metrics.IncIntentSwitch("accepted")
		e.emitter.Emit(EngineEvent{Type: EventSwitchResolved, SessionID: s.ID, Intent: p.To, Message: "accepted"})
		e.switchIntent(t, p)
		return StageSchedule
	case AnswerNo:
		t.decided = true
		t.noPenalty = true
		s.Context.AwaitingConfirmation = nil
		e.metrics.IncIntentSwitch("declined")
		e.emitter.Emit(EngineEvent{Type: EventSwitchResolved, SessionID: s.ID, Intent: s.CurrentIntent, Message: "declined"})
		if !s.Context.Scheduled {
			return StageSchedule
		}
		return StageFillSlots
	default:
		e.say(t, models.ResponseReconfirmation, confirmReask)
		return StageDone
	}
}

// switchIntent pauses the current intent and makes p.To current.
func (e *Engine) switchIntent(t *turn, p models.SwitchProposal) {
	s := t.s
	if s.CurrentIntent != "" {
		paused := models.PausedIntent{
			Intent:        s.CurrentIntent,
			Parameters:    s.ExtractedParameters,
			SelectedTools: s.SelectedTools,
			PausedAt:      models.PausedAtParameterCollection,
		}
		if i := s.FindPaused(s.CurrentIntent); i >= 0 {
			s.PausedIntents = append(s.PausedIntents[:i], s.PausedIntents[i+1:]...)
		}
		s.PausedIntents = append(s.PausedIntents, paused)
		log.Printf("[router] %s: paused %s with %d parameters", s.ID, s.CurrentIntent, len(paused.Parameters))
	}
	s.CurrentIntent = ""
	s.ResetWorkingState()
	e.activate(t, p.To)
	if p.Utterance != "" {
		t.utterance = p.Utterance
	}
}

// activate makes intent current, restoring its paused state if any.
func (e *Engine) activate(t *turn, intent string) {
	s := t.s
	s.ResetWorkingState()
	s.CurrentIntent = intent
	if i := s.FindPaused(intent); i >= 0 {
		p := s.PausedIntents[i]
		s.PausedIntents = append(s.PausedIntents[:i], s.PausedIntents[i+1:]...)
		for k, v := range p.Parameters {
			s.ExtractedParameters[k] = v
		}
		s.SelectedTools = append([]string(nil), p.SelectedTools...)
		log.Printf("[router] %s: restored paused intent %s", s.ID, intent)
	}
	e.emitter.Emit(EngineEvent{Type: EventIntentDetected, SessionID: s.ID, Intent: intent})
}

// retire moves a finished intent to the completed list.
func (e *Engine) retire(s *models.Session) {
	log.Printf("[router] %s: %s completed", s.ID, s.CurrentIntent)
	s.CompletedIntents = append(s.CompletedIntents, s.CurrentIntent)
	s.CurrentIntent = ""
	s.ResetWorkingState()
}

// abandon drops the current intent after a terminal failure.
func (e *Engine) abandon(s *models.Session) {
	s.CurrentIntent = ""
	s.ResetWorkingState()
}

func (e *Engine) displayName(intent string) string {
	spec, err := e.catalog.DescribeIntent(intent)
	if err != nil {
		return intent
	}
	return spec.DisplayName()
}
