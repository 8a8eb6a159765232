package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/erentorlak/todv2/internal/capability"
	"github.com/erentorlak/todv2/internal/catalog"
	"github.com/erentorlak/todv2/internal/compose"
	"github.com/erentorlak/todv2/internal/executor"
	"github.com/erentorlak/todv2/internal/slots"
	"github.com/erentorlak/todv2/internal/state"
	"github.com/erentorlak/todv2/pkg/models"
)

// defaultMaxHops bounds the stage transitions of one turn. A well-formed
// turn needs far fewer; hitting the bound means a routing loop.
const defaultMaxHops = 32

// Reply is the engine's answer to one utterance.
type Reply struct {
	SessionID string `json:"session_id"`
	Text      string `json:"reply"`
	Ended     bool   `json:"ended"`
}

// Engine drives dialog sessions.
type Engine struct {
	catalog    catalog.Describer
	store      state.SessionStore
	classifier capability.Classifier
	extractor  capability.Extractor
	filler     *slots.Filler
	executor   *executor.Executor
	composer   *compose.Composer
	metrics    *Metrics
	logger     *DebugLogger
	emitter    *EventEmitter
	newID      func() string
	maxHops    int

	locksMu sync.Mutex
	locks   map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// New creates an engine. Without an extractor, the offline pattern
// extractor is used; without a classifier, only keyword matching runs;
// without a generator, replies come from templates.
func New(cfg RequiredConfig, opts ...Option) *Engine {
	o := engineOptions{maxHops: defaultMaxHops}
	for _, opt := range opts {
		opt(&o)
	}
	if o.extractor == nil {
		o.extractor = capability.PatternExtractor{}
	}
	if o.newID == nil {
		o.newID = func() string { return uuid.New().String() }
	}
	if o.logger == nil {
		o.logger = NopLogger()
	}

	return &Engine{
		catalog:    cfg.Catalog,
		store:      cfg.Store,
		classifier: o.classifier,
		extractor:  o.extractor,
		filler:     slots.New(o.extractor, o.maxRetries),
		executor:   executor.New(cfg.Catalog, cfg.Tools, o.maxParallel),
		composer:   compose.New(cfg.Catalog, o.generator),
		metrics:    o.metrics,
		logger:     o.logger,
		emitter:    o.emitter,
		newID:      o.newID,
		maxHops:    o.maxHops,
		locks:      make(map[string]*sessionLock),
	}
}

// Catalog returns the catalogue the engine routes against.
func (e *Engine) Catalog() catalog.Describer {
	return e.catalog
}

// turn carries per-turn routing flags. None of it is persisted.
type turn struct {
	s         *models.Session
	utterance string
	// classified is set once the utterance has been classified this turn.
	classified bool
	intent     string
	// decided is set when the utterance answered a switch proposal.
	decided bool
	// noPenalty is set when the utterance was not an answer to the current
	// intent, so a fruitless fill does not count against the ceiling.
	noPenalty   bool
	filled      bool
	batchFailed bool
	replies     int
}

// NewSession creates and stores an empty session.
func (e *Engine) NewSession() (*models.Session, error) {
	s := models.NewSession(e.newID())
	if err := e.store.CreateSession(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Session returns a stored session.
func (e *Engine) Session(id string) (*models.Session, error) {
	s, err := e.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Turn processes one user utterance. An empty sessionID starts a new
// session; an unknown one is created under that ID.
func (e *Engine) Turn(ctx context.Context, sessionID, utterance string) (Reply, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return Reply{SessionID: sessionID}, ErrEmptyUtterance
	}
	if sessionID == "" {
		sessionID = e.newID()
	}

	unlock := e.lock(sessionID)
	defer unlock()

	start := time.Now()
	e.metrics.turnStarted()
	defer e.metrics.turnFinished()

	s, err := e.store.GetSession(sessionID)
	if err != nil {
		e.metrics.ObserveTurn("error", time.Since(start))
		return Reply{SessionID: sessionID}, fmt.Errorf("load session: %w", err)
	}
	if s == nil {
		s = models.NewSession(sessionID)
	}
	if s.Ended {
		return Reply{SessionID: sessionID, Ended: true}, ErrSessionEnded
	}

	s.AddMessage(models.RoleUser, utterance)
	e.emitter.Emit(EngineEvent{Type: EventTurnStarted, SessionID: s.ID, Intent: s.CurrentIntent, Message: utterance})
	e.logger.Log("[%s] user: %s", s.ID, utterance)

	t := &turn{s: s, utterance: utterance}
	e.dispatch(ctx, t)

	reply := e.finish(t)

	if err := e.store.SaveSession(s); err != nil {
		e.metrics.ObserveTurn("error", time.Since(start))
		return reply, fmt.Errorf("save session: %w", err)
	}

	outcome := "reply"
	if reply.Ended {
		outcome = "ended"
	}
	d := time.Since(start)
	e.metrics.ObserveTurn(outcome, d)
	e.emitter.Emit(EngineEvent{Type: EventTurnCompleted, SessionID: s.ID, Intent: s.CurrentIntent, Message: reply.Text, Duration: d})
	if e.logger.Enabled() {
		e.logger.Log("[%s] state after turn:\n%s", s.ID, dump(s))
	}
	return reply, nil
}

// dispatch runs stages until one returns StageDone.
func (e *Engine) dispatch(ctx context.Context, t *turn) {
	stage := StageRoute
	for hop := 0; hop < e.maxHops; hop++ {
		started := time.Now()
		next := e.step(ctx, t, stage)
		e.metrics.ObserveStage(stage, time.Since(started))
		e.logger.Log("[%s] %s -> %s", t.s.ID, stage, next)
		if next == StageDone {
			return
		}
		stage = next
	}
	log.Printf("[engine] session %s: no terminal stage after %d hops, stopping at %s", t.s.ID, e.maxHops, stage)
	if t.replies == 0 {
		e.say(t, models.ResponseNone, hopLimitFallback)
	}
}

func (e *Engine) step(ctx context.Context, t *turn, stage Stage) Stage {
	switch stage {
	case StageRoute:
		return e.route(ctx, t)
	case StageSchedule:
		return e.schedule(t)
	case StageFillSlots:
		return e.fillSlots(ctx, t)
	case StageExecute:
		return e.execute(ctx, t)
	case StageCompose:
		res := e.composer.Compose(ctx, t.s)
		if res.Appended {
			t.replies++
		}
		if res.Continue {
			return StageRoute
		}
		return StageDone
	default:
		return StageDone
	}
}

// say appends an assistant message produced by the router or a stage.
func (e *Engine) say(t *turn, kind models.ResponseKind, text string) {
	t.s.AddMessage(models.RoleAssistant, text)
	t.s.Context.LastResponseKind = kind
	t.replies++
}

// finish settles the reply for the turn.
func (e *Engine) finish(t *turn) Reply {
	s := t.s
	if t.replies == 0 && !s.Context.EndConversation {
		e.say(t, models.ResponseNone, noReplyFallback)
	}
	s.Ended = s.Context.EndConversation

	var text string
	if t.replies > 0 {
		if last, ok := s.LastMessage(); ok && last.Role == models.RoleAssistant {
			text = last.Content
		}
	}
	return Reply{SessionID: s.ID, Text: text, Ended: s.Ended}
}

// lock serializes turns per session ID.
func (e *Engine) lock(id string) func() {
	e.locksMu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &sessionLock{}
		e.locks[id] = l
	}
	l.refs++
	e.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, id)
		}
		e.locksMu.Unlock()
	}
}

// DeleteSession removes a stored session. Deleting an unknown session is
// not an error.
func (e *Engine) DeleteSession(id string) error {
	unlock := e.lock(id)
	defer unlock()
	return e.store.DeleteSession(id)
}

// ListSessions returns summaries of stored sessions, most recent first.
func (e *Engine) ListSessions() ([]state.SessionInfo, error) {
	return e.store.ListSessions()
}

// DumpState renders a stored session as indented JSON.
func (e *Engine) DumpState(sessionID string) (string, error) {
	s, err := e.Session(sessionID)
	if err != nil {
		return "", err
	}
	return dump(s), nil
}

func dump(s *models.Session) string {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Sprintf("<unencodable session: %v>", err)
	}
	return string(data)
}
