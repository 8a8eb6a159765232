package orchestrator

import (
	"time"
)

// EventType represents the type of engine event.
type EventType string

const (
	// EventTurnStarted indicates a user utterance was accepted.
	EventTurnStarted EventType = "turn_started"
	// EventIntentDetected indicates an intent became current.
	EventIntentDetected EventType = "intent_detected"
	// EventSwitchProposed indicates the engine asked to switch intents.
	EventSwitchProposed EventType = "switch_proposed"
	// EventSwitchResolved indicates the user answered a switch proposal.
	EventSwitchResolved EventType = "switch_resolved"
	// EventBatchCompleted indicates a tool batch ran, successfully or not.
	EventBatchCompleted EventType = "batch_completed"
	// EventSchedulingStall indicates a tool was force-scheduled.
	EventSchedulingStall EventType = "scheduling_stall"
	// EventRetryLimit indicates a parameter hit the clarification ceiling.
	EventRetryLimit EventType = "retry_limit"
	// EventTurnCompleted indicates a turn finished.
	EventTurnCompleted EventType = "turn_completed"
)

// EngineEvent represents an event emitted by the engine.
// These events are used to update the TUI and trace sessions.
type EngineEvent struct {
	// Type is the kind of event.
	Type      EventType
	SessionID string
	Intent    string
	// Tools lists the batch members for batch events.
	Tools []string
	// Failed lists the batch members that failed.
	Failed []string
	// Message provides additional context about the event.
	Message   string
	Error     error
	Timestamp time.Time
	Duration  time.Duration
}
