package orchestrator

import "errors"

var (
	// ErrSessionEnded indicates a turn was sent to a conversation that already ended.
	ErrSessionEnded = errors.New("session has ended")
	// ErrEmptyUtterance indicates a turn with no text.
	ErrEmptyUtterance = errors.New("empty utterance")
	// ErrSessionNotFound indicates an unknown session ID.
	ErrSessionNotFound = errors.New("session not found")
)
