// Package api provides the language-model backends behind the dialog capabilities.
package api

import (
	"context"
	"errors"
	"sync"
)

// ErrNoBackend is returned by the offline backend for every call.
var ErrNoBackend = errors.New("no language model backend configured")

// Role selects the sampling settings for a call. Each dialog capability
// speaks with its own role.
type Role string

const (
	RoleSupervisor     Role = "supervisor"
	RoleInputParameter Role = "input_parameter"
	RoleToolChoosing   Role = "tool_choosing"
	RoleGeneration     Role = "generation"
)

// RoleSettings are the sampling parameters for one role.
type RoleSettings struct {
	Temperature float64
	MaxTokens   int64
}

// DefaultRoles returns the built-in per-role settings.
func DefaultRoles() map[Role]RoleSettings {
	return map[Role]RoleSettings{
		RoleSupervisor:     {Temperature: 0.1, MaxTokens: 50},
		RoleInputParameter: {Temperature: 0.2, MaxTokens: 100},
		RoleToolChoosing:   {Temperature: 0.1, MaxTokens: 200},
		RoleGeneration:     {Temperature: 0.7, MaxTokens: 500},
	}
}

// Request is a single-shot completion.
type Request struct {
	Role   Role
	System string
	Prompt string
}

// Completer produces one text completion per request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Offline is a Completer that always fails with ErrNoBackend. Callers fall
// back to their deterministic paths.
type Offline struct{}

// Complete implements Completer.
func (Offline) Complete(context.Context, Request) (string, error) {
	return "", ErrNoBackend
}

func settingsFor(roles map[Role]RoleSettings, role Role) RoleSettings {
	if s, ok := roles[role]; ok {
		return s
	}
	return DefaultRoles()[role]
}

// TokenTracker tracks token usage across API calls.
type TokenTracker struct {
	mu        sync.Mutex
	inputTok  int64
	outputTok int64
	calls     int
}

// NewTokenTracker creates a new token tracker.
func NewTokenTracker() *TokenTracker {
	return &TokenTracker{}
}

// Add records token usage from an API call.
func (t *TokenTracker) Add(input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputTok += input
	t.outputTok += output
	t.calls++
}

// Total returns the total input and output tokens tracked.
func (t *TokenTracker) Total() (input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inputTok, t.outputTok
}

// Calls returns the number of API calls made.
func (t *TokenTracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}
