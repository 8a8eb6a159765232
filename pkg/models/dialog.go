package models

import "time"

// Role identifies who authored a message.
type Role string

const (
	// RoleUser marks an inbound utterance.
	RoleUser Role = "user"
	// RoleAssistant marks a reply produced by the engine.
	RoleAssistant Role = "assistant"
)

// Message is a single turn of the conversation.
type Message struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// ResponseKind records what the engine said last.
type ResponseKind string

const (
	ResponseNone           ResponseKind = ""
	ResponseClarification  ResponseKind = "clarification"
	ResponseParamFailure   ResponseKind = "parameter_failure"
	ResponseConfirmation   ResponseKind = "confirmation_request"
	ResponseReconfirmation ResponseKind = "confirmation_reask"
	ResponseAcknowledgment ResponseKind = "acknowledgment"
	ResponseSummary        ResponseKind = "summary"
	ResponseIdle           ResponseKind = "idle"
	ResponseSetupFailure   ResponseKind = "setup_failure"
	ResponseFarewell       ResponseKind = "farewell"
)

// PauseStage names where a paused intent was interrupted.
type PauseStage string

// PausedAtParameterCollection is the only pause point the router produces.
const PausedAtParameterCollection PauseStage = "parameter_collection"

// PausedIntent is an intent set aside by a confirmed switch.
type PausedIntent struct {
	Intent        string            `json:"intent"`
	Parameters    map[string]string `json:"parameters,omitempty"`
	SelectedTools []string          `json:"selected_tools,omitempty"`
	PausedAt      PauseStage        `json:"paused_at"`
}

// SwitchProposal is a pending request to move from one intent to another.
type SwitchProposal struct {
	From string `json:"from"`
	To   string `json:"to"`
	// Utterance is the request that triggered the proposal. It is replayed
	// to the new intent once the switch is confirmed.
	Utterance string `json:"utterance,omitempty"`
}

// ToolResult is the outcome of one tool invocation.
type ToolResult struct {
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// SchedulingStall records a tool that was force-scheduled because its
// requirements could not be met by earlier batches.
type SchedulingStall struct {
	Tool    string   `json:"tool"`
	Missing []string `json:"missing"`
}

// DialogContext holds the auxiliary per-intent bookkeeping of a session.
type DialogContext struct {
	// RetryCounts counts clarification rounds per parameter.
	RetryCounts map[string]int `json:"retry_counts,omitempty"`
	// RequiredParameters lists the required schema parameters in schema order.
	RequiredParameters []string `json:"required_parameters,omitempty"`
	// Scheduled is set once the current intent's tools have been planned,
	// including intents that declare no tools.
	Scheduled bool `json:"scheduled"`
	// ExecutionOrder is the batch plan for the selected tools.
	ExecutionOrder [][]string `json:"execution_order,omitempty"`
	// CurrentBatchIndex points at the next batch to run.
	CurrentBatchIndex int      `json:"current_batch_index"`
	CompletedTools    []string `json:"completed_tools,omitempty"`
	// AwaitingConfirmation is set while an intent switch waits for a yes/no.
	AwaitingConfirmation *SwitchProposal `json:"awaiting_confirmation,omitempty"`
	LastResponseKind     ResponseKind    `json:"last_response_kind,omitempty"`
	AllToolsCompleted    bool            `json:"all_tools_completed"`
	// ResultsComposed is cleared whenever new tool results arrive.
	ResultsComposed bool              `json:"results_composed"`
	EndConversation bool              `json:"end_conversation"`
	FailedParameter string            `json:"failed_parameter,omitempty"`
	Stalls          []SchedulingStall `json:"stalls,omitempty"`
}

// Session is one conversation thread.
type Session struct {
	ID                  string                `json:"id"`
	Messages            []Message             `json:"messages"`
	CurrentIntent       string                `json:"current_intent,omitempty"`
	PausedIntents       []PausedIntent        `json:"paused_intents,omitempty"`
	CompletedIntents    []string              `json:"completed_intents,omitempty"`
	ExtractedParameters map[string]string     `json:"extracted_parameters,omitempty"`
	SelectedTools       []string              `json:"selected_tools,omitempty"`
	ToolResults         map[string]ToolResult `json:"tool_results,omitempty"`
	Context             DialogContext         `json:"context"`
	Ended               bool                  `json:"ended"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
}

// NewSession returns an empty session with the given ID.
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:                  id,
		ExtractedParameters: make(map[string]string),
		ToolResults:         make(map[string]ToolResult),
		Context:             DialogContext{RetryCounts: make(map[string]int)},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// AddMessage appends a turn to the transcript.
func (s *Session) AddMessage(role Role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content, At: time.Now()})
	s.UpdatedAt = time.Now()
}

// LastMessage returns the most recent message, if any.
func (s *Session) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// LastUserUtterance returns the text of the most recent user message.
func (s *Session) LastUserUtterance() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// MissingParameters returns the required parameters with no non-blank value, in order.
func (s *Session) MissingParameters() []string {
	var missing []string
	for _, p := range s.Context.RequiredParameters {
		if v, ok := s.ExtractedParameters[p]; !ok || v == "" {
			missing = append(missing, p)
		}
	}
	return missing
}

// FindPaused returns the index of the paused entry for intent, or -1.
func (s *Session) FindPaused(intent string) int {
	for i, p := range s.PausedIntents {
		if p.Intent == intent {
			return i
		}
	}
	return -1
}

// ResetWorkingState clears everything scoped to the current intent.
// The intent itself, paused intents and the transcript are left alone.
func (s *Session) ResetWorkingState() {
	s.ExtractedParameters = make(map[string]string)
	s.SelectedTools = nil
	s.ToolResults = make(map[string]ToolResult)
	s.Context = DialogContext{
		RetryCounts:      make(map[string]int),
		LastResponseKind: s.Context.LastResponseKind,
		EndConversation:  s.Context.EndConversation,
	}
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	c.Messages = append([]Message(nil), s.Messages...)
	c.CompletedIntents = append([]string(nil), s.CompletedIntents...)
	c.SelectedTools = append([]string(nil), s.SelectedTools...)
	c.ExtractedParameters = cloneStrings(s.ExtractedParameters)
	c.ToolResults = make(map[string]ToolResult, len(s.ToolResults))
	for k, v := range s.ToolResults {
		c.ToolResults[k] = v
	}
	c.PausedIntents = make([]PausedIntent, len(s.PausedIntents))
	for i, p := range s.PausedIntents {
		p.Parameters = cloneStrings(p.Parameters)
		p.SelectedTools = append([]string(nil), p.SelectedTools...)
		c.PausedIntents[i] = p
	}
	c.Context.RetryCounts = make(map[string]int, len(s.Context.RetryCounts))
	for k, v := range s.Context.RetryCounts {
		c.Context.RetryCounts[k] = v
	}
	c.Context.RequiredParameters = append([]string(nil), s.Context.RequiredParameters...)
	c.Context.CompletedTools = append([]string(nil), s.Context.CompletedTools...)
	c.Context.ExecutionOrder = make([][]string, len(s.Context.ExecutionOrder))
	for i, b := range s.Context.ExecutionOrder {
		c.Context.ExecutionOrder[i] = append([]string(nil), b...)
	}
	c.Context.Stalls = append([]SchedulingStall(nil), s.Context.Stalls...)
	if s.Context.AwaitingConfirmation != nil {
		p := *s.Context.AwaitingConfirmation
		c.Context.AwaitingConfirmation = &p
	}
	return &c
}

func cloneStrings(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
