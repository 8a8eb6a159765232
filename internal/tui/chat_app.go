package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/erentorlak/todv2/internal/orchestrator"
)

// maxActivity is how many engine events the activity pane keeps.
const maxActivity = 8

var (
	promptStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255")).Background(lipgloss.Color("62")).Padding(0, 1)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// TurnFunc sends one utterance to the engine.
type TurnFunc func(ctx context.Context, text string) (orchestrator.Reply, error)

// ReplyMsg carries the engine's answer to a submitted utterance.
type ReplyMsg struct {
	Reply orchestrator.Reply
	Err   error
}

// EventMsg forwards an engine event into the program.
type EventMsg struct {
	Event orchestrator.EngineEvent
}

type line struct {
	user bool
	err  bool
	text string
}

// ChatApp is the bubbletea model for an interactive dialog session.
type ChatApp struct {
	turn      TurnFunc
	sessionID string
	intent    string

	input    *InputField
	viewport viewport.Model
	spinner  spinner.Model

	lines    []line
	activity []string
	waiting  bool
	ended    bool
	width    int
	height   int
}

// NewChatApp creates a chat model bound to one session.
func NewChatApp(turn TurnFunc, sessionID string) *ChatApp {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = dimStyle

	return &ChatApp{
		turn:      turn,
		sessionID: sessionID,
		input:     NewInputField(),
		viewport:  viewport.New(80, 20),
		spinner:   sp,
		width:     80,
		height:    24,
	}
}

// Init implements tea.Model.
func (a *ChatApp) Init() tea.Cmd {
	return a.input.Focus()
}

// Update implements tea.Model.
func (a *ChatApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return a, tea.Quit
		case "pgup", "pgdown":
			var cmd tea.Cmd
			a.viewport, cmd = a.viewport.Update(msg)
			return a, cmd
		}
		if a.waiting || a.ended {
			return a, nil
		}
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		return a, cmd

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.updateSizes()
		return a, nil

	case UtteranceSubmittedMsg:
		a.append(line{user: true, text: msg.Text})
		a.waiting = true
		return a, tea.Batch(a.send(msg.Text), a.spinner.Tick)

	case ReplyMsg:
		a.waiting = false
		if msg.Err != nil {
			a.append(line{err: true, text: msg.Err.Error()})
			return a, nil
		}
		if msg.Reply.Text != "" {
			a.append(line{text: msg.Reply.Text})
		}
		if msg.Reply.Ended {
			a.ended = true
			a.input.Blur()
			return a, tea.Quit
		}
		return a, nil

	case EventMsg:
		a.recordEvent(msg.Event)
		return a, nil

	case spinner.TickMsg:
		if !a.waiting {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}
	return a, nil
}

// send runs the turn off the update loop.
func (a *ChatApp) send(text string) tea.Cmd {
	turn := a.turn
	return func() tea.Msg {
		reply, err := turn(context.Background(), text)
		return ReplyMsg{Reply: reply, Err: err}
	}
}

func (a *ChatApp) append(l line) {
	a.lines = append(a.lines, l)
	a.viewport.SetContent(a.renderTranscript())
	a.viewport.GotoBottom()
}

func (a *ChatApp) recordEvent(ev orchestrator.EngineEvent) {
	if ev.Intent != "" {
		a.intent = ev.Intent
	}
	if ev.Type == orchestrator.EventTurnCompleted && ev.Intent == "" {
		a.intent = ""
	}

	entry := fmt.Sprintf("%s %s", ev.Timestamp.Format("15:04:05"), ev.Type)
	switch {
	case len(ev.Tools) > 0:
		entry += " " + strings.Join(ev.Tools, ",")
		if len(ev.Failed) > 0 {
			entry += " (failed: " + strings.Join(ev.Failed, ",") + ")"
		}
	case ev.Type == orchestrator.EventTurnCompleted:
		entry += " in " + ev.Duration.Round(time.Millisecond).String()
	case ev.Intent != "":
		entry += " " + ev.Intent
	}
	a.activity = append(a.activity, entry)
	if len(a.activity) > maxActivity {
		a.activity = a.activity[len(a.activity)-maxActivity:]
	}
	a.updateSizes()
}

func (a *ChatApp) renderTranscript() string {
	width := a.viewport.Width
	if width <= 0 {
		width = 80
	}
	body := lipgloss.NewStyle().Width(width)

	var sb strings.Builder
	for i, l := range a.lines {
		if i > 0 {
			sb.WriteString("\n")
		}
		switch {
		case l.user:
			sb.WriteString(body.Render(userStyle.Render("You: ") + l.text))
		case l.err:
			sb.WriteString(body.Render(errorStyle.Render("Error: " + l.text)))
		default:
			sb.WriteString(body.Render(assistantStyle.Render("Assistant: ") + l.text))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// updateSizes lays out header, transcript, activity pane and input.
func (a *ChatApp) updateSizes() {
	const headerHeight, inputHeight = 1, 3
	activityHeight := len(a.activity)
	if activityHeight > 0 {
		activityHeight++ // separator
	}
	vh := a.height - headerHeight - inputHeight - activityHeight - 1
	if vh < 3 {
		vh = 3
	}
	a.viewport.Width = a.width
	a.viewport.Height = vh
	a.input.SetWidth(a.width)
	a.viewport.SetContent(a.renderTranscript())
	a.viewport.GotoBottom()
}

// View implements tea.Model.
func (a *ChatApp) View() string {
	title := "tod"
	if a.sessionID != "" {
		title += "  session " + a.sessionID
	}
	if a.intent != "" {
		title += "  intent " + a.intent
	}
	parts := []string{headerStyle.Width(a.width).Render(title), a.viewport.View()}

	if len(a.activity) > 0 {
		parts = append(parts, dimStyle.Render(strings.Repeat("─", max(a.width, 1))))
		parts = append(parts, dimStyle.Render(strings.Join(a.activity, "\n")))
	}

	switch {
	case a.ended:
		parts = append(parts, dimStyle.Render("Conversation ended."))
	case a.waiting:
		parts = append(parts, a.spinner.View()+dimStyle.Render(" thinking..."))
	default:
		parts = append(parts, a.input.View())
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// Transcript returns the rendered conversation lines, without styling.
func (a *ChatApp) Transcript() []string {
	out := make([]string, 0, len(a.lines))
	for _, l := range a.lines {
		switch {
		case l.user:
			out = append(out, "You: "+l.text)
		case l.err:
			out = append(out, "Error: "+l.text)
		default:
			out = append(out, "Assistant: "+l.text)
		}
	}
	return out
}

// NewChatProgram creates a bubbletea program for a chat session.
func NewChatProgram(turn TurnFunc, sessionID string) (*tea.Program, *ChatApp) {
	app := NewChatApp(turn, sessionID)
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}

// ForwardEvents relays engine events into the program until the channel
// closes or ctx is done.
func ForwardEvents(ctx context.Context, p *tea.Program, events <-chan orchestrator.EngineEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.Send(EventMsg{Event: ev})
		}
	}
}
