package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/erentorlak/todv2/internal/config"
	"github.com/erentorlak/todv2/internal/orchestrator"
	"github.com/erentorlak/todv2/internal/tui"
)

var (
	chatSessionID string
	chatTUI       bool
	chatDebug     bool
	chatDebugLog  string
	chatEphemeral bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Start an interactive conversation in the terminal.

By default a plain line-by-line prompt is used. With --tui, a full-screen
chat with a live activity pane is shown instead.

Sessions are persisted, so a conversation can be continued later with
--session. Type quit, exit, bye or goodbye to end the conversation.`,
	RunE: runChat,
}

func addChatFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&chatSessionID, "session", "", "Continue an existing session")
	cmd.Flags().BoolVar(&chatTUI, "tui", false, "Use the full-screen chat interface")
	cmd.Flags().BoolVar(&chatDebug, "debug", false, "Trace stage transitions and print session state after each turn")
	cmd.Flags().StringVar(&chatDebugLog, "debug-log", "", "Write the debug trace to this file instead of stderr")
	cmd.Flags().BoolVar(&chatEphemeral, "ephemeral", false, "Keep the session in memory only")
}

func init() {
	addChatFlags(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Ctrl+C keeps its default meaning here; the TUI handles it itself.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := appOptions{ephemeral: chatEphemeral, events: chatTUI}
	if chatDebug || chatDebugLog != "" {
		opts.debugLog = chatDebugLog
		if opts.debugLog == "" {
			if chatTUI {
				opts.debugLog = "tod-debug.log"
			} else {
				opts.trace = os.Stderr
			}
		}
	}

	a, err := newApp(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	sessionID, err := openSession(a.engine, chatSessionID)
	if err != nil {
		return err
	}

	if chatTUI {
		return runChatTUI(ctx, a, sessionID)
	}
	return runREPL(ctx, a, sessionID, os.Stdin, os.Stdout)
}

// openSession resumes id, or starts a fresh session when id is empty.
func openSession(engine *orchestrator.Engine, id string) (string, error) {
	if id == "" {
		s, err := engine.NewSession()
		if err != nil {
			return "", fmt.Errorf("create session: %w", err)
		}
		return s.ID, nil
	}
	s, err := engine.Session(id)
	if err != nil {
		return "", err
	}
	if s.Ended {
		return "", fmt.Errorf("session %s has ended; start a new one without --session", id)
	}
	return s.ID, nil
}

func runChatTUI(ctx context.Context, a *app, sessionID string) error {
	turn := func(ctx context.Context, text string) (orchestrator.Reply, error) {
		return a.engine.Turn(ctx, sessionID, text)
	}
	program, _ := tui.NewChatProgram(turn, sessionID)

	fwdCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go tui.ForwardEvents(fwdCtx, program, a.emitter.Events())

	_, err := program.Run()
	return err
}

func runREPL(ctx context.Context, a *app, sessionID string, in io.Reader, out io.Writer) error {
	bold := color.New(color.Bold)
	you := color.New(color.FgCyan, color.Bold)
	assistant := color.New(color.FgGreen, color.Bold)
	warn := color.New(color.FgYellow)

	bold.Fprintf(out, "tod %s", Version())
	fmt.Fprintf(out, "  session %s  (%s)\n", sessionID, a.backend)
	fmt.Fprintln(out, "Type quit, exit, bye or goodbye to end the conversation.")
	fmt.Fprintln(out)

	scanner := bufio.NewScanner(in)
	for {
		you.Fprint(out, "You: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		reply, err := a.engine.Turn(ctx, sessionID, text)
		switch {
		case errors.Is(err, orchestrator.ErrSessionEnded):
			return nil
		case err != nil:
			warn.Fprintf(out, "Error: %v\n", err)
			continue
		}

		assistant.Fprint(out, "Assistant: ")
		fmt.Fprintln(out, reply.Text)

		if chatDebug {
			if dump, err := a.engine.DumpState(sessionID); err == nil {
				color.New(color.Faint).Fprintln(out, dump)
			}
		}
		if reply.Ended {
			return nil
		}
	}
}
