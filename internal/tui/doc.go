// Package tui provides the terminal chat interface for tod.
//
// The chat shows the transcript in a scrolling viewport, a one-line prompt,
// and a small activity pane fed by engine events:
//
//	program, app := tui.NewChatProgram(turn, sessionID)
//	go tui.ForwardEvents(ctx, program, emitter.Events())
//	_, err := program.Run()
//
// Turns run as commands off the update loop, so the UI keeps rendering while
// the engine works. The program quits when the engine reports the
// conversation ended, or on Ctrl+C.
package tui
