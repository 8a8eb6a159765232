// Package tools holds the action functions the dialog engine invokes.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Arg is one parameter value. Absent parameters are passed explicitly
// rather than omitted so a tool can decide how to treat them.
type Arg struct {
	Value   string
	Present bool
}

// Absent is the marker for a parameter with no value.
var Absent = Arg{}

// Some wraps a present value.
func Some(v string) Arg {
	return Arg{Value: v, Present: true}
}

// Args maps every declared parameter of a tool to its value or Absent.
type Args map[string]Arg

// Get returns the value of name and whether it was present.
func (a Args) Get(name string) (string, bool) {
	arg, ok := a[name]
	if !ok || !arg.Present {
		return "", false
	}
	return arg.Value, true
}

// String returns the value of name, or "" when absent.
func (a Args) String(name string) string {
	v, _ := a.Get(name)
	return v
}

// Tool is an invocable action. Invoke always returns a map on success.
type Tool interface {
	Invoke(ctx context.Context, args Args) (map[string]any, error)
}

// Func adapts a function to Tool.
type Func func(ctx context.Context, args Args) (map[string]any, error)

// Invoke implements Tool.
func (f Func) Invoke(ctx context.Context, args Args) (map[string]any, error) {
	return f(ctx, args)
}

// Toolbox maps tool names to implementations. It is safe for concurrent use.
type Toolbox struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewToolbox creates an empty toolbox.
func NewToolbox() *Toolbox {
	return &Toolbox{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool.
func (b *Toolbox) Register(name string, t Tool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tools[name] = t
}

// Lookup returns the tool registered under name.
func (b *Toolbox) Lookup(name string) (Tool, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (b *Toolbox) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.tools))
	for n := range b.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the named tool.
func (b *Toolbox) Invoke(ctx context.Context, name string, args Args) (map[string]any, error) {
	t, ok := b.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("tool %s not found", name)
	}
	return t.Invoke(ctx, args)
}
