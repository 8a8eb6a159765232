// Package catalog describes the intents and tools the dialog engine can act on.
package catalog

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownIntent indicates an intent name is not in the catalogue.
	ErrUnknownIntent = errors.New("unknown intent")
	// ErrUnknownTool indicates a tool name is not in the catalogue.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrUnsatisfiableDependency indicates a tool requires a tag nothing in its intent returns.
	ErrUnsatisfiableDependency = errors.New("unsatisfiable tool dependency")
	// ErrInvalidCatalog indicates a structurally broken catalogue.
	ErrInvalidCatalog = errors.New("invalid catalog")
)

// ToolSpec is the invocation contract of one tool.
type ToolSpec struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description,omitempty"`
	Parameters  []string `yaml:"parameters" json:"parameters"`
	Requires    []string `yaml:"requires" json:"requires,omitempty"`
	Returns     string   `yaml:"returns" json:"returns,omitempty"`
}

// ParamSpec describes one slot of an intent.
type ParamSpec struct {
	Name        string    `yaml:"name" json:"name"`
	Type        ParamType `yaml:"type" json:"type"`
	Question    string    `yaml:"question" json:"question"`
	Description string    `yaml:"description" json:"description,omitempty"`
	Required    bool      `yaml:"required" json:"required"`
}

// IntentSpec maps an intent to its tools and parameter schema.
type IntentSpec struct {
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description" json:"description"`
	Tools       []string    `yaml:"tools" json:"tools"`
	Parameters  []ParamSpec `yaml:"parameters" json:"parameters"`
	Keywords    []string    `yaml:"keywords" json:"keywords,omitempty"`
}

// Param returns the schema entry for name.
func (i IntentSpec) Param(name string) (ParamSpec, bool) {
	for _, p := range i.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

// RequiredParameters returns required parameter names in schema order.
func (i IntentSpec) RequiredParameters() []string {
	var out []string
	for _, p := range i.Parameters {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

// Question returns the clarification question for a parameter.
func (i IntentSpec) Question(name string) string {
	if p, ok := i.Param(name); ok && p.Question != "" {
		return p.Question
	}
	return fmt.Sprintf("Could you please provide the %s?", name)
}

// DisplayName returns the description, or the name when there is none.
func (i IntentSpec) DisplayName() string {
	if i.Description != "" {
		return i.Description
	}
	return i.Name
}

// Describer is read access to a catalogue.
type Describer interface {
	DescribeTool(name string) (ToolSpec, error)
	DescribeIntent(name string) (IntentSpec, error)
	Intents() []IntentSpec
}

// Registry is an immutable catalogue snapshot. It is safe for concurrent reads.
type Registry struct {
	intents  []IntentSpec
	tools    []ToolSpec
	byIntent map[string]int
	byTool   map[string]int
}

var _ Describer = (*Registry)(nil)

// New builds a registry. Parameter types default to string.
func New(intents []IntentSpec, tools []ToolSpec) (*Registry, error) {
	r := &Registry{
		byIntent: make(map[string]int, len(intents)),
		byTool:   make(map[string]int, len(tools)),
	}
	for _, t := range tools {
		if t.Name == "" {
			return nil, fmt.Errorf("%w: tool with empty name", ErrInvalidCatalog)
		}
		if _, dup := r.byTool[t.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate tool %s", ErrInvalidCatalog, t.Name)
		}
		r.byTool[t.Name] = len(r.tools)
		r.tools = append(r.tools, t)
	}
	for _, in := range intents {
		if in.Name == "" {
			return nil, fmt.Errorf("%w: intent with empty name", ErrInvalidCatalog)
		}
		if _, dup := r.byIntent[in.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate intent %s", ErrInvalidCatalog, in.Name)
		}
		params := make([]ParamSpec, len(in.Parameters))
		for i, p := range in.Parameters {
			if p.Type == "" {
				p.Type = TypeString
			}
			params[i] = p
		}
		in.Parameters = params
		keywords := make([]string, len(in.Keywords))
		for i, kw := range in.Keywords {
			keywords[i] = strings.ToLower(kw)
		}
		in.Keywords = keywords
		r.byIntent[in.Name] = len(r.intents)
		r.intents = append(r.intents, in)
	}
	return r, nil
}

// DescribeTool returns the contract for a tool.
func (r *Registry) DescribeTool(name string) (ToolSpec, error) {
	i, ok := r.byTool[name]
	if !ok {
		return ToolSpec{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return r.tools[i], nil
}

// DescribeIntent returns the tools and schema for an intent.
func (r *Registry) DescribeIntent(name string) (IntentSpec, error) {
	i, ok := r.byIntent[name]
	if !ok {
		return IntentSpec{}, fmt.Errorf("%w: %s", ErrUnknownIntent, name)
	}
	return r.intents[i], nil
}

// Intents returns every intent in declaration order.
func (r *Registry) Intents() []IntentSpec {
	return append([]IntentSpec(nil), r.intents...)
}

// Tools returns every tool in declaration order.
func (r *Registry) Tools() []ToolSpec {
	return append([]ToolSpec(nil), r.tools...)
}

// MatchKeywords scores each intent by the number of its keyword phrases
// found in the utterance. The highest score wins; ties go to the intent
// declared first. Returns "" when nothing matches.
func MatchKeywords(utterance string, intents []IntentSpec) string {
	text := strings.ToLower(utterance)
	best, bestScore := "", 0
	for _, in := range intents {
		score := 0
		for _, kw := range in.Keywords {
			if kw != "" && strings.Contains(text, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = in.Name, score
		}
	}
	return best
}
