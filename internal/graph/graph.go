// Package graph plans tool execution from tag-based dependencies.
//
// A tool names the tags it requires and the single tag it returns. A tool is
// ready once every tag it requires has been returned by a tool in an earlier
// batch. Ready tools are grouped into batches that may run concurrently.
package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCycleDetected indicates the tag graph contains a circular dependency.
	ErrCycleDetected = errors.New("circular dependency detected")
	// ErrSchedulingStall indicates a tool had to be force-scheduled.
	ErrSchedulingStall = errors.New("scheduling stall")
	// ErrDuplicateNode indicates two nodes share a name.
	ErrDuplicateNode = errors.New("duplicate tool")
)

// Node is one schedulable tool.
type Node struct {
	Name     string
	Requires []string
	Returns  string
}

// Stall records a tool that was scheduled without its requirements met.
type Stall struct {
	Tool    string
	Missing []string
}

// Err returns the stall as an error wrapping ErrSchedulingStall.
func (s Stall) Err() error {
	return fmt.Errorf("%w: %s forced without %s", ErrSchedulingStall, s.Tool, strings.Join(s.Missing, ", "))
}

// Plan is the ordered batch plan for a set of tools.
type Plan struct {
	Batches [][]string
	Stalls  []Stall
}

// DependencyGraph holds tools and the producers of each tag.
type DependencyGraph struct {
	nodes []Node
	index map[string]int
	// producers maps a tag to the tools returning it.
	producers map[string][]string
	debugLog  func(format string, args ...interface{})
}

// New creates an empty graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		index:     make(map[string]int),
		producers: make(map[string][]string),
		debugLog:  func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (g *DependencyGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build registers nodes in declaration order.
func (g *DependencyGraph) Build(nodes []Node) error {
	for _, n := range nodes {
		if _, dup := g.index[n.Name]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateNode, n.Name)
		}
		g.index[n.Name] = len(g.nodes)
		g.nodes = append(g.nodes, n)
		if n.Returns != "" {
			g.producers[n.Returns] = append(g.producers[n.Returns], n.Name)
		}
	}
	g.debugLog("[graph.Build] %d tools, producers=%v", len(g.nodes), g.producers)
	return nil
}

// Size returns the number of tools in the graph.
func (g *DependencyGraph) Size() int {
	return len(g.nodes)
}

// Batches computes the execution plan. It always terminates: when no
// remaining tool is ready, the first remaining tool in declaration order is
// placed in a batch of its own and a Stall is recorded.
func (g *DependencyGraph) Batches() Plan {
	var plan Plan
	produced := make(map[string]bool)
	scheduled := make([]bool, len(g.nodes))
	remaining := len(g.nodes)

	for remaining > 0 {
		var batch []string
		var returned []string
		for i, n := range g.nodes {
			if scheduled[i] || len(missingTags(n, produced)) > 0 {
				continue
			}
			batch = append(batch, n.Name)
			returned = append(returned, n.Returns)
			scheduled[i] = true
		}

		if len(batch) == 0 {
			for i, n := range g.nodes {
				if scheduled[i] {
					continue
				}
				stall := Stall{Tool: n.Name, Missing: missingTags(n, produced)}
				g.debugLog("[graph.Batches] stall: forcing %s, missing %v", n.Name, stall.Missing)
				plan.Stalls = append(plan.Stalls, stall)
				batch = []string{n.Name}
				returned = []string{n.Returns}
				scheduled[i] = true
				break
			}
		}

		// Tags become visible only to later batches.
		for _, tag := range returned {
			if tag != "" {
				produced[tag] = true
			}
		}
		remaining -= len(batch)
		plan.Batches = append(plan.Batches, batch)
		g.debugLog("[graph.Batches] batch %d: %v", len(plan.Batches)-1, batch)
	}
	return plan
}

func missingTags(n Node, produced map[string]bool) []string {
	var missing []string
	for _, tag := range n.Requires {
		if !produced[tag] {
			missing = append(missing, tag)
		}
	}
	return missing
}

// Unsatisfied returns, per tool, the required tags that no tool in the graph returns.
func (g *DependencyGraph) Unsatisfied() map[string][]string {
	out := make(map[string][]string)
	for _, n := range g.nodes {
		for _, tag := range n.Requires {
			if len(g.producers[tag]) == 0 {
				out[n.Name] = append(out[n.Name], tag)
			}
		}
	}
	return out
}

// GetDependencies returns the tools that produce the tags name requires.
func (g *DependencyGraph) GetDependencies(name string) []string {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	var deps []string
	for _, tag := range g.nodes[i].Requires {
		deps = append(deps, g.producers[tag]...)
	}
	return deps
}

// HasCycle returns true if the tag graph contains a circular dependency.
// Uses depth-first search with coloring to detect back edges.
func (g *DependencyGraph) HasCycle() bool {
	// 0 = unvisited, 1 = in progress, 2 = done.
	colors := make(map[string]int, len(g.nodes))

	var visit func(name string) bool
	visit = func(name string) bool {
		colors[name] = 1
		for _, dep := range g.GetDependencies(name) {
			switch colors[dep] {
			case 1:
				return true
			case 0:
				if visit(dep) {
					return true
				}
			}
		}
		colors[name] = 2
		return false
	}

	for _, n := range g.nodes {
		if colors[n.Name] == 0 && visit(n.Name) {
			return true
		}
	}
	return false
}

// Schedule builds a graph from nodes and returns its plan.
func Schedule(nodes []Node) (Plan, error) {
	g := New()
	if err := g.Build(nodes); err != nil {
		return Plan{}, err
	}
	return g.Batches(), nil
}
