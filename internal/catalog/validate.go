package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/erentorlak/todv2/internal/graph"
)

// Validate checks the catalogue for references that cannot be resolved.
//
// Every intent tool must exist, every tool parameter must appear in the
// intent schema, and every parameter type must be known. With strict set,
// each intent's tool graph must also be acyclic and every required tag must
// be returned by some tool of the same intent; otherwise the scheduler would
// have to force tools through.
func (r *Registry) Validate(strict bool) error {
	var errs []error
	for _, in := range r.intents {
		for _, p := range in.Parameters {
			if !p.Type.Known() {
				errs = append(errs, fmt.Errorf("%w: intent %s parameter %s has unknown type %q",
					ErrInvalidCatalog, in.Name, p.Name, p.Type))
			}
		}

		nodes, err := r.Nodes(in.Name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, toolName := range in.Tools {
			tool, _ := r.DescribeTool(toolName)
			for _, param := range tool.Parameters {
				if _, ok := in.Param(param); !ok {
					errs = append(errs, fmt.Errorf("%w: tool %s needs %s which intent %s does not collect",
						ErrInvalidCatalog, toolName, param, in.Name))
				}
			}
		}

		if !strict {
			continue
		}
		g := graph.New()
		if err := g.Build(nodes); err != nil {
			errs = append(errs, fmt.Errorf("intent %s: %w", in.Name, err))
			continue
		}
		unsatisfied := g.Unsatisfied()
		tools := make([]string, 0, len(unsatisfied))
		for tool := range unsatisfied {
			tools = append(tools, tool)
		}
		sort.Strings(tools)
		for _, tool := range tools {
			errs = append(errs, fmt.Errorf("%w: intent %s tool %s requires %s",
				ErrUnsatisfiableDependency, in.Name, tool, strings.Join(unsatisfied[tool], ", ")))
		}
		if g.HasCycle() {
			errs = append(errs, fmt.Errorf("%w: intent %s: %v", ErrUnsatisfiableDependency, in.Name, graph.ErrCycleDetected))
		}
	}
	return errors.Join(errs...)
}

// Nodes resolves an intent's tools into scheduler nodes in declaration order.
func (r *Registry) Nodes(intent string) ([]graph.Node, error) {
	return NodesFor(r, intent)
}

// NodesFor resolves an intent's tools through any Describer.
func NodesFor(d Describer, intent string) ([]graph.Node, error) {
	in, err := d.DescribeIntent(intent)
	if err != nil {
		return nil, err
	}
	nodes := make([]graph.Node, 0, len(in.Tools))
	for _, name := range in.Tools {
		tool, err := d.DescribeTool(name)
		if err != nil {
			return nil, fmt.Errorf("intent %s: %w", intent, err)
		}
		nodes = append(nodes, graph.Node{Name: tool.Name, Requires: tool.Requires, Returns: tool.Returns})
	}
	return nodes, nil
}
