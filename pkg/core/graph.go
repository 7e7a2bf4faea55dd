package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// CompilationError is a problem reported by the external compiler
// front-end alongside the graph it produced. A graph carrying any
// compilation error is refused by the execution-graph builder.
type CompilationError struct {
	// Target names the offending action when known.
	Target  *Target `json:"target,omitempty" yaml:"target,omitempty"`
	Message string  `json:"message" yaml:"message"`
}

func (e CompilationError) Error() string {
	if e.Target != nil {
		return fmt.Sprintf("%s: %s", e.Target.String(), e.Message)
	}
	return e.Message
}

// Graph is the compiled action graph. It is produced once by the
// compiler front-end, normalized, and read-only thereafter; the
// selector and builder share it freely.
type Graph struct {
	Actions           []*Action          `json:"actions" yaml:"actions"`
	CompilationErrors []CompilationError `json:"compilationErrors,omitempty" yaml:"compilation_errors,omitempty"`

	index      map[string]*Action
	dependents map[string][]Target
	assertions map[string][]Target
	normalized bool
}

// NewGraph builds a graph from compiled actions. Call Normalize before
// handing it to the selector or builder.
func NewGraph(actions ...*Action) *Graph {
	return &Graph{Actions: actions}
}

// CompilationErr joins all compiler-reported errors into one error,
// or returns nil when the graph compiled cleanly.
func (g *Graph) CompilationErr() error {
	if len(g.CompilationErrors) == 0 {
		return nil
	}
	errs := make([]error, len(g.CompilationErrors))
	for i, ce := range g.CompilationErrors {
		errs[i] = ce
	}
	return errors.Join(errs...)
}

// Normalize materializes assertion shorthand into dependent assertion
// actions, resolves dependency-assertion ordering, and builds the
// lookup indexes. It is idempotent; the first call mutates the graph,
// later calls return immediately.
func (g *Graph) Normalize() error {
	if g.normalized {
		return nil
	}

	for _, a := range g.Actions {
		if a.CanonicalTarget.IsZero() {
			a.CanonicalTarget = a.Target
		}
	}

	var generated []*Action
	for _, a := range g.Actions {
		generated = append(generated, generatedAssertions(a)...)
	}
	g.Actions = append(g.Actions, generated...)

	if err := g.buildIndex(); err != nil {
		return err
	}

	// Assertions guarding a target: generated children plus manual
	// assertions that read it.
	g.assertions = make(map[string][]Target)
	for _, a := range g.Actions {
		if a.Kind != ActionKindAssertion {
			continue
		}
		for _, dep := range a.Dependencies {
			key := dep.Target.Key()
			g.assertions[key] = append(g.assertions[key], a.Target)
		}
	}

	// Strengthen ordering: an action that asks for dependency assertions
	// waits for the assertions of each direct dependency too.
	for _, a := range g.Actions {
		if a.Kind == ActionKindAssertion {
			continue
		}
		for _, dep := range a.Dependencies {
			include := a.DependOnDependencyAssertions
			if dep.IncludeDependentAssertions != nil {
				include = *dep.IncludeDependentAssertions
			}
			if !include {
				continue
			}
			for _, assertion := range g.assertions[dep.Target.Key()] {
				if assertion == a.Target || a.DependsOn(assertion) {
					continue
				}
				a.Dependencies = append(a.Dependencies, DependencyRef{Target: assertion})
			}
		}
	}

	g.buildDependentIndex()
	g.normalized = true
	return nil
}

func (g *Graph) buildIndex() error {
	g.index = make(map[string]*Action, len(g.Actions))
	for _, a := range g.Actions {
		key := a.Target.Key()
		if _, exists := g.index[key]; exists {
			return fmt.Errorf("duplicate target %s in graph", a.Identity())
		}
		g.index[key] = a
	}
	return nil
}

func (g *Graph) buildDependentIndex() {
	g.dependents = make(map[string][]Target)
	for _, a := range g.Actions {
		for _, dep := range a.Dependencies {
			key := dep.Target.Key()
			g.dependents[key] = append(g.dependents[key], a.Target)
		}
	}
}

// ActionByTarget looks up an action by its identity.
func (g *Graph) ActionByTarget(t Target) (*Action, bool) {
	a, ok := g.index[t.Key()]
	return a, ok
}

// Targets returns every action identity in compiler order.
func (g *Graph) Targets() []Target {
	out := make([]Target, len(g.Actions))
	for i, a := range g.Actions {
		out[i] = a.Target
	}
	return out
}

// DependentsOf returns the identities of actions that directly depend
// on the given target.
func (g *Graph) DependentsOf(t Target) []Target {
	return g.dependents[t.Key()]
}

// AssertionsFor returns the assertion actions guarding the given target.
func (g *Graph) AssertionsFor(t Target) []Target {
	return g.assertions[t.Key()]
}

// Validate checks graph integrity: variant payloads, dangling
// dependency references, and acyclicity. All problems are joined into
// the returned error so a caller sees every defect at once.
func (g *Graph) Validate() error {
	if !g.normalized {
		if err := g.Normalize(); err != nil {
			return err
		}
	}

	var errs []error
	for _, a := range g.Actions {
		if err := a.validate(); err != nil {
			errs = append(errs, err)
		}
		for _, dep := range a.Dependencies {
			if _, ok := g.index[dep.Target.Key()]; !ok {
				errs = append(errs, fmt.Errorf("action %s depends on missing target %s", a.Identity(), dep.Target.String()))
			}
		}
	}

	if cycle := g.findCycle(); len(cycle) > 0 {
		errs = append(errs, fmt.Errorf("dependency cycle: %s", strings.Join(cycle, " -> ")))
	}

	return errors.Join(errs...)
}

// findCycle runs a DFS over dependency edges and reconstructs the first
// cycle found, or returns nil for an acyclic graph.
func (g *Graph) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.Actions))
	var path []string

	keys := make([]string, 0, len(g.index))
	for key := range g.index {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var visit func(key string) []string
	visit = func(key string) []string {
		color[key] = gray
		path = append(path, key)
		a := g.index[key]
		for _, dep := range a.Dependencies {
			depKey := dep.Target.Key()
			if _, ok := g.index[depKey]; !ok {
				continue
			}
			switch color[depKey] {
			case gray:
				// Trim the path to the cycle entry point.
				for i, p := range path {
					if p == depKey {
						cycle := make([]string, 0, len(path)-i+1)
						for _, k := range path[i:] {
							cycle = append(cycle, g.index[k].Identity())
						}
						cycle = append(cycle, g.index[depKey].Identity())
						return cycle
					}
				}
			case white:
				if cycle := visit(depKey); cycle != nil {
					return cycle
				}
			}
		}
		path = path[:len(path)-1]
		color[key] = black
		return nil
	}

	for _, key := range keys {
		if color[key] == white {
			if cycle := visit(key); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
