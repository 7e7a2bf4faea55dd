// Package selector computes the subset of a compiled graph to execute
// from name-pattern and tag filters, with optional transitive expansion
// over dependency edges.
package selector

import (
	"fmt"
	"sort"
	"strings"

	"github.com/millbrook-data/strata/internal/dag"
	"github.com/millbrook-data/strata/pkg/core"
)

// Filter describes which actions to select. Patterns match readable
// identities, Tags match action tags; the seed set is the union of
// both. An empty filter seeds the entire graph.
type Filter struct {
	// Patterns are dotted identity patterns; * matches within one
	// segment and never crosses a dot. Patterns with fewer segments
	// than the identity anchor to its trailing segments, so "orders"
	// matches "analytics.reporting.orders".
	Patterns []string
	// Tags select every action carrying any of the listed tags.
	Tags []string
	// IncludeDependencies expands the seed set with all transitive
	// dependencies (ancestors).
	IncludeDependencies bool
	// IncludeDependents expands the seed set with all transitive
	// dependents (descendants).
	IncludeDependents bool
}

// Empty reports whether the filter carries no patterns and no tags.
func (f Filter) Empty() bool {
	return len(f.Patterns) == 0 && len(f.Tags) == 0
}

// Select returns the targets matching the filter, expanded per the
// filter's closure flags, sorted by target key. Disabled actions
// participate like any other; skipping them is the runner's concern.
func Select(g *core.Graph, f Filter) ([]core.Target, error) {
	if err := g.Normalize(); err != nil {
		return nil, fmt.Errorf("normalize graph: %w", err)
	}

	selected := make(map[string]core.Target)
	if f.Empty() {
		for _, a := range g.Actions {
			selected[a.Target.Key()] = a.Target
		}
	} else {
		for _, a := range g.Actions {
			if matchesAnyPattern(a.Identity(), f.Patterns) || hasAnyTag(a, f.Tags) {
				selected[a.Target.Key()] = a.Target
			}
		}
	}

	if f.IncludeDependencies || f.IncludeDependents {
		d := dependencyDAG(g)
		seedKeys := make([]string, 0, len(selected))
		for key := range selected {
			seedKeys = append(seedKeys, key)
		}
		sort.Strings(seedKeys)

		var expanded []string
		if f.IncludeDependencies {
			expanded = append(expanded, d.Ancestors(seedKeys)...)
		}
		if f.IncludeDependents {
			expanded = append(expanded, d.Descendants(seedKeys)...)
		}
		for _, key := range expanded {
			if _, ok := selected[key]; ok {
				continue
			}
			if node, ok := d.GetNode(key); ok {
				selected[key] = node.Data.(core.Target)
			}
		}
	}

	keys := make([]string, 0, len(selected))
	for key := range selected {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	targets := make([]core.Target, len(keys))
	for i, key := range keys {
		targets[i] = selected[key]
	}
	return targets, nil
}

// dependencyDAG projects the compiled graph onto a plain DAG keyed by
// target keys. Dangling dependency edges are dropped here; graph
// validation reports them.
func dependencyDAG(g *core.Graph) *dag.Graph {
	d := dag.NewGraph()
	for _, a := range g.Actions {
		d.AddNode(a.Target.Key(), a.Target)
	}
	for _, a := range g.Actions {
		for _, dep := range a.Dependencies {
			_ = d.AddEdge(dep.Target.Key(), a.Target.Key())
		}
	}
	return d
}

func hasAnyTag(a *core.Action, tags []string) bool {
	for _, tag := range tags {
		if a.HasTag(tag) {
			return true
		}
	}
	return false
}

func matchesAnyPattern(identity string, patterns []string) bool {
	for _, p := range patterns {
		if MatchPattern(p, identity) {
			return true
		}
	}
	return false
}

// MatchPattern reports whether a dotted identity matches a pattern.
// Matching is case-sensitive and segment-wise: the pattern is split on
// dots and compared against the trailing segments of the identity, with
// * matching any run of characters inside a single segment.
func MatchPattern(pattern, identity string) bool {
	if pattern == "" {
		return false
	}
	patSegs := strings.Split(pattern, ".")
	idSegs := strings.Split(identity, ".")
	if len(patSegs) > len(idSegs) {
		return false
	}
	// Anchor to the trailing segments so short patterns address the
	// action name regardless of qualification.
	offset := len(idSegs) - len(patSegs)
	for i, seg := range patSegs {
		if !matchSegment(seg, idSegs[offset+i]) {
			return false
		}
	}
	return true
}

// matchSegment matches one identity segment against one pattern
// segment where * matches any (possibly empty) run of characters.
func matchSegment(pattern, s string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == s
	}
	parts := strings.Split(pattern, "*")

	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]

	last := parts[len(parts)-1]
	if !strings.HasSuffix(s, last) {
		return false
	}
	s = s[:len(s)-len(last)]

	for _, mid := range parts[1 : len(parts)-1] {
		idx := strings.Index(s, mid)
		if idx < 0 {
			return false
		}
		s = s[idx+len(mid):]
	}
	return true
}
