package core

import (
	"fmt"
	"strings"
)

// Target is the identity triple of a graph node. Two targets are equal
// iff all three fields are equal; Target is comparable and usable as a
// map key throughout the system.
type Target struct {
	Database string `json:"database" yaml:"database"`
	Schema   string `json:"schema" yaml:"schema"`
	Name     string `json:"name" yaml:"name"`
}

// String returns the readable dotted identity, e.g. "analytics.reporting.orders".
// Empty leading components are omitted so partially-qualified declarations
// still render cleanly.
func (t Target) String() string {
	parts := make([]string, 0, 3)
	if t.Database != "" {
		parts = append(parts, t.Database)
	}
	if t.Schema != "" {
		parts = append(parts, t.Schema)
	}
	parts = append(parts, t.Name)
	return strings.Join(parts, ".")
}

// Key returns the canonical map key for the target. Unlike String it
// never omits components, so "a..b" and "a.b" cannot collide.
func (t Target) Key() string {
	return t.Database + "." + t.Schema + "." + t.Name
}

// IsZero reports whether the target is entirely unset.
func (t Target) IsZero() bool {
	return t.Database == "" && t.Schema == "" && t.Name == ""
}

// ParseTarget parses a dotted identity back into a Target.
// One segment fills Name, two fill Schema.Name, three fill all fields.
func ParseTarget(s string) (Target, error) {
	parts := strings.Split(s, ".")
	switch len(parts) {
	case 1:
		return Target{Name: parts[0]}, nil
	case 2:
		return Target{Schema: parts[0], Name: parts[1]}, nil
	case 3:
		return Target{Database: parts[0], Schema: parts[1], Name: parts[2]}, nil
	default:
		return Target{}, fmt.Errorf("invalid target %q: expected at most 3 dot-separated segments, got %d", s, len(parts))
	}
}

// DependencyRef is a dependency edge as declared on an action. The
// IncludeDependentAssertions hint controls whether the assertions
// guarding the dependency are also awaited; nil defers to the
// depending action's DependOnDependencyAssertions setting.
type DependencyRef struct {
	Target Target `json:"target" yaml:"target"`

	IncludeDependentAssertions *bool `json:"includeDependentAssertions,omitempty" yaml:"include_dependent_assertions,omitempty"`
}
