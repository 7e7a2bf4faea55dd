package core

import (
	"fmt"
	"strings"
)

// generatedAssertions expands a table's assertion shorthand into
// ordinary assertion actions. Each generated action depends on the
// parent and carries a Parent back-reference; insertion order is
// deterministic (unique keys, then non-null, then row conditions).
func generatedAssertions(parent *Action) []*Action {
	spec := parent.Table
	if spec == nil || spec.Assertions == nil {
		return nil
	}
	sh := spec.Assertions
	rel := parent.Target.String()

	var out []*Action

	keySets := make([][]string, 0, len(sh.UniqueKeys)+1)
	if len(sh.UniqueKey) > 0 {
		keySets = append(keySets, sh.UniqueKey)
	}
	keySets = append(keySets, sh.UniqueKeys...)
	for i, keys := range keySets {
		name := fmt.Sprintf("%s_assertions_unique_key_%d", parent.Target.Name, i)
		out = append(out, newGeneratedAssertion(parent, name, uniqueKeyQuery(rel, keys)))
	}

	if len(sh.NonNull) > 0 {
		name := parent.Target.Name + "_assertions_non_null"
		out = append(out, newGeneratedAssertion(parent, name, nonNullQuery(rel, sh.NonNull)))
	}

	if len(sh.RowConditions) > 0 {
		name := parent.Target.Name + "_assertions_row_conditions"
		out = append(out, newGeneratedAssertion(parent, name, rowConditionsQuery(rel, sh.RowConditions)))
	}

	return out
}

func newGeneratedAssertion(parent *Action, name, query string) *Action {
	parentTarget := parent.Target
	target := Target{
		Database: parentTarget.Database,
		Schema:   parentTarget.Schema,
		Name:     name,
	}
	tags := make([]string, len(parent.Tags))
	copy(tags, parent.Tags)
	return &Action{
		Target:       target,
		Dependencies: []DependencyRef{{Target: parentTarget}},
		Tags:         tags,
		Disabled:     parent.Disabled,
		Hermeticity:  HermeticityHermetic,
		Parent:       &parentTarget,
		Kind:         ActionKindAssertion,
		Assertion:    &AssertionSpec{Query: query},
	}
}

// uniqueKeyQuery selects key tuples that appear more than once.
func uniqueKeyQuery(rel string, keys []string) string {
	cols := strings.Join(keys, ", ")
	return fmt.Sprintf("SELECT %s, COUNT(*) AS duplicate_count\nFROM %s\nGROUP BY %s\nHAVING COUNT(*) > 1", cols, rel, cols)
}

// nonNullQuery selects rows where any of the named columns is NULL.
func nonNullQuery(rel string, cols []string) string {
	conds := make([]string, len(cols))
	for i, c := range cols {
		conds[i] = c + " IS NULL"
	}
	return fmt.Sprintf("SELECT *\nFROM %s\nWHERE %s", rel, strings.Join(conds, " OR "))
}

// rowConditionsQuery selects one row per violation of each condition,
// labelled with the violated condition text.
func rowConditionsQuery(rel string, conditions []string) string {
	parts := make([]string, len(conditions))
	for i, cond := range conditions {
		parts[i] = fmt.Sprintf("SELECT %s AS failing_condition\nFROM %s\nWHERE NOT (%s)", sqlStringLiteral(cond), rel, cond)
	}
	return strings.Join(parts, "\nUNION ALL\n")
}

func sqlStringLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
