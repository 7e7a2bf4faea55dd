package commands

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/millbrook-data/strata/internal/cli/output"
	"github.com/millbrook-data/strata/pkg/core"
)

func TestNewPlanCommand(t *testing.T) {
	cmd := NewPlanCommand()

	assert.Equal(t, "plan [patterns...]", cmd.Use)
	for _, flag := range []string{"select", "tag", "include-deps", "include-dependents", "full-refresh", "sql"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag --%s should exist", flag)
	}
}

func TestStepKind(t *testing.T) {
	tests := []struct {
		name string
		step core.PlanStep
		want string
	}{
		{"plain sql", core.PlanStep{SQL: "CREATE TABLE t AS SELECT 1"}, "sql"},
		{"merge", core.PlanStep{Merge: &core.MergeStep{Query: "SELECT 1"}}, "merge"},
		{"load", core.PlanStep{Load: &core.LoadStep{Query: "SELECT 1"}}, "load"},
		{"assertion", core.PlanStep{Assertion: &core.AssertionStep{Query: "SELECT 1"}}, "assertion"},
		{"notebook", core.PlanStep{Notebook: &core.NotebookStep{Contents: "{}"}}, "notebook"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stepKind(tt.step))
		})
	}
}

func TestStepSQL(t *testing.T) {
	assert.Equal(t, "SELECT a", stepSQL(core.PlanStep{SQL: "SELECT a"}))
	assert.Equal(t, "SELECT b", stepSQL(core.PlanStep{Merge: &core.MergeStep{Query: "SELECT b"}}))
	assert.Equal(t, "SELECT c", stepSQL(core.PlanStep{Load: &core.LoadStep{Query: "SELECT c"}}))
	assert.Equal(t, "SELECT d", stepSQL(core.PlanStep{Assertion: &core.AssertionStep{Query: "SELECT d"}}))
	assert.Empty(t, stepSQL(core.PlanStep{Notebook: &core.NotebookStep{Contents: "{}"}}), "notebook contents are not SQL")
}

func planGraphFixture() *core.ExecutionGraph {
	return core.NewExecutionGraph([]*core.ExecutionAction{
		{
			Target:    core.Target{Schema: "analytics", Name: "orders"},
			Kind:      core.ActionKindTable,
			Retryable: true,
			Steps: []core.PlanStep{
				{SQL: "CREATE OR REPLACE TABLE analytics.orders AS SELECT * FROM raw.orders"},
			},
		},
		{
			Target:       core.Target{Schema: "analytics", Name: "orders_inc"},
			Kind:         core.ActionKindTable,
			Dependencies: []core.Target{{Schema: "analytics", Name: "orders"}},
			Steps: []core.PlanStep{
				{Merge: &core.MergeStep{
					Target:      core.Target{Schema: "analytics", Name: "orders_inc"},
					StagingName: "orders_inc__staging",
					Query:       "SELECT * FROM analytics.orders",
					UniqueKey:   []string{"id"},
				}},
			},
		},
		{
			Target:   core.Target{Schema: "analytics", Name: "retired"},
			Kind:     core.ActionKindTable,
			Disabled: true,
		},
	})
}

func TestPlanText(t *testing.T) {
	r, out, _ := newTextRenderer()

	require.NoError(t, planText(r, planGraphFixture(), false))

	s := out.String()
	assert.Contains(t, s, "Plan (3 action(s))")
	assert.Contains(t, s, "analytics.orders")
	assert.Contains(t, s, "retryable")
	assert.Contains(t, s, "disabled")
	assert.Contains(t, s, "after: analytics.orders")
	assert.Contains(t, s, "step 1: sql")
	assert.Contains(t, s, "step 1: merge")
	assert.NotContains(t, s, "CREATE OR REPLACE", "statements stay hidden without --sql")
}

func TestPlanText_WithSQL(t *testing.T) {
	r, out, _ := newTextRenderer()

	require.NoError(t, planText(r, planGraphFixture(), true))

	s := out.String()
	assert.Contains(t, s, "CREATE OR REPLACE TABLE analytics.orders")
	assert.Contains(t, s, "SELECT * FROM analytics.orders")
}

func TestPlanJSON(t *testing.T) {
	r, out := newJSONRenderer()

	require.NoError(t, planJSON(r, planGraphFixture(), "dev", true))

	var doc output.PlanOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	assert.Equal(t, "dev", doc.Environment)
	assert.True(t, doc.FullRefresh)
	assert.Equal(t, 3, doc.Total)
	require.Len(t, doc.Actions, 3)

	assert.Equal(t, "analytics.orders", doc.Actions[0].Target)
	assert.True(t, doc.Actions[0].Retryable)
	require.Len(t, doc.Actions[0].Steps, 1)
	assert.Equal(t, "sql", doc.Actions[0].Steps[0].Kind)

	assert.Equal(t, []string{"analytics.orders"}, doc.Actions[1].DependsOn)
	assert.Equal(t, "merge", doc.Actions[1].Steps[0].Kind)
	assert.Equal(t, "SELECT * FROM analytics.orders", doc.Actions[1].Steps[0].SQL)

	assert.True(t, doc.Actions[2].Disabled)
}
