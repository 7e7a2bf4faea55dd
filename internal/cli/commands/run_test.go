package commands

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/millbrook-data/strata/internal/cli/output"
	"github.com/millbrook-data/strata/internal/cli/testutil"
	"github.com/millbrook-data/strata/pkg/core"
)

func newTextRenderer() (*output.Renderer, *bytes.Buffer, *bytes.Buffer) {
	tr := testutil.NewTestRendererText()
	return tr.Renderer, tr.Out, tr.ErrOut
}

func newJSONRenderer() (*output.Renderer, *bytes.Buffer) {
	tr := testutil.NewTestRendererJSON()
	return tr.Renderer, tr.Out
}

func TestNewRunCommand(t *testing.T) {
	cmd := NewRunCommand()

	assert.Equal(t, "run [patterns...]", cmd.Use)
	assert.Contains(t, cmd.Aliases, "build")
	for _, flag := range []string{
		"select", "tag", "include-deps", "include-dependents",
		"full-refresh", "dry-run", "concurrency", "retry-limit",
	} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag --%s should exist", flag)
	}
}

func TestActionDetail(t *testing.T) {
	tests := []struct {
		name  string
		state core.ActionState
		want  string
	}{
		{
			name:  "failure carries the error",
			state: core.ActionState{Status: core.ActionStatusFailed, Error: "relation does not exist"},
			want:  "relation does not exist",
		},
		{
			name:  "skip carries the upstream reason",
			state: core.ActionState{Status: core.ActionStatusSkipped, Error: "upstream analytics.base failed"},
			want:  "upstream analytics.base failed",
		},
		{
			name:  "plain success is silent",
			state: core.ActionState{Status: core.ActionStatusSuccessful},
			want:  "",
		},
		{
			name:  "success reports rows",
			state: core.ActionState{Status: core.ActionStatusSuccessful, RowsAffected: 42, Attempts: 1},
			want:  "42 rows",
		},
		{
			name:  "retried success reports the attempt",
			state: core.ActionState{Status: core.ActionStatusSuccessful, RowsAffected: 10, Attempts: 2},
			want:  "10 rows, attempt 2",
		},
		{
			name:  "running has no detail",
			state: core.ActionState{Status: core.ActionStatusRunning},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, actionDetail(tt.state))
		})
	}
}

func TestRenderTransitions_Text(t *testing.T) {
	r, out, _ := newTextRenderer()
	printed := make(map[string]core.ActionStatus)

	states := []core.ActionState{
		{Target: core.Target{Schema: "a", Name: "pending"}, Status: core.ActionStatusPending},
		{Target: core.Target{Schema: "a", Name: "ok"}, Kind: core.ActionKindTable, Status: core.ActionStatusSuccessful, RowsAffected: 3, Attempts: 1},
		{Target: core.Target{Schema: "a", Name: "bad"}, Kind: core.ActionKindAssertion, Status: core.ActionStatusFailed, Error: "boom"},
	}

	renderTransitions(r, "run-1", states, printed)

	assert.NotContains(t, out.String(), "a.pending", "pending actions stay silent")
	assert.Contains(t, out.String(), "✓ a.ok")
	assert.Contains(t, out.String(), "3 rows")
	assert.Contains(t, out.String(), "✗ a.bad")
	assert.Contains(t, out.String(), "boom")

	// A second snapshot with unchanged statuses prints nothing new.
	before := out.Len()
	renderTransitions(r, "run-1", states, printed)
	assert.Equal(t, before, out.Len())
}

func TestRenderTransitions_JSON(t *testing.T) {
	r, out := newJSONRenderer()
	printed := make(map[string]core.ActionStatus)

	renderTransitions(r, "run-1", []core.ActionState{
		{Target: core.Target{Schema: "a", Name: "ok"}, Kind: core.ActionKindTable, Status: core.ActionStatusSuccessful, Attempts: 1},
	}, printed)

	var event output.RunEvent
	require.NoError(t, json.Unmarshal(out.Bytes(), &event))
	assert.Equal(t, "action_update", event.Event)
	assert.Equal(t, "run-1", event.RunID)
	assert.Equal(t, "a.ok", event.Target)
	assert.Equal(t, "successful", event.Status)
	assert.NotEmpty(t, event.Timestamp)
}

func resultFixture(status core.RunStatus, actions ...*core.ExecutionAction) *core.RunResult {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return &core.RunResult{
		Status:     status,
		Actions:    actions,
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
	}
}

func TestRenderRunSummary_Text(t *testing.T) {
	t.Run("successful", func(t *testing.T) {
		r, out, errOut := newTextRenderer()
		res := resultFixture(core.RunStatusSuccessful,
			&core.ExecutionAction{Target: core.Target{Schema: "a", Name: "x"}, Status: core.ActionStatusSuccessful},
			&core.ExecutionAction{Target: core.Target{Schema: "a", Name: "y"}, Status: core.ActionStatusSuccessful},
		)

		require.NoError(t, renderRunSummary(r, "run-9", "dev", res))

		assert.Contains(t, out.String(), "Run complete: 2 action(s) in 1.5s")
		assert.Contains(t, out.String(), "run id: run-9")
		assert.Empty(t, errOut.String())
	})

	t.Run("failed", func(t *testing.T) {
		r, _, errOut := newTextRenderer()
		res := resultFixture(core.RunStatusFailed,
			&core.ExecutionAction{Target: core.Target{Schema: "a", Name: "x"}, Status: core.ActionStatusSuccessful},
			&core.ExecutionAction{Target: core.Target{Schema: "a", Name: "y"}, Status: core.ActionStatusFailed},
			&core.ExecutionAction{Target: core.Target{Schema: "a", Name: "z"}, Status: core.ActionStatusSkipped},
		)

		require.NoError(t, renderRunSummary(r, "run-9", "dev", res))

		assert.Contains(t, errOut.String(), "1 succeeded, 1 failed, 1 skipped")
	})

	t.Run("cancelled", func(t *testing.T) {
		r, _, errOut := newTextRenderer()
		res := resultFixture(core.RunStatusCancelled,
			&core.ExecutionAction{Target: core.Target{Schema: "a", Name: "x"}, Status: core.ActionStatusSuccessful},
			&core.ExecutionAction{Target: core.Target{Schema: "a", Name: "y"}, Status: core.ActionStatusCancelled},
		)

		require.NoError(t, renderRunSummary(r, "run-9", "dev", res))

		assert.Contains(t, errOut.String(), "1 succeeded, 1 cancelled")
	})
}

func TestRenderRunSummary_JSON(t *testing.T) {
	r, out := newJSONRenderer()
	res := resultFixture(core.RunStatusFailed,
		&core.ExecutionAction{Target: core.Target{Schema: "a", Name: "x"}, Kind: core.ActionKindTable, Status: core.ActionStatusSuccessful, RowsAffected: 7, Attempts: 1},
		&core.ExecutionAction{Target: core.Target{Schema: "a", Name: "y"}, Kind: core.ActionKindAssertion, Status: core.ActionStatusFailed, Error: "2 failing row(s)", Attempts: 1},
	)

	require.NoError(t, renderRunSummary(r, "run-9", "prod", res))

	var doc output.RunOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	assert.Equal(t, "run-9", doc.RunID)
	assert.Equal(t, "failed", doc.Status)
	assert.Equal(t, "prod", doc.Environment)
	assert.False(t, doc.DryRun)
	assert.Equal(t, int64(1500), doc.DurationMS)
	assert.Equal(t, 1, doc.Counts["successful"])
	assert.Equal(t, 1, doc.Counts["failed"])
	require.Len(t, doc.Actions, 2)
	assert.Equal(t, "a.x", doc.Actions[0].Target)
	assert.Equal(t, int64(7), doc.Actions[0].RowsAffected)
	assert.Equal(t, "2 failing row(s)", doc.Actions[1].Error)
}

func TestRenderDryRun_Text(t *testing.T) {
	r, out, _ := newTextRenderer()
	g := core.NewExecutionGraph([]*core.ExecutionAction{
		{Target: core.Target{Schema: "a", Name: "x"}, Kind: core.ActionKindTable, Status: core.ActionStatusPending},
		{Target: core.Target{Schema: "a", Name: "y"}, Kind: core.ActionKindTable, Status: core.ActionStatusPending},
		{Target: core.Target{Schema: "a", Name: "z"}, Kind: core.ActionKindAssertion, Status: core.ActionStatusPending},
	})

	require.NoError(t, renderDryRun(r, g, "dev"))

	assert.Contains(t, out.String(), "Dry run (3 action(s), nothing dispatched)")
	assert.Contains(t, out.String(), "a.x")
	assert.Contains(t, out.String(), "would run: 1 assertion, 2 table")
}

func TestRenderDryRun_JSON(t *testing.T) {
	r, out := newJSONRenderer()
	g := core.NewExecutionGraph([]*core.ExecutionAction{
		{Target: core.Target{Schema: "a", Name: "x"}, Kind: core.ActionKindTable, Status: core.ActionStatusPending},
	})

	require.NoError(t, renderDryRun(r, g, "dev"))

	var doc output.RunOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	assert.True(t, doc.DryRun)
	assert.Equal(t, 1, doc.Counts["pending"])
	require.Len(t, doc.Actions, 1)
	assert.Equal(t, "pending", doc.Actions[0].Status)
}

func TestRenderTransitions_NoANSIWhenPiped(t *testing.T) {
	r, out, _ := newTextRenderer()
	printed := make(map[string]core.ActionStatus)

	renderTransitions(r, "run-1", []core.ActionState{
		{Target: core.Target{Schema: "a", Name: "ok"}, Status: core.ActionStatusSuccessful},
	}, printed)

	assert.False(t, strings.Contains(out.String(), "\x1b["), "piped output must not carry ANSI escapes")
}
