package core

import "time"

// ActionStatus represents the lifecycle state of one execution action.
type ActionStatus string

// Action status constants.
const (
	ActionStatusPending    ActionStatus = "pending"
	ActionStatusRunning    ActionStatus = "running"
	ActionStatusSuccessful ActionStatus = "successful"
	ActionStatusFailed     ActionStatus = "failed"
	// ActionStatusSkipped is reserved for actions that never ran because
	// an upstream dependency failed or the action is disabled.
	ActionStatusSkipped ActionStatus = "skipped"
	// ActionStatusCancelled marks actions that never reached running when
	// the run was cancelled.
	ActionStatusCancelled ActionStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s ActionStatus) Terminal() bool {
	switch s {
	case ActionStatusSuccessful, ActionStatusFailed, ActionStatusSkipped, ActionStatusCancelled:
		return true
	}
	return false
}

// RunStatus represents the aggregate status of a whole run.
type RunStatus string

// Run status constants.
const (
	RunStatusRunning    RunStatus = "running"
	RunStatusSuccessful RunStatus = "successful"
	RunStatusFailed     RunStatus = "failed"
	RunStatusCancelled  RunStatus = "cancelled"
)

// PlanStep is one resolved step of an action's statement plan. Exactly
// one field is set. Plain SQL covers everything resolvable at build
// time; the structured steps defer work that depends on live warehouse
// state to execution time.
type PlanStep struct {
	// SQL is a statement executed verbatim against the warehouse.
	SQL string `json:"sql,omitempty" yaml:"sql,omitempty"`
	// Merge performs an incremental merge into an existing target.
	Merge *MergeStep `json:"merge,omitempty" yaml:"merge,omitempty"`
	// Load populates a data preparation output in a non-replace mode.
	Load *LoadStep `json:"load,omitempty" yaml:"load,omitempty"`
	// Assertion runs a query that must return zero rows.
	Assertion *AssertionStep `json:"assertion,omitempty" yaml:"assertion,omitempty"`
	// Notebook hands contents to the external notebook runner.
	Notebook *NotebookStep `json:"notebook,omitempty" yaml:"notebook,omitempty"`
}

// MergeStep merges fresh rows produced by Query into Target through a
// staging table, reconciling schema drift per the configured policy
// before any DDL or DML touches the target.
type MergeStep struct {
	Target         Target             `json:"target" yaml:"target"`
	StagingName    string             `json:"stagingName" yaml:"staging_name"`
	Query          string             `json:"query" yaml:"query"`
	UniqueKey      []string           `json:"uniqueKey,omitempty" yaml:"unique_key,omitempty"`
	OnSchemaChange SchemaChangePolicy `json:"onSchemaChange" yaml:"on_schema_change"`
}

// StagingTarget returns the staging relation's identity, colocated with
// the merge target.
func (m *MergeStep) StagingTarget() Target {
	return Target{Database: m.Target.Database, Schema: m.Target.Schema, Name: m.StagingName}
}

// LoadStep inserts rows produced by Query into an existing Target.
// Mode is fully resolved by the builder (append, maximum or unique,
// never automatic). When ErrorTable is set, a failing load is recorded
// there instead of failing the action.
type LoadStep struct {
	Target     Target   `json:"target" yaml:"target"`
	Query      string   `json:"query" yaml:"query"`
	Mode       LoadMode `json:"mode" yaml:"mode"`
	Column     string   `json:"column,omitempty" yaml:"column,omitempty"`
	ErrorTable *Target  `json:"errorTable,omitempty" yaml:"error_table,omitempty"`
}

// AssertionStep runs a quality check. Returned rows are failing
// records; the action fails with the row count as diagnostics, which
// is not an execution fault of the warehouse.
type AssertionStep struct {
	Query string `json:"query" yaml:"query"`
}

// NotebookStep carries notebook contents for the external runner.
type NotebookStep struct {
	Contents string `json:"contents" yaml:"contents"`
}

// ExecutionAction is one runnable unit of an execution graph: a
// compiled action plus its resolved plan and run state. It is owned
// exclusively by one runner invocation.
type ExecutionAction struct {
	Target      Target      `json:"target" yaml:"target"`
	Kind        ActionKind  `json:"kind" yaml:"kind"`
	Hermeticity Hermeticity `json:"hermeticity,omitempty" yaml:"hermeticity,omitempty"`
	Tags        []string    `json:"tags,omitempty" yaml:"tags,omitempty"`
	Disabled    bool        `json:"disabled,omitempty" yaml:"disabled,omitempty"`

	// Steps is the warehouse-ready statement plan.
	Steps []PlanStep `json:"steps,omitempty" yaml:"steps,omitempty"`
	// Retryable marks plans safe to re-dispatch from scratch: full
	// rebuilds and replace loads. Merges, appends, operations and
	// assertions are not retried.
	Retryable bool `json:"retryable,omitempty" yaml:"retryable,omitempty"`

	// Dependencies and Dependents are restricted to the selected set;
	// upstream targets outside the run are treated as already satisfied.
	Dependencies []Target `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Dependents   []Target `json:"dependents,omitempty" yaml:"dependents,omitempty"`

	Status       ActionStatus `json:"status" yaml:"status"`
	Attempts     int          `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	RowsAffected int64        `json:"rowsAffected,omitempty" yaml:"rows_affected,omitempty"`
	Error        string       `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt    time.Time    `json:"startedAt,omitzero" yaml:"started_at,omitempty"`
	FinishedAt   time.Time    `json:"finishedAt,omitzero" yaml:"finished_at,omitempty"`
}

// Duration returns the wall time spent running, or zero before start.
func (a *ExecutionAction) Duration() time.Duration {
	if a.StartedAt.IsZero() || a.FinishedAt.IsZero() {
		return 0
	}
	return a.FinishedAt.Sub(a.StartedAt)
}

// ExecutionGraph is the resolved, statement-bearing subset of a
// compiled graph selected for one run. Actions are held in
// deterministic order.
type ExecutionGraph struct {
	Actions []*ExecutionAction `json:"actions" yaml:"actions"`

	index map[string]*ExecutionAction
}

// NewExecutionGraph builds an execution graph and its lookup index.
func NewExecutionGraph(actions []*ExecutionAction) *ExecutionGraph {
	g := &ExecutionGraph{
		Actions: actions,
		index:   make(map[string]*ExecutionAction, len(actions)),
	}
	for _, a := range actions {
		g.index[a.Target.Key()] = a
	}
	return g
}

// ActionByTarget looks up an execution action by identity.
func (g *ExecutionGraph) ActionByTarget(t Target) (*ExecutionAction, bool) {
	a, ok := g.index[t.Key()]
	return a, ok
}

// Len returns the number of actions in the graph.
func (g *ExecutionGraph) Len() int {
	return len(g.Actions)
}

// ActionState is the immutable per-action slice of a run snapshot.
type ActionState struct {
	Target       Target       `json:"target" yaml:"target"`
	Kind         ActionKind   `json:"kind" yaml:"kind"`
	Status       ActionStatus `json:"status" yaml:"status"`
	Attempts     int          `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	RowsAffected int64        `json:"rowsAffected,omitempty" yaml:"rows_affected,omitempty"`
	Error        string       `json:"error,omitempty" yaml:"error,omitempty"`
}

// RunSnapshot is the full-graph status view published by the runner on
// every status transition. Actions appear in graph order.
type RunSnapshot struct {
	Actions []ActionState `json:"actions" yaml:"actions"`
}

// Counts tallies actions per status.
func (s RunSnapshot) Counts() map[ActionStatus]int {
	counts := make(map[ActionStatus]int)
	for _, a := range s.Actions {
		counts[a.Status]++
	}
	return counts
}

// RunResult is the final aggregate of a run: the overall status plus
// every action in its terminal state.
type RunResult struct {
	Status     RunStatus          `json:"status" yaml:"status"`
	Actions    []*ExecutionAction `json:"actions" yaml:"actions"`
	StartedAt  time.Time          `json:"startedAt" yaml:"started_at"`
	FinishedAt time.Time          `json:"finishedAt" yaml:"finished_at"`
}

// Successful reports whether every non-skipped action succeeded.
func (r *RunResult) Successful() bool {
	return r.Status == RunStatusSuccessful
}

// Duration returns the wall time of the whole run.
func (r *RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// CountByStatus tallies terminal actions per status.
func (r *RunResult) CountByStatus() map[ActionStatus]int {
	counts := make(map[ActionStatus]int)
	for _, a := range r.Actions {
		counts[a.Status]++
	}
	return counts
}
