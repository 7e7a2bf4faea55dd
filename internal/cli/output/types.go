package output

import "time"

// RunEvent is one line of the run command's streamed JSON output: one
// action_update per status transition. The final RunOutput summary
// document follows the event stream.
type RunEvent struct {
	Event        string `json:"event"`
	RunID        string `json:"run_id,omitempty"`
	Target       string `json:"target,omitempty"`
	Kind         string `json:"kind,omitempty"`
	Status       string `json:"status,omitempty"`
	Attempts     int    `json:"attempts,omitempty"`
	RowsAffected int64  `json:"rows_affected,omitempty"`
	Error        string `json:"error,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// RunOutput is the final JSON document of a completed run.
type RunOutput struct {
	RunID       string            `json:"run_id,omitempty"`
	Status      string            `json:"status"`
	Environment string            `json:"environment,omitempty"`
	DryRun      bool              `json:"dry_run,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
	DurationMS  int64             `json:"duration_ms"`
	Counts      map[string]int    `json:"counts"`
	Actions     []RunActionOutput `json:"actions"`
}

// RunActionOutput is one action's terminal state within a RunOutput.
type RunActionOutput struct {
	Target       string `json:"target"`
	Kind         string `json:"kind"`
	Status       string `json:"status"`
	Attempts     int    `json:"attempts,omitempty"`
	RowsAffected int64  `json:"rows_affected,omitempty"`
	DurationMS   int64  `json:"duration_ms,omitempty"`
	Error        string `json:"error,omitempty"`
}

// PlanOutput is the JSON document of the plan command.
type PlanOutput struct {
	Environment string             `json:"environment,omitempty"`
	FullRefresh bool               `json:"full_refresh,omitempty"`
	Total       int                `json:"total"`
	Actions     []PlanActionOutput `json:"actions"`
}

// PlanActionOutput is one action's resolved plan.
type PlanActionOutput struct {
	Target    string           `json:"target"`
	Kind      string           `json:"kind"`
	Retryable bool             `json:"retryable"`
	Disabled  bool             `json:"disabled,omitempty"`
	DependsOn []string         `json:"depends_on,omitempty"`
	Steps     []PlanStepOutput `json:"steps,omitempty"`
}

// PlanStepOutput is one statement-plan step. Kind names the step
// variant; SQL carries the statement for plain and assertion steps.
type PlanStepOutput struct {
	Kind string `json:"kind"`
	SQL  string `json:"sql,omitempty"`
}

// ListOutput is the JSON document of the list command.
type ListOutput struct {
	Actions []ListActionOutput `json:"actions"`
	Summary ListSummary        `json:"summary"`
}

// ListActionOutput is one declared action.
type ListActionOutput struct {
	Target    string   `json:"target"`
	Kind      string   `json:"kind"`
	Tags      []string `json:"tags,omitempty"`
	Disabled  bool     `json:"disabled,omitempty"`
	Hermetic  string   `json:"hermeticity,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"`
}

// ListSummary aggregates the listed actions.
type ListSummary struct {
	Total    int            `json:"total"`
	ByKind   map[string]int `json:"by_kind"`
	Disabled int            `json:"disabled,omitempty"`
}

// DAGOutput is the JSON document of the dag command. Levels group
// actions that can run concurrently once all earlier levels finish.
type DAGOutput struct {
	Levels       []DAGLevel `json:"levels"`
	TotalActions int        `json:"total_actions"`
	TotalEdges   int        `json:"total_edges"`
}

// DAGLevel is one execution level of the graph.
type DAGLevel struct {
	Level   int       `json:"level"`
	Actions []DAGNode `json:"actions"`
}

// DAGNode is one action with its direct neighbors.
type DAGNode struct {
	Target    string   `json:"target"`
	Kind      string   `json:"kind,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"`
	UsedBy    []string `json:"used_by,omitempty"`
}

// HistoryOutput is the JSON document of the history command.
type HistoryOutput struct {
	Runs []HistoryRunOutput `json:"runs"`
}

// HistoryRunOutput is one recorded run.
type HistoryRunOutput struct {
	ID          string     `json:"id"`
	Environment string     `json:"environment,omitempty"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// HistoryDetailOutput is the JSON document of history show.
type HistoryDetailOutput struct {
	Run     HistoryRunOutput  `json:"run"`
	Actions []ActionRunOutput `json:"actions"`
}

// ActionRunOutput is one recorded per-action result.
type ActionRunOutput struct {
	Target       string `json:"target"`
	Kind         string `json:"kind"`
	Status       string `json:"status"`
	Attempts     int    `json:"attempts,omitempty"`
	RowsAffected int64  `json:"rows_affected,omitempty"`
	ExecutionMS  int64  `json:"execution_ms,omitempty"`
	Error        string `json:"error,omitempty"`
}

// VersionOutput is the JSON document of the version command.
type VersionOutput struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Date    string `json:"date,omitempty"`
}
