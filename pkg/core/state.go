package core

import "time"

// Store defines the interface for run-history persistence.
type Store interface {
	Open(path string) error
	Close() error
	InitSchema() error

	// Run operations
	CreateRun(environment string) (*Run, error)
	GetRun(id string) (*Run, error)
	CompleteRun(id string, status RunStatus, errMsg string) error
	ListRuns(limit int) ([]*Run, error)

	// Action run operations
	RecordActionRun(actionRun *ActionRun) error
	UpdateActionRun(id string, status ActionStatus, rowsAffected int64, attempts int, errMsg string) error
	GetActionRunsForRun(runID string) ([]*ActionRun, error)
}

// Run represents one execution session.
type Run struct {
	ID          string
	Environment string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// ActionRun represents a single action execution within a run.
type ActionRun struct {
	ID           string
	RunID        string
	Target       string
	Kind         ActionKind
	Status       ActionStatus
	RowsAffected int64
	Attempts     int
	StartedAt    time.Time
	CompletedAt  *time.Time
	Error        string
	ExecutionMS  int64
}
