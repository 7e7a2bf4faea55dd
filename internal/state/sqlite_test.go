package state

import (
	"testing"
	"time"

	"github.com/millbrook-data/strata/internal/testutil"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(testutil.NewTestLogger(t))
	if err := store.Open(":memory:"); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.InitSchema(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	return store
}

func TestSQLiteStore_OpenClose(t *testing.T) {
	store := NewSQLiteStore(nil)

	if err := store.Open(":memory:"); err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestSQLiteStore_CloseWithoutOpen(t *testing.T) {
	store := NewSQLiteStore(nil)
	if err := store.Close(); err != nil {
		t.Fatalf("close without open should not error: %v", err)
	}
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore(nil)

	if _, err := store.CreateRun("dev"); err == nil {
		t.Error("expected error creating run before open")
	}
	if err := store.InitSchema(); err == nil {
		t.Error("expected error initializing schema before open")
	}
}

func TestSQLiteStore_InitSchema(t *testing.T) {
	store := NewSQLiteStore(nil)
	if err := store.Open(":memory:"); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	if err := store.InitSchema(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}

	// Verify tables exist by querying them
	tables := []string{"runs", "action_runs"}
	for _, table := range tables {
		rows, err := store.db.Query("SELECT 1 FROM " + table + " LIMIT 1")
		if err != nil {
			t.Errorf("table %s does not exist: %v", table, err)
		} else {
			rows.Close()
		}
	}

	// Re-running migrations is a no-op
	if err := store.InitSchema(); err != nil {
		t.Fatalf("second init schema should be a no-op: %v", err)
	}

	version, err := store.MigrationVersion()
	if err != nil {
		t.Fatalf("failed to get migration version: %v", err)
	}
	if version < 1 {
		t.Errorf("expected migration version >= 1, got %d", version)
	}
}

// --- Run lifecycle tests ---

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(t *testing.T, store *SQLiteStore) *Run
		operation func(t *testing.T, store *SQLiteStore, run *Run)
	}{
		{
			name: "create run",
			setup: func(t *testing.T, store *SQLiteStore) *Run {
				run, err := store.CreateRun("production")
				if err != nil {
					t.Fatalf("failed to create run: %v", err)
				}
				return run
			},
			operation: func(t *testing.T, store *SQLiteStore, run *Run) {
				if run.ID == "" {
					t.Error("run ID should not be empty")
				}
				if run.Environment != "production" {
					t.Errorf("expected environment 'production', got %q", run.Environment)
				}
				if run.Status != RunStatusRunning {
					t.Errorf("expected status 'running', got %q", run.Status)
				}
			},
		},
		{
			name: "get run",
			setup: func(t *testing.T, store *SQLiteStore) *Run {
				run, err := store.CreateRun("staging")
				if err != nil {
					t.Fatalf("failed to create run: %v", err)
				}
				return run
			},
			operation: func(t *testing.T, store *SQLiteStore, run *Run) {
				retrieved, err := store.GetRun(run.ID)
				if err != nil {
					t.Fatalf("failed to get run: %v", err)
				}
				if retrieved.ID != run.ID {
					t.Errorf("expected ID %q, got %q", run.ID, retrieved.ID)
				}
				if retrieved.Environment != "staging" {
					t.Errorf("expected environment 'staging', got %q", retrieved.Environment)
				}
				if retrieved.CompletedAt != nil {
					t.Error("completed_at should be nil for a running run")
				}
			},
		},
		{
			name:  "get run not found",
			setup: func(t *testing.T, store *SQLiteStore) *Run { return nil },
			operation: func(t *testing.T, store *SQLiteStore, run *Run) {
				if _, err := store.GetRun("nonexistent-id"); err == nil {
					t.Error("expected error for nonexistent run")
				}
			},
		},
		{
			name: "complete run success",
			setup: func(t *testing.T, store *SQLiteStore) *Run {
				run, err := store.CreateRun("dev")
				if err != nil {
					t.Fatalf("failed to create run: %v", err)
				}
				return run
			},
			operation: func(t *testing.T, store *SQLiteStore, run *Run) {
				if err := store.CompleteRun(run.ID, RunStatusSuccessful, ""); err != nil {
					t.Fatalf("failed to complete run: %v", err)
				}
				retrieved, err := store.GetRun(run.ID)
				if err != nil {
					t.Fatalf("failed to get run: %v", err)
				}
				if retrieved.Status != RunStatusSuccessful {
					t.Errorf("expected status 'successful', got %q", retrieved.Status)
				}
				if retrieved.CompletedAt == nil {
					t.Error("completed_at should be set")
				}
				if retrieved.Error != "" {
					t.Errorf("error should be empty, got %q", retrieved.Error)
				}
			},
		},
		{
			name: "complete run failure with error",
			setup: func(t *testing.T, store *SQLiteStore) *Run {
				run, err := store.CreateRun("dev")
				if err != nil {
					t.Fatalf("failed to create run: %v", err)
				}
				return run
			},
			operation: func(t *testing.T, store *SQLiteStore, run *Run) {
				if err := store.CompleteRun(run.ID, RunStatusFailed, "2 actions failed"); err != nil {
					t.Fatalf("failed to complete run: %v", err)
				}
				retrieved, err := store.GetRun(run.ID)
				if err != nil {
					t.Fatalf("failed to get run: %v", err)
				}
				if retrieved.Status != RunStatusFailed {
					t.Errorf("expected status 'failed', got %q", retrieved.Status)
				}
				if retrieved.Error != "2 actions failed" {
					t.Errorf("expected error message, got %q", retrieved.Error)
				}
			},
		},
		{
			name:  "complete run not found",
			setup: func(t *testing.T, store *SQLiteStore) *Run { return nil },
			operation: func(t *testing.T, store *SQLiteStore, run *Run) {
				if err := store.CompleteRun("nonexistent-id", RunStatusSuccessful, ""); err == nil {
					t.Error("expected error for nonexistent run")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setupTestStore(t)
			run := tt.setup(t, store)
			tt.operation(t, store, run)
		})
	}
}

func TestSQLiteStore_ListRuns(t *testing.T) {
	store := setupTestStore(t)

	// Spread started_at so ordering is unambiguous.
	for i, env := range []string{"first", "second", "third"} {
		run := &Run{
			ID:          generateID(),
			Environment: env,
			Status:      RunStatusSuccessful,
			StartedAt:   time.Date(2025, 6, 1, 10, i, 0, 0, time.UTC),
		}
		_, err := store.db.Exec(
			`INSERT INTO runs (id, environment, status, started_at) VALUES (?, ?, ?, ?)`,
			run.ID, run.Environment, run.Status, run.StartedAt,
		)
		if err != nil {
			t.Fatalf("failed to seed run: %v", err)
		}
	}

	runs, err := store.ListRuns(2)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Environment != "third" || runs[1].Environment != "second" {
		t.Errorf("expected newest-first ordering, got %q then %q", runs[0].Environment, runs[1].Environment)
	}

	all, err := store.ListRuns(10)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 runs, got %d", len(all))
	}
}

// --- Action run tests ---

func TestSQLiteStore_ActionRunLifecycle(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.CreateRun("dev")
	if err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	ar := &ActionRun{
		RunID:  run.ID,
		Target: "analytics.reporting.daily_orders",
		Kind:   "table",
		Status: ActionStatusRunning,
	}
	if err := store.RecordActionRun(ar); err != nil {
		t.Fatalf("failed to record action run: %v", err)
	}
	if ar.ID == "" {
		t.Error("action run ID should be filled in")
	}
	if ar.StartedAt.IsZero() {
		t.Error("action run started_at should be filled in")
	}

	if err := store.UpdateActionRun(ar.ID, ActionStatusSuccessful, 42, 1, ""); err != nil {
		t.Fatalf("failed to update action run: %v", err)
	}

	actionRuns, err := store.GetActionRunsForRun(run.ID)
	if err != nil {
		t.Fatalf("failed to get action runs: %v", err)
	}
	if len(actionRuns) != 1 {
		t.Fatalf("expected 1 action run, got %d", len(actionRuns))
	}

	got := actionRuns[0]
	if got.Target != "analytics.reporting.daily_orders" {
		t.Errorf("unexpected target %q", got.Target)
	}
	if got.Status != ActionStatusSuccessful {
		t.Errorf("expected status 'successful', got %q", got.Status)
	}
	if got.RowsAffected != 42 {
		t.Errorf("expected 42 rows affected, got %d", got.RowsAffected)
	}
	if got.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", got.Attempts)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at should be set")
	}
	if got.ExecutionMS < 0 {
		t.Errorf("execution_ms should be non-negative, got %d", got.ExecutionMS)
	}
}

func TestSQLiteStore_ActionRunFailure(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.CreateRun("dev")
	if err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	ar := &ActionRun{
		RunID:  run.ID,
		Target: "analytics.checks.orders_not_null",
		Kind:   "assertion",
		Status: ActionStatusRunning,
	}
	if err := store.RecordActionRun(ar); err != nil {
		t.Fatalf("failed to record action run: %v", err)
	}

	if err := store.UpdateActionRun(ar.ID, ActionStatusFailed, 0, 3, "assertion failed with 7 rows"); err != nil {
		t.Fatalf("failed to update action run: %v", err)
	}

	actionRuns, err := store.GetActionRunsForRun(run.ID)
	if err != nil {
		t.Fatalf("failed to get action runs: %v", err)
	}
	if len(actionRuns) != 1 {
		t.Fatalf("expected 1 action run, got %d", len(actionRuns))
	}
	if actionRuns[0].Error != "assertion failed with 7 rows" {
		t.Errorf("unexpected error message %q", actionRuns[0].Error)
	}
	if actionRuns[0].Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", actionRuns[0].Attempts)
	}
}

func TestSQLiteStore_UpdateActionRunNotFound(t *testing.T) {
	store := setupTestStore(t)

	if err := store.UpdateActionRun("nonexistent-id", ActionStatusSuccessful, 0, 1, ""); err == nil {
		t.Error("expected error for nonexistent action run")
	}
}

func TestSQLiteStore_GetActionRunsForRunEmpty(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.CreateRun("dev")
	if err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	actionRuns, err := store.GetActionRunsForRun(run.ID)
	if err != nil {
		t.Fatalf("failed to get action runs: %v", err)
	}
	if len(actionRuns) != 0 {
		t.Errorf("expected no action runs, got %d", len(actionRuns))
	}
}
