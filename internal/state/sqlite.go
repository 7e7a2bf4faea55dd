package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/millbrook-data/strata/pkg/core"
)

// SQLiteStore implements core.Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite history store instance.
// If logger is nil, a discard logger is used.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open opens a connection to the SQLite database.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if path != ":memory:" {
		if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	s.db = db
	s.path = path
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InitSchema brings the database schema up to date.
func (s *SQLiteStore) InitSchema() error {
	return s.Migrate()
}

// generateID creates a new UUID.
func generateID() string {
	return uuid.New().String()
}

// --- Run operations ---

// CreateRun creates a new run in running state.
func (s *SQLiteStore) CreateRun(environment string) (*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &core.Run{
		ID:          generateID(),
		Environment: environment,
		Status:      core.RunStatusRunning,
		StartedAt:   time.Now().UTC(),
	}

	s.logger.Debug("creating run", slog.String("id", run.ID), slog.String("environment", environment))

	_, err := s.db.Exec(
		`INSERT INTO runs (id, environment, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Environment, run.Status, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	return run, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &core.Run{}
	var completedAt sql.NullTime
	var errMsg sql.NullString

	err := s.db.QueryRow(
		`SELECT id, environment, status, started_at, completed_at, error FROM runs WHERE id = ?`,
		id,
	).Scan(&run.ID, &run.Environment, &run.Status, &run.StartedAt, &completedAt, &errMsg)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}

	return run, nil
}

// CompleteRun marks a run as finished with the given status.
func (s *SQLiteStore) CompleteRun(id string, status core.RunStatus, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	now := time.Now().UTC()
	var errorPtr *string
	if errMsg != "" {
		errorPtr = &errMsg
	}

	result, err := s.db.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		status, now, errorPtr, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	return nil
}

// ListRuns retrieves the most recent runs up to the given limit, newest
// first.
func (s *SQLiteStore) ListRuns(limit int) ([]*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, environment, status, started_at, completed_at, error
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*core.Run
	for rows.Next() {
		run := &core.Run{}
		var completedAt sql.NullTime
		var errMsg sql.NullString

		if err := rows.Scan(&run.ID, &run.Environment, &run.Status, &run.StartedAt, &completedAt, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		if completedAt.Valid {
			run.CompletedAt = &completedAt.Time
		}
		if errMsg.Valid {
			run.Error = errMsg.String
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// --- Action run operations ---

// RecordActionRun records a new action execution. The ID and start time
// are filled in when unset.
func (s *SQLiteStore) RecordActionRun(actionRun *core.ActionRun) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if actionRun.ID == "" {
		actionRun.ID = generateID()
	}
	if actionRun.StartedAt.IsZero() {
		actionRun.StartedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(
		`INSERT INTO action_runs (id, run_id, target, kind, status, rows_affected, attempts, started_at, error, execution_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		actionRun.ID, actionRun.RunID, actionRun.Target, actionRun.Kind, actionRun.Status,
		actionRun.RowsAffected, actionRun.Attempts, actionRun.StartedAt, actionRun.Error, actionRun.ExecutionMS,
	)
	if err != nil {
		return fmt.Errorf("failed to record action run: %w", err)
	}

	return nil
}

// UpdateActionRun updates the terminal state of an action run.
func (s *SQLiteStore) UpdateActionRun(id string, status core.ActionStatus, rowsAffected int64, attempts int, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	now := time.Now().UTC()
	var errorPtr *string
	if errMsg != "" {
		errorPtr = &errMsg
	}

	var startedAt time.Time
	err := s.db.QueryRow(`SELECT started_at FROM action_runs WHERE id = ?`, id).Scan(&startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("action run not found: %s", id)
	}
	if err != nil {
		return fmt.Errorf("failed to get action run start time: %w", err)
	}

	executionMS := now.Sub(startedAt).Milliseconds()

	_, err = s.db.Exec(
		`UPDATE action_runs SET status = ?, rows_affected = ?, attempts = ?, completed_at = ?, error = ?, execution_ms = ? WHERE id = ?`,
		status, rowsAffected, attempts, now, errorPtr, executionMS, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update action run: %w", err)
	}

	return nil
}

// GetActionRunsForRun retrieves all action runs for a given run in
// start order.
func (s *SQLiteStore) GetActionRunsForRun(runID string) ([]*core.ActionRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, run_id, target, kind, status, rows_affected, attempts, started_at, completed_at, error, execution_ms
		 FROM action_runs WHERE run_id = ? ORDER BY started_at, id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get action runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var actionRuns []*core.ActionRun
	for rows.Next() {
		ar := &core.ActionRun{}
		var completedAt sql.NullTime
		var errMsg sql.NullString

		err := rows.Scan(&ar.ID, &ar.RunID, &ar.Target, &ar.Kind, &ar.Status,
			&ar.RowsAffected, &ar.Attempts, &ar.StartedAt, &completedAt, &errMsg, &ar.ExecutionMS)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action run: %w", err)
		}

		if completedAt.Valid {
			ar.CompletedAt = &completedAt.Time
		}
		if errMsg.Valid {
			ar.Error = errMsg.String
		}
		actionRuns = append(actionRuns, ar)
	}

	return actionRuns, rows.Err()
}

// Ensure SQLiteStore implements core.Store interface
var _ core.Store = (*SQLiteStore)(nil)
