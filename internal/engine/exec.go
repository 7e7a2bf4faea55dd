package engine

// exec.go - Statement plan execution against the warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/millbrook-data/strata/pkg/adapter"
	"github.com/millbrook-data/strata/pkg/core"
)

// executor interprets resolved statement plans. One executor is shared
// by all dispatch goroutines of a run; it holds no per-action state.
type executor struct {
	db        adapter.Adapter
	notebooks core.NotebookRunner
	logger    *slog.Logger
	jobPrefix string
}

// executeAction runs every step of an action's plan in order and
// returns the rows affected by the plan's main statement.
func (x *executor) executeAction(ctx context.Context, a *core.ExecutionAction) (int64, error) {
	var rows int64
	for _, step := range a.Steps {
		n, err := x.executeStep(ctx, a.Target, step)
		if err != nil {
			return rows, err
		}
		if n > 0 {
			rows = n
		}
	}
	return rows, nil
}

func (x *executor) executeStep(ctx context.Context, target core.Target, step core.PlanStep) (int64, error) {
	switch {
	case step.Merge != nil:
		return x.executeMerge(ctx, step.Merge)
	case step.Load != nil:
		return x.executeLoad(ctx, step.Load)
	case step.Assertion != nil:
		return 0, x.executeAssertion(ctx, step.Assertion)
	case step.Notebook != nil:
		return 0, x.executeNotebook(ctx, target, step.Notebook)
	default:
		return x.exec(ctx, step.SQL)
	}
}

func (x *executor) exec(ctx context.Context, sql string) (int64, error) {
	return x.db.Exec(ctx, x.label(sql))
}

// label prepends the run's job prefix as a SQL comment so dispatched
// statements are attributable in warehouse query logs.
func (x *executor) label(sql string) string {
	if x.jobPrefix == "" {
		return sql
	}
	return fmt.Sprintf("/* %s */ %s", x.jobPrefix, sql)
}

// executeMerge materializes the merge query into a staging table,
// reconciles schema drift per the configured policy, then upserts the
// staging rows into the target.
func (x *executor) executeMerge(ctx context.Context, m *core.MergeStep) (int64, error) {
	if _, err := x.exec(ctx, dropStagingSQL(m)); err != nil {
		return 0, fmt.Errorf("failed to drop stale staging table: %w", err)
	}
	if _, err := x.exec(ctx, createStagingSQL(m)); err != nil {
		return 0, fmt.Errorf("failed to create staging table: %w", err)
	}
	defer func() {
		_, _ = x.exec(context.WithoutCancel(ctx), dropStagingSQL(m))
	}()

	// Reconcile before any DDL or DML touches the target. Under the
	// ignore policy a mismatched merge fails naturally at the warehouse.
	var columns []string
	if m.OnSchemaChange != core.SchemaChangeIgnore {
		cols, err := x.reconcileSchema(ctx, m)
		if err != nil {
			return 0, err
		}
		columns = cols
	}

	if len(m.UniqueKey) > 0 {
		if _, err := x.exec(ctx, deleteMatchingSQL(m)); err != nil {
			return 0, fmt.Errorf("failed to delete matching rows: %w", err)
		}
	}

	rows, err := x.exec(ctx, insertFromStagingSQL(m, columns))
	if err != nil {
		return 0, fmt.Errorf("failed to insert incremental rows: %w", err)
	}
	return rows, nil
}

// reconcileSchema compares the staging and target column sets and
// applies the merge's schema-change policy. It returns the staging
// column order so the merge insert is by name, not position.
func (x *executor) reconcileSchema(ctx context.Context, m *core.MergeStep) ([]string, error) {
	staging, err := x.db.GetTableMetadata(ctx, m.StagingTarget())
	if err != nil {
		return nil, fmt.Errorf("failed to read staging schema: %w", err)
	}
	target, err := x.db.GetTableMetadata(ctx, m.Target)
	if err != nil {
		return nil, fmt.Errorf("failed to read target schema: %w", err)
	}

	targetCols := make(map[string]bool, len(target.Columns))
	for _, c := range target.Columns {
		targetCols[strings.ToLower(c.Name)] = true
	}
	stagingCols := make(map[string]bool, len(staging.Columns))
	for _, c := range staging.Columns {
		stagingCols[strings.ToLower(c.Name)] = true
	}

	var added []core.Column
	for _, c := range staging.Columns {
		if !targetCols[strings.ToLower(c.Name)] {
			added = append(added, c)
		}
	}
	var removed []string
	for _, c := range target.Columns {
		if !stagingCols[strings.ToLower(c.Name)] {
			removed = append(removed, c.Name)
		}
	}

	switch m.OnSchemaChange {
	case core.SchemaChangeFail:
		if len(added) > 0 || len(removed) > 0 {
			return nil, fmt.Errorf("schema change on %s rejected by policy %q: new columns %v, missing columns %v",
				relationName(m.Target), m.OnSchemaChange, columnNames(added), removed)
		}

	case core.SchemaChangeExtend:
		if len(removed) > 0 {
			return nil, fmt.Errorf("schema change on %s rejected by policy %q: columns %v are absent from the query result",
				relationName(m.Target), m.OnSchemaChange, removed)
		}
		for _, c := range added {
			x.logger.Debug("extending target schema", "target", relationName(m.Target), "column", c.Name, "type", c.Type)
			if _, err := x.exec(ctx, addColumnSQL(m.Target, c)); err != nil {
				return nil, fmt.Errorf("failed to add column %s: %w", c.Name, err)
			}
		}

	case core.SchemaChangeSynchronize:
		for _, c := range added {
			if _, err := x.exec(ctx, addColumnSQL(m.Target, c)); err != nil {
				return nil, fmt.Errorf("failed to add column %s: %w", c.Name, err)
			}
		}
		for _, name := range removed {
			if _, err := x.exec(ctx, dropColumnSQL(m.Target, name)); err != nil {
				return nil, fmt.Errorf("failed to drop column %s: %w", name, err)
			}
		}
	}

	return staging.ColumnNames(), nil
}

// executeLoad inserts the load query's rows into the target. When an
// error table is configured, a failing load records the candidate rows
// there instead of failing the action.
func (x *executor) executeLoad(ctx context.Context, l *core.LoadStep) (int64, error) {
	rows, err := x.exec(ctx, loadSQL(l))
	if err == nil {
		return rows, nil
	}
	if l.ErrorTable == nil || ctx.Err() != nil {
		return 0, fmt.Errorf("failed to load %s: %w", relationName(l.Target), err)
	}

	x.logger.Warn("load failed, routing rows to error table",
		"target", relationName(l.Target),
		"error_table", relationName(*l.ErrorTable),
		"error", err)

	var routed int64
	for _, stmt := range errorTableRoutingSQL(l) {
		n, rerr := x.exec(ctx, stmt)
		if rerr != nil {
			return 0, fmt.Errorf("failed to load %s and error table routing failed: %w",
				relationName(l.Target), errors.Join(err, rerr))
		}
		if n > 0 {
			routed = n
		}
	}
	return routed, nil
}

// executeAssertion runs the quality check. Every returned row is a
// failing record; the action fails with the row count, which is a data
// defect rather than a warehouse fault.
func (x *executor) executeAssertion(ctx context.Context, step *core.AssertionStep) error {
	rows, err := x.db.Query(ctx, x.label(step.Query))
	if err != nil {
		return fmt.Errorf("assertion query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var failing int64
	for rows.Next() {
		failing++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("assertion query failed: %w", err)
	}
	if failing > 0 {
		return fmt.Errorf("assertion failed: %d failing row(s)", failing)
	}
	return nil
}

func (x *executor) executeNotebook(ctx context.Context, target core.Target, step *core.NotebookStep) error {
	if x.notebooks == nil {
		return fmt.Errorf("no notebook runner configured")
	}
	if err := x.notebooks.RunNotebook(ctx, target, step.Contents); err != nil {
		return fmt.Errorf("notebook execution failed: %w", err)
	}
	return nil
}

func columnNames(cols []core.Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}
