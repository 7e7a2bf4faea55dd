package engine

// statements.go - SQL statement construction for resolved action plans

import (
	"fmt"
	"strings"

	"github.com/millbrook-data/strata/pkg/core"
)

// stagingSuffix is appended to a target's name to form the staging
// relation used by incremental merges.
const stagingSuffix = "__tmp"

// relationName returns the qualified SQL name for a target.
func relationName(t core.Target) string {
	return t.String()
}

// schemaName returns the qualified schema for a target, or "" when the
// target is schema-less.
func schemaName(t core.Target) string {
	if t.Schema == "" {
		return ""
	}
	if t.Database != "" {
		return t.Database + "." + t.Schema
	}
	return t.Schema
}

func sqlStep(sql string) core.PlanStep {
	return core.PlanStep{SQL: sql}
}

func sqlSteps(statements []string) []core.PlanStep {
	steps := make([]core.PlanStep, 0, len(statements))
	for _, s := range statements {
		steps = append(steps, sqlStep(s))
	}
	return steps
}

// createSchemaStep emits a schema-creation statement for qualified
// targets so rebuilds work against a fresh warehouse.
func createSchemaStep(t core.Target) []core.PlanStep {
	schema := schemaName(t)
	if schema == "" {
		return nil
	}
	return []core.PlanStep{sqlStep(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema))}
}

// tableRebuildSteps resolves a full create-or-replace table build:
// pre-ops, drop, schema creation, create-as-select, post-ops.
func tableRebuildSteps(t core.Target, query string, preOps, postOps []string) []core.PlanStep {
	rel := relationName(t)

	var steps []core.PlanStep
	steps = append(steps, sqlSteps(preOps)...)
	steps = append(steps, sqlStep(fmt.Sprintf("DROP TABLE IF EXISTS %s", rel)))
	steps = append(steps, createSchemaStep(t)...)
	steps = append(steps, sqlStep(fmt.Sprintf("CREATE TABLE %s AS %s", rel, query)))
	steps = append(steps, sqlSteps(postOps)...)
	return steps
}

// viewSteps resolves a create-or-replace view build.
func viewSteps(t core.Target, query string, preOps, postOps []string) []core.PlanStep {
	rel := relationName(t)

	var steps []core.PlanStep
	steps = append(steps, sqlSteps(preOps)...)
	steps = append(steps, sqlStep(fmt.Sprintf("DROP VIEW IF EXISTS %s", rel)))
	steps = append(steps, createSchemaStep(t)...)
	steps = append(steps, sqlStep(fmt.Sprintf("CREATE VIEW %s AS %s", rel, query)))
	steps = append(steps, sqlSteps(postOps)...)
	return steps
}

// mergeSteps resolves an incremental merge into an existing target.
// The merge itself stays structured; schema reconciliation and the
// delete-insert sequence depend on live warehouse state.
func mergeSteps(t core.Target, spec *core.TableSpec) []core.PlanStep {
	query := spec.IncrementalQuery
	if query == "" {
		query = spec.Query
	}
	policy := spec.OnSchemaChange
	if policy == "" {
		policy = core.SchemaChangeIgnore
	}

	var steps []core.PlanStep
	steps = append(steps, sqlSteps(spec.IncrementalPreOps)...)
	steps = append(steps, core.PlanStep{Merge: &core.MergeStep{
		Target:         t,
		StagingName:    t.Name + stagingSuffix,
		Query:          query,
		UniqueKey:      spec.UniqueKey,
		OnSchemaChange: policy,
	}})
	steps = append(steps, sqlSteps(spec.IncrementalPostOps)...)
	return steps
}

// dropStagingSQL removes the staging relation of a merge.
func dropStagingSQL(m *core.MergeStep) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", relationName(m.StagingTarget()))
}

// createStagingSQL materializes the merge query into the staging table.
func createStagingSQL(m *core.MergeStep) string {
	return fmt.Sprintf("CREATE TABLE %s AS %s", relationName(m.StagingTarget()), m.Query)
}

// deleteMatchingSQL removes target rows whose unique key appears in the
// staging table, so the subsequent insert upserts them.
func deleteMatchingSQL(m *core.MergeStep) string {
	keys := strings.Join(m.UniqueKey, ", ")
	return fmt.Sprintf("DELETE FROM %s WHERE (%s) IN (SELECT %s FROM %s)",
		relationName(m.Target), keys, keys, relationName(m.StagingTarget()))
}

// insertFromStagingSQL copies staging rows into the target. With a
// column list the insert is by name; without one it is positional and
// a schema mismatch fails at the warehouse.
func insertFromStagingSQL(m *core.MergeStep, columns []string) string {
	if len(columns) == 0 {
		return fmt.Sprintf("INSERT INTO %s SELECT * FROM %s",
			relationName(m.Target), relationName(m.StagingTarget()))
	}
	cols := strings.Join(columns, ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		relationName(m.Target), cols, cols, relationName(m.StagingTarget()))
}

// addColumnSQL extends the target with a column discovered in the
// staging schema.
func addColumnSQL(t core.Target, col core.Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", relationName(t), col.Name, col.Type)
}

// dropColumnSQL removes a target column absent from the staging schema.
func dropColumnSQL(t core.Target, name string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", relationName(t), name)
}

// loadSQL builds the insert statement for a resolved load step.
// The maximum mode guards against an empty target, where MAX() yields
// NULL and would otherwise filter out every row.
func loadSQL(l *core.LoadStep) string {
	rel := relationName(l.Target)
	switch l.Mode {
	case core.LoadModeMaximum:
		return fmt.Sprintf(
			"INSERT INTO %s SELECT * FROM (%s) AS src WHERE (SELECT MAX(%s) FROM %s) IS NULL OR src.%s > (SELECT MAX(%s) FROM %s)",
			rel, l.Query, l.Column, rel, l.Column, l.Column, rel)
	case core.LoadModeUnique:
		return fmt.Sprintf(
			"INSERT INTO %s SELECT * FROM (%s) AS src WHERE NOT EXISTS (SELECT 1 FROM %s existing WHERE existing.%s = src.%s)",
			rel, l.Query, rel, l.Column, l.Column)
	default:
		return fmt.Sprintf("INSERT INTO %s SELECT * FROM (%s) AS src", rel, l.Query)
	}
}

// errorTableRoutingSQL builds the statements that record a failed
// load's candidate rows in the configured error table.
func errorTableRoutingSQL(l *core.LoadStep) []string {
	rel := relationName(*l.ErrorTable)
	statements := make([]string, 0, 3)
	if schema := schemaName(*l.ErrorTable); schema != "" {
		statements = append(statements, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema))
	}
	statements = append(statements,
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s AS SELECT * FROM (%s) AS src WHERE 1 = 0", rel, l.Query),
		fmt.Sprintf("INSERT INTO %s SELECT * FROM (%s) AS src", rel, l.Query),
	)
	return statements
}

// countRowsSQL reports the current row count of a relation.
func countRowsSQL(t core.Target) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s", relationName(t))
}
