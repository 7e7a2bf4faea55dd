package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/millbrook-data/strata/pkg/core"
)

// BaseSQLAdapter provides common database/sql functionality for
// adapters. Embed this struct in concrete adapter implementations to
// get standard Close, Exec, Query, and metadata implementations.
type BaseSQLAdapter struct {
	DB     *sql.DB
	Cfg    core.AdapterConfig
	Logger *slog.Logger

	// DefaultSchema qualifies targets that carry no schema.
	DefaultSchema string
	// Placeholder renders the dialect's bind placeholder for the
	// 1-based parameter index. Nil means "?".
	Placeholder func(i int) string
}

// Close closes the database connection.
func (b *BaseSQLAdapter) Close() error {
	if b.DB != nil {
		if b.Logger != nil {
			b.Logger.Debug("closing warehouse connection")
		}
		return b.DB.Close()
	}
	return nil
}

// Exec executes a SQL statement that doesn't return rows and reports
// the affected row count when the driver provides one.
func (b *BaseSQLAdapter) Exec(ctx context.Context, sqlStr string) (int64, error) {
	if b.DB == nil {
		return 0, fmt.Errorf("warehouse connection not established")
	}
	res, err := b.DB.ExecContext(ctx, sqlStr)
	if err != nil {
		return 0, fmt.Errorf("failed to execute SQL: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		// Some drivers cannot report counts for DDL.
		return 0, nil
	}
	return affected, nil
}

// Query executes a SQL statement that returns rows.
func (b *BaseSQLAdapter) Query(ctx context.Context, sqlStr string) (*core.Rows, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("warehouse connection not established")
	}
	//nolint:rowserrcheck // rows.Err() must be checked by caller after iteration completes
	rows, err := b.DB.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return &core.Rows{Rows: rows}, nil
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.DB != nil
}

// qualify fills the adapter's default schema into an unqualified target.
func (b *BaseSQLAdapter) qualify(target core.Target) (schema, name string) {
	schema = target.Schema
	if schema == "" {
		schema = b.DefaultSchema
	}
	return schema, target.Name
}

func (b *BaseSQLAdapter) placeholder(i int) string {
	if b.Placeholder == nil {
		return "?"
	}
	return b.Placeholder(i)
}

// TableExistsCommon provides a shared implementation of TableExists
// backed by information_schema.tables, which covers both tables and
// views.
func (b *BaseSQLAdapter) TableExistsCommon(ctx context.Context, target core.Target) (bool, error) {
	if b.DB == nil {
		return false, fmt.Errorf("warehouse connection not established")
	}

	schema, name := b.qualify(target)

	//nolint:gosec // Placeholders are safe - they come from the dialect's placeholder style
	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = %s AND table_name = %s
	`, b.placeholder(1), b.placeholder(2))

	var count int64
	if err := b.DB.QueryRowContext(ctx, query, schema, name).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to query table existence: %w", err)
	}
	return count > 0, nil
}

// GetTableMetadataCommon provides a shared implementation of
// GetTableMetadata backed by information_schema.columns with
// dialect-appropriate placeholders.
func (b *BaseSQLAdapter) GetTableMetadataCommon(ctx context.Context, target core.Target) (*core.TableMetadata, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("warehouse connection not established")
	}

	schema, name := b.qualify(target)

	//nolint:gosec // Placeholders are safe - they come from the dialect's placeholder style
	query := fmt.Sprintf(`
		SELECT
			column_name,
			data_type,
			is_nullable,
			ordinal_position
		FROM information_schema.columns
		WHERE table_schema = %s AND table_name = %s
		ORDER BY ordinal_position
	`, b.placeholder(1), b.placeholder(2))

	rows, err := b.DB.QueryContext(ctx, query, schema, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var columns []core.Column
	for rows.Next() {
		var col core.Column
		var nullable string
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &col.Position); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		col.Nullable = nullable == "YES"
		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}

	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s not found", target.String())
	}

	return &core.TableMetadata{
		Target:  core.Target{Database: target.Database, Schema: schema, Name: name},
		Columns: columns,
	}, nil
}
