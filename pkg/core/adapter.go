package core

import (
	"context"
	"database/sql"
)

// Adapter defines the interface that all warehouse adapters must
// implement. Implementations must be safe for concurrent use up to
// their reported concurrency.
type Adapter interface {
	// Connect establishes a connection to the warehouse.
	Connect(ctx context.Context, cfg AdapterConfig) error

	// Close closes the warehouse connection.
	Close() error

	// Exec executes a SQL statement that doesn't return rows and
	// reports the number of rows affected when the driver knows it.
	Exec(ctx context.Context, sql string) (int64, error)

	// Query executes a SQL statement that returns rows.
	Query(ctx context.Context, sql string) (*Rows, error)

	// TableExists reports whether the target relation exists.
	TableExists(ctx context.Context, target Target) (bool, error)

	// GetTableMetadata retrieves column metadata for a target relation.
	GetTableMetadata(ctx context.Context, target Target) (*TableMetadata, error)

	// DefaultConcurrency returns the warehouse-appropriate number of
	// concurrently in-flight statements.
	DefaultConcurrency() int

	// DialectName returns the adapter's dialect for display.
	DialectName() string
}

// NotebookRunner executes notebook actions. Notebook contents are
// opaque to the run core; the runner is an external collaborator.
type NotebookRunner interface {
	RunNotebook(ctx context.Context, target Target, contents string) error
}

// AdapterConfig holds configuration for connecting to a warehouse.
type AdapterConfig struct {
	Type     string
	Path     string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Schema   string
	Options  map[string]string
	Params   map[string]any
}

// Column represents a column in a warehouse table.
type Column struct {
	Name     string
	Type     string
	Nullable bool
	Position int
}

// TableMetadata holds metadata about a warehouse table.
type TableMetadata struct {
	Target  Target
	Columns []Column
}

// ColumnNames returns the column names in position order.
func (m *TableMetadata) ColumnNames() []string {
	names := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		names[i] = c.Name
	}
	return names
}

// Rows wraps sql.Rows to provide a consistent interface.
type Rows struct {
	*sql.Rows
}
