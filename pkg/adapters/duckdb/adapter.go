// Package duckdb provides a DuckDB warehouse adapter for Strata.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver

	"github.com/millbrook-data/strata/pkg/adapter"
	"github.com/millbrook-data/strata/pkg/core"
)

// Adapter implements the adapter.Adapter interface for DuckDB.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new DuckDB adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{
			Logger:        logger,
			DefaultSchema: "main",
		},
	}
}

// DialectName returns the SQL dialect for this adapter.
func (a *Adapter) DialectName() string {
	return "duckdb"
}

// DefaultConcurrency returns the in-flight statement bound. DuckDB is
// an embedded engine sharing one process, so the bound stays modest.
func (a *Adapter) DefaultConcurrency() int {
	return 4
}

// Connect establishes a connection to DuckDB.
// Use ":memory:" as the path for an in-memory database.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	a.DB = db
	a.Cfg = cfg

	params, err := ParseParams(cfg.Params)
	if err != nil {
		_ = db.Close()
		a.DB = nil
		return err
	}
	if err := a.applyParams(ctx, params); err != nil {
		_ = db.Close()
		a.DB = nil
		return err
	}

	return nil
}

// applyParams installs extensions and applies session settings in
// deterministic order.
func (a *Adapter) applyParams(ctx context.Context, params *Params) error {
	for _, ext := range params.Extensions {
		a.Logger.Debug("loading duckdb extension", slog.String("extension", ext))
		if _, err := a.Exec(ctx, fmt.Sprintf("INSTALL %s", ext)); err != nil {
			return fmt.Errorf("failed to install extension %s: %w", ext, err)
		}
		if _, err := a.Exec(ctx, fmt.Sprintf("LOAD %s", ext)); err != nil {
			return fmt.Errorf("failed to load extension %s: %w", ext, err)
		}
	}

	keys := make([]string, 0, len(params.Settings))
	for k := range params.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := a.Exec(ctx, fmt.Sprintf("SET %s = '%s'", k, params.Settings[k])); err != nil {
			return fmt.Errorf("failed to apply setting %s: %w", k, err)
		}
	}

	return nil
}

// TableExists reports whether the target relation exists.
func (a *Adapter) TableExists(ctx context.Context, target core.Target) (bool, error) {
	return a.TableExistsCommon(ctx, target)
}

// GetTableMetadata retrieves column metadata for a target relation.
func (a *Adapter) GetTableMetadata(ctx context.Context, target core.Target) (*core.TableMetadata, error) {
	return a.GetTableMetadataCommon(ctx, target)
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
