// Package postgres provides a PostgreSQL warehouse adapter for Strata.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"github.com/millbrook-data/strata/pkg/adapter"
	"github.com/millbrook-data/strata/pkg/core"
)

// Adapter implements the adapter.Adapter interface for PostgreSQL.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new PostgreSQL adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{
			Logger:        logger,
			DefaultSchema: "public",
			Placeholder:   func(i int) string { return fmt.Sprintf("$%d", i) },
		},
	}
}

// DialectName returns the SQL dialect for this adapter.
func (a *Adapter) DialectName() string {
	return "postgres"
}

// DefaultConcurrency returns the in-flight statement bound. Postgres
// handles concurrent sessions well, so the bound is higher than for
// embedded engines.
func (a *Adapter) DefaultConcurrency() int {
	return 8
}

// Connect establishes a connection to PostgreSQL. The pool is capped
// at the adapter's concurrency so a saturated run never queues more
// sessions than the scheduler dispatches.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	dsn := buildPostgresDSN(cfg)

	a.Logger.Debug("connecting to postgres", slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(a.DefaultConcurrency())

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// buildPostgresDSN renders a key=value connection string. sslmode
// defaults to disable; any other entries in Options pass through to the
// driver in sorted order.
func buildPostgresDSN(cfg adapter.Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslmode := "disable"
	if mode, ok := cfg.Options["sslmode"]; ok {
		sslmode = mode
	}

	parts := []string{
		fmt.Sprintf("host=%s", host),
		fmt.Sprintf("port=%d", port),
		fmt.Sprintf("dbname=%s", cfg.Database),
		fmt.Sprintf("sslmode=%s", sslmode),
	}
	if cfg.Username != "" {
		parts = append(parts, fmt.Sprintf("user=%s", cfg.Username))
	}
	if cfg.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", cfg.Password))
	}

	extra := make([]string, 0, len(cfg.Options))
	for k := range cfg.Options {
		if k != "sslmode" {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		parts = append(parts, fmt.Sprintf("%s=%s", k, cfg.Options[k]))
	}

	return strings.Join(parts, " ")
}

// TableExists reports whether the target relation exists.
func (a *Adapter) TableExists(ctx context.Context, target core.Target) (bool, error) {
	return a.TableExistsCommon(ctx, target)
}

// GetTableMetadata retrieves column metadata for a target relation.
func (a *Adapter) GetTableMetadata(ctx context.Context, target core.Target) (*core.TableMetadata, error) {
	return a.GetTableMetadataCommon(ctx, target)
}

var _ adapter.Adapter = (*Adapter)(nil)
