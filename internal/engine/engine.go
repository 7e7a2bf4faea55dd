// Package engine builds and runs execution graphs against a warehouse.
// It resolves compiled actions into warehouse-ready statement plans,
// schedules them in dependency order with bounded concurrency, and
// records run history.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/millbrook-data/strata/internal/state"
	"github.com/millbrook-data/strata/pkg/adapter"
	"github.com/millbrook-data/strata/pkg/core"
)

// Engine owns the warehouse connection and the history store shared by
// build and run invocations.
type Engine struct {
	// Warehouse adapter (lazy initialized)
	db          adapter.Adapter
	dbConfig    adapter.Config
	dbConnected bool
	dbMu        sync.Mutex

	// Structured logger
	logger *slog.Logger

	store       state.Store
	notebooks   core.NotebookRunner
	environment string
}

// Config holds engine configuration.
type Config struct {
	// Adapter contains the warehouse connection configuration.
	Adapter adapter.Config
	// StatePath is the path to the SQLite history database.
	// Empty disables run-history recording.
	StatePath string
	// Environment is the current environment (dev, staging, prod).
	Environment string
	// NotebookRunner executes notebook actions. Optional; a selected
	// notebook action fails with a diagnostic when none is configured.
	NotebookRunner core.NotebookRunner
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// New creates a new engine with a lazy warehouse connection.
// The adapter is only connected when a build needs warehouse state or
// when Run is called.
func New(cfg Config) (*Engine, error) {
	// Initialize logger (use discard handler if nil)
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	env := cfg.Environment
	if env == "" {
		env = "dev"
	}

	dbConfig := cfg.Adapter
	if dbConfig.Type == "" {
		dbConfig.Type = "duckdb"
	}

	logger.Debug("initializing engine", "adapter_type", dbConfig.Type, "environment", env)

	var store state.Store
	if cfg.StatePath != "" {
		s := state.NewSQLiteStore(logger)
		if err := s.Open(cfg.StatePath); err != nil {
			return nil, fmt.Errorf("failed to open history store: %w", err)
		}
		if err := s.InitSchema(); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to initialize history schema: %w", err)
		}
		store = s
	}

	return &Engine{
		db:          nil, // Lazy
		dbConfig:    dbConfig,
		dbConnected: false,
		logger:      logger,
		store:       store,
		notebooks:   cfg.NotebookRunner,
		environment: env,
	}, nil
}

// ensureDBConnected lazily connects to the warehouse.
func (e *Engine) ensureDBConnected(ctx context.Context) error {
	e.dbMu.Lock()
	defer e.dbMu.Unlock()

	if e.dbConnected {
		return nil
	}

	e.logger.Debug("connecting to warehouse", "adapter_type", e.dbConfig.Type)

	// Use adapter registry to create the appropriate adapter
	db, err := adapter.NewAdapter(e.dbConfig, e.logger)
	if err != nil {
		return fmt.Errorf("failed to create warehouse adapter: %w", err)
	}

	if err := db.Connect(ctx, e.dbConfig); err != nil {
		return fmt.Errorf("failed to connect to warehouse: %w", err)
	}

	e.db = db
	e.dbConnected = true

	e.logger.Debug("warehouse connected", "dialect", db.DialectName())

	return nil
}

// Close releases all resources.
func (e *Engine) Close() error {
	e.logger.Debug("closing engine")

	var errs []error
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing engine: %v", errs)
	}
	return nil
}

// GetStateStore returns the run-history store, or nil when history
// recording is disabled.
func (e *Engine) GetStateStore() state.Store {
	return e.store
}
