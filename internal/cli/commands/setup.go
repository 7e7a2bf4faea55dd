package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/millbrook-data/strata/internal/cli/output"
	"github.com/millbrook-data/strata/internal/config"
	"github.com/millbrook-data/strata/internal/engine"
	"github.com/millbrook-data/strata/internal/selector"
	"github.com/millbrook-data/strata/pkg/adapter"
	"github.com/millbrook-data/strata/pkg/core"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with engine and renderer.
// Returns the context and a cleanup function that must be called
// (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	eng, err := createEngine(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	cleanup := func() {
		_ = eng.Close()
	}

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Engine:   eng,
		Renderer: r,
	}, cleanup, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without an
// engine. Used by commands that only read the graph document.
func NewCommandContextWithoutEngine(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// Helper functions shared across commands

// getConfig returns the current configuration. It uses
// config.GetCurrentConfig() if available, otherwise falls back to
// environment variables.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}

	// Fallback: read from environment with defaults
	graphPath := getEnvOrDefault("STRATA_GRAPH", config.DefaultGraphFile)
	statePath := getEnvOrDefault("STRATA_STATE_PATH", config.DefaultStateFile)
	environment := getEnvOrDefault("STRATA_ENVIRONMENT", config.DefaultEnv)
	verbose := os.Getenv("STRATA_VERBOSE") == "true"
	outputFormat := os.Getenv("STRATA_OUTPUT")

	return &config.Config{
		GraphPath:    graphPath,
		StatePath:    statePath,
		Environment:  environment,
		Verbose:      verbose,
		OutputFormat: outputFormat,
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func createEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, error) {
	// Ensure state directory exists
	if cfg.StatePath != "" {
		if dir := filepath.Dir(cfg.StatePath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
		}
	}

	adapterCfg := adapter.Config{Type: "duckdb"}
	if cfg.Target != nil {
		adapterCfg = cfg.Target.AdapterConfig()
	}

	return engine.New(engine.Config{
		Adapter:     adapterCfg,
		StatePath:   cfg.StatePath,
		Environment: cfg.Environment,
		Logger:      logger,
	})
}

// loadGraph reads the compiled graph document named by the config.
func loadGraph(cfg *config.Config) (*core.Graph, error) {
	g, err := core.LoadGraphFile(cfg.GraphPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("graph file not found: %s\nHint: Point graph in strata.yaml (or --graph) at a compiled graph document", cfg.GraphPath)
		}
		return nil, fmt.Errorf("failed to load graph: %w", err)
	}
	return g, nil
}

// addSelectionFlags registers the action selection flags shared by run,
// plan and list.
func addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceP("select", "s", nil, "Select actions by identity pattern (* matches within one segment)")
	cmd.Flags().StringSlice("tag", nil, "Select actions carrying any of these tags")
	cmd.Flags().Bool("include-deps", false, "Expand the selection with transitive dependencies")
	cmd.Flags().Bool("include-dependents", false, "Expand the selection with transitive dependents")
}

// selectionFilter builds a selector filter from the selection flags.
// Positional args are treated as identity patterns.
func selectionFilter(cmd *cobra.Command, args []string) selector.Filter {
	patterns, _ := cmd.Flags().GetStringSlice("select")
	patterns = append(patterns, args...)
	tags, _ := cmd.Flags().GetStringSlice("tag")
	includeDeps, _ := cmd.Flags().GetBool("include-deps")
	includeDependents, _ := cmd.Flags().GetBool("include-dependents")

	return selector.Filter{
		Patterns:            patterns,
		Tags:                tags,
		IncludeDependencies: includeDeps,
		IncludeDependents:   includeDependents,
	}
}
