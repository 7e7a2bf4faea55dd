package commands

import (
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/millbrook-data/strata/internal/config"
)

func TestGetConfig_EnvFallback(t *testing.T) {
	config.ResetConfig()
	t.Setenv("STRATA_GRAPH", "compiled/graph.yaml")
	t.Setenv("STRATA_STATE_PATH", "/tmp/strata-history.db")
	t.Setenv("STRATA_ENVIRONMENT", "staging")
	t.Setenv("STRATA_VERBOSE", "true")
	t.Setenv("STRATA_OUTPUT", "json")

	cfg := getConfig()

	assert.Equal(t, "compiled/graph.yaml", cfg.GraphPath)
	assert.Equal(t, "/tmp/strata-history.db", cfg.StatePath)
	assert.Equal(t, "staging", cfg.Environment)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, "json", cfg.OutputFormat)
}

func TestGetConfig_Defaults(t *testing.T) {
	config.ResetConfig()
	t.Setenv("STRATA_GRAPH", "")
	t.Setenv("STRATA_STATE_PATH", "")
	t.Setenv("STRATA_ENVIRONMENT", "")
	t.Setenv("STRATA_VERBOSE", "")
	t.Setenv("STRATA_OUTPUT", "")

	cfg := getConfig()

	assert.Equal(t, config.DefaultGraphFile, cfg.GraphPath)
	assert.Equal(t, config.DefaultStateFile, cfg.StatePath)
	assert.Equal(t, config.DefaultEnv, cfg.Environment)
	assert.False(t, cfg.Verbose)
}

func TestSelectionFilter(t *testing.T) {
	cmd := &cobra.Command{}
	addSelectionFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{
		"--select", "analytics.orders",
		"--tag", "nightly",
		"--include-deps",
	}))

	f := selectionFilter(cmd, []string{"analytics.customers"})

	assert.Equal(t, []string{"analytics.orders", "analytics.customers"}, f.Patterns)
	assert.Equal(t, []string{"nightly"}, f.Tags)
	assert.True(t, f.IncludeDependencies)
	assert.False(t, f.IncludeDependents)
}

func TestSelectionFilter_Empty(t *testing.T) {
	cmd := &cobra.Command{}
	addSelectionFlags(cmd)
	require.NoError(t, cmd.ParseFlags(nil))

	f := selectionFilter(cmd, nil)

	assert.True(t, f.Empty())
}

func TestLoadGraph(t *testing.T) {
	t.Run("valid graph", func(t *testing.T) {
		g, err := loadGraph(&config.Config{GraphPath: writeGraphFile(t, doctorGraph)})
		require.NoError(t, err)
		assert.Len(t, g.Actions, 2)
	})

	t.Run("missing file carries a hint", func(t *testing.T) {
		_, err := loadGraph(&config.Config{GraphPath: filepath.Join(t.TempDir(), "graph.json")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "graph file not found")
		assert.Contains(t, err.Error(), "Hint:")
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := loadGraph(&config.Config{GraphPath: "graph.toml"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported graph file extension")
	})
}
