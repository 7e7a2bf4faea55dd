package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/millbrook-data/strata/internal/cli/output"
)

const initConfig = `# Strata project configuration.
# Precedence: flags > STRATA_* environment variables > this file > defaults.

# Compiled graph document produced by your compiler.
graph: target/graph.json

# Run history database.
state_path: .strata/history.db

environment: dev

target:
  type: duckdb
  # path: warehouse.duckdb   # omit for an in-memory database

# environments:
#   prod:
#     state_path: .strata/prod-history.db
#     target:
#       type: duckdb
#       path: prod.duckdb
`

const initGitignore = `.strata/
`

// initGraph is a small runnable demo: a seeding operation, a staging
// table, an incremental table, a view and an assertion.
const initGraph = `{
  "actions": [
    {
      "target": {"schema": "raw", "name": "events"},
      "kind": "declaration",
      "declaration": {"description": "Raw events loaded outside Strata"}
    },
    {
      "target": {"schema": "analytics", "name": "seed_demo"},
      "kind": "operation",
      "tags": ["demo"],
      "operation": {
        "queries": [
          "CREATE SCHEMA IF NOT EXISTS raw",
          "CREATE OR REPLACE TABLE raw.events AS SELECT * FROM (VALUES (1, 'signup', TIMESTAMP '2024-01-01 08:00:00'), (2, 'login', TIMESTAMP '2024-01-02 09:30:00')) AS t(event_id, kind, occurred_at)"
        ]
      }
    },
    {
      "target": {"schema": "analytics", "name": "stg_events"},
      "kind": "table",
      "tags": ["demo"],
      "dependencies": [
        {"target": {"schema": "raw", "name": "events"}},
        {"target": {"schema": "analytics", "name": "seed_demo"}}
      ],
      "table": {
        "kind": "table",
        "query": "SELECT event_id, kind, occurred_at FROM raw.events"
      }
    },
    {
      "target": {"schema": "analytics", "name": "fct_events"},
      "kind": "table",
      "tags": ["demo"],
      "dependencies": [{"target": {"schema": "analytics", "name": "stg_events"}}],
      "table": {
        "kind": "incremental",
        "query": "SELECT event_id, kind, occurred_at FROM analytics.stg_events",
        "uniqueKey": ["event_id"]
      }
    },
    {
      "target": {"schema": "analytics", "name": "v_daily_events"},
      "kind": "table",
      "tags": ["demo"],
      "dependencies": [{"target": {"schema": "analytics", "name": "fct_events"}}],
      "table": {
        "kind": "view",
        "query": "SELECT CAST(occurred_at AS DATE) AS day, COUNT(*) AS events FROM analytics.fct_events GROUP BY 1"
      }
    },
    {
      "target": {"schema": "analytics", "name": "assert_events_not_empty"},
      "kind": "assertion",
      "tags": ["demo"],
      "dependencies": [{"target": {"schema": "analytics", "name": "fct_events"}}],
      "assertion": {
        "query": "SELECT 1 WHERE (SELECT COUNT(*) FROM analytics.fct_events) = 0"
      }
    }
  ]
}
`

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new Strata project",
		Long: `Initialize a new Strata project.

This creates:
  - strata.yaml configuration file
  - target/graph.json demo graph document
  - .gitignore entry for the local history store

The demo graph runs against an in-memory DuckDB out of the box.`,
		Example: `  # Initialize in the current directory
  strata init

  # Initialize in a new directory
  strata init my-project

  # Overwrite an existing configuration
  strata init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			cfg := getConfig()
			mode := output.Mode(cfg.OutputFormat)
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

			return runInit(r, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

func runInit(r *output.Renderer, dir string, force bool) error {
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, "strata.yaml")
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("strata.yaml already exists. Use --force to overwrite")
	}

	if err := os.MkdirAll(filepath.Join(dir, "target"), 0750); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}

	files := map[string]string{
		"strata.yaml":       initConfig,
		"target/graph.json": initGraph,
	}
	// Never clobber an existing .gitignore.
	gitignorePath := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(gitignorePath); os.IsNotExist(err) {
		files[".gitignore"] = initGitignore
	}

	for _, name := range []string{"strata.yaml", "target/graph.json", ".gitignore"} {
		content, ok := files[name]
		if !ok {
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		r.StatusLine(name, "success", "")
	}

	r.Println("")
	r.Success("Strata project initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  strata list      See the demo actions")
	r.Println("  strata plan      Inspect the resolved statement plans")
	r.Println("  strata run       Execute the demo graph")
	r.Println("  strata history   Review recorded runs")

	return nil
}
