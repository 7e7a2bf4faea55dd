package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/millbrook-data/strata/internal/cli/output"
	"github.com/millbrook-data/strata/internal/state"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded run history",
		Long: `Show runs recorded in the history store, most recent first.

With a run id, show that run's per-action results instead.`,
		Example: `  # Recent runs
  strata history

  # More of them
  strata history --limit 50

  # One run in detail
  strata history 3f2a9c1e-...

  # As JSON
  strata history --output json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, args)
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum number of runs to show")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cmdCtx.Renderer
	store := cmdCtx.Engine.GetStateStore()
	if store == nil {
		return fmt.Errorf("no history store configured\nHint: Set state_path in strata.yaml to record runs")
	}

	if len(args) == 1 {
		return historyDetail(r, store, args[0])
	}

	limit, _ := cmd.Flags().GetInt("limit")
	return historyList(r, store, limit)
}

// historyList shows the most recent runs.
func historyList(r *output.Renderer, store state.Store, limit int) error {
	runs, err := store.ListRuns(limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if r.EffectiveMode() == output.ModeJSON {
		out := output.HistoryOutput{Runs: make([]output.HistoryRunOutput, 0, len(runs))}
		for _, run := range runs {
			out.Runs = append(out.Runs, historyRunOutput(run))
		}
		return r.JSON(out)
	}

	r.Header(1, fmt.Sprintf("Runs (%d)", len(runs)))
	r.Println("")

	if len(runs) == 0 {
		r.Muted("no runs recorded yet")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.Writer())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"RUN ID", "ENV", "STATUS", "STARTED", "DURATION", "ERROR"})

	for _, run := range runs {
		t.AppendRow(table.Row{
			run.ID,
			run.Environment,
			string(run.Status),
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			runDuration(run),
			run.Error,
		})
	}
	t.Render()

	return nil
}

// historyDetail shows one run's per-action results.
func historyDetail(r *output.Renderer, store state.Store, runID string) error {
	run, err := store.GetRun(runID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	actionRuns, err := store.GetActionRunsForRun(runID)
	if err != nil {
		return fmt.Errorf("failed to load action results: %w", err)
	}

	if r.EffectiveMode() == output.ModeJSON {
		out := output.HistoryDetailOutput{
			Run:     historyRunOutput(run),
			Actions: make([]output.ActionRunOutput, 0, len(actionRuns)),
		}
		for _, ar := range actionRuns {
			out.Actions = append(out.Actions, output.ActionRunOutput{
				Target:       ar.Target,
				Kind:         string(ar.Kind),
				Status:       string(ar.Status),
				Attempts:     ar.Attempts,
				RowsAffected: ar.RowsAffected,
				ExecutionMS:  ar.ExecutionMS,
				Error:        ar.Error,
			})
		}
		return r.JSON(out)
	}

	styles := r.Styles()

	r.Header(1, "Run "+run.ID)
	r.Printf("%s %s  %s %s  %s %s\n",
		styles.Muted.Render("env:"), run.Environment,
		styles.Muted.Render("status:"), r.StatusSymbol(string(run.Status))+" "+string(run.Status),
		styles.Muted.Render("started:"), run.StartedAt.Local().Format("2006-01-02 15:04:05"))
	if run.Error != "" {
		r.Error(run.Error)
	}
	r.Println("")

	if len(actionRuns) == 0 {
		r.Muted("no action results recorded")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.Writer())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"TARGET", "KIND", "STATUS", "ATTEMPTS", "ROWS", "MS", "ERROR"})

	for _, ar := range actionRuns {
		t.AppendRow(table.Row{
			ar.Target,
			string(ar.Kind),
			string(ar.Status),
			ar.Attempts,
			ar.RowsAffected,
			ar.ExecutionMS,
			ar.Error,
		})
	}
	t.Render()

	return nil
}

func historyRunOutput(run *state.Run) output.HistoryRunOutput {
	return output.HistoryRunOutput{
		ID:          run.ID,
		Environment: run.Environment,
		Status:      string(run.Status),
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		Error:       run.Error,
	}
}

// runDuration formats a run's wall time, or "-" while it is running.
func runDuration(run *state.Run) string {
	if run.CompletedAt == nil {
		return "-"
	}
	return run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
}
