package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/millbrook-data/strata/internal/cli/output"
	"github.com/millbrook-data/strata/internal/engine"
	"github.com/millbrook-data/strata/pkg/core"
)

// jobPrefix labels every statement dispatched by the CLI.
const jobPrefix = "strata"

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [patterns...]",
		Short: "Execute actions against the warehouse",
		Long: `Execute the selected actions of the compiled graph in dependency
order, with bounded concurrency.

By default every action in the graph runs. Positional patterns and the
selection flags narrow the run; --include-deps and --include-dependents
expand it transitively. Incremental tables merge into their existing
warehouse state unless --full-refresh forces a rebuild.

A failing action marks all of its transitive dependents SKIPPED. On
interrupt (Ctrl-C) no new action starts; in-flight actions drain to
their natural status and everything still pending is CANCELLED.`,
		Example: `  # Run the whole graph
  strata run

  # Run one action and everything downstream of it
  strata run analytics.orders --include-dependents

  # Run all actions tagged daily
  strata run --tag daily

  # Rebuild incremental tables from scratch
  strata run --full-refresh

  # Resolve plans without touching the warehouse
  strata run --dry-run`,
		Aliases: []string{"build"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args)
		},
	}

	addSelectionFlags(cmd)
	cmd.Flags().Bool("full-refresh", false, "Rebuild incremental tables instead of merging")
	cmd.Flags().Bool("dry-run", false, "Resolve statement plans but dispatch nothing")
	cmd.Flags().Int("concurrency", 0, "Maximum in-flight warehouse operations (0 = adapter default)")
	cmd.Flags().Int("retry-limit", 0, "Retries for idempotent actions after a failure")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := cmdCtx.Cfg
	r := cmdCtx.Renderer
	eng := cmdCtx.Engine

	graph, err := loadGraph(cfg)
	if err != nil {
		return err
	}

	fullRefresh, _ := cmd.Flags().GetBool("full-refresh")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	buildCtx := cmd.Context()
	if cfg.BuildTimeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(buildCtx, cfg.BuildTimeout)
		defer cancel()
	}

	execGraph, err := eng.Build(buildCtx, graph, selectionFilter(cmd, args), engine.BuildOptions{
		FullRefresh: fullRefresh,
	})
	if err != nil {
		return err
	}

	if dryRun {
		return renderDryRun(r, execGraph, cfg.Environment)
	}

	concurrency := cfg.Concurrency
	if cmd.Flags().Changed("concurrency") {
		concurrency, _ = cmd.Flags().GetInt("concurrency")
	}
	retryLimit := cfg.RetryLimit
	if cmd.Flags().Changed("retry-limit") {
		retryLimit, _ = cmd.Flags().GetInt("retry-limit")
	}

	runner, err := eng.Run(cmd.Context(), execGraph, engine.RunOptions{
		Concurrency: concurrency,
		RetryLimit:  retryLimit,
		JobPrefix:   jobPrefix,
		Environment: cfg.Environment,
	})
	if err != nil {
		return err
	}

	// Cancel cooperatively on interrupt; a second interrupt kills the
	// process the usual way.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-sigCh:
			signal.Stop(sigCh)
			r.Warning("interrupt received; draining in-flight actions")
			runner.Cancel()
		case <-stopped:
		}
	}()

	res := streamRun(r, runner, execGraph.Len())

	if err := renderRunSummary(r, runner.RunID(), cfg.Environment, res); err != nil {
		return err
	}

	switch res.Status {
	case core.RunStatusFailed:
		return fmt.Errorf("run failed: %d action(s) failed", res.CountByStatus()[core.ActionStatusFailed])
	case core.RunStatusCancelled:
		return fmt.Errorf("run cancelled")
	}
	return nil
}

// streamRun renders status transitions as the runner publishes
// snapshots, then returns the final result. Snapshots are coalescing:
// a slow terminal can miss intermediate states, so the final result is
// diffed too and always rendered completely.
func streamRun(r *output.Renderer, runner *engine.Runner, total int) *core.RunResult {
	sub := runner.Subscribe()
	defer runner.Unsubscribe(sub)

	done := make(chan struct{})
	var res *core.RunResult
	go func() {
		res = runner.Result()
		close(done)
	}()

	printed := make(map[string]core.ActionStatus, total)
	for {
		select {
		case snap := <-sub:
			renderTransitions(r, runner.RunID(), snap.Actions, printed)
		case <-done:
			final := make([]core.ActionState, 0, len(res.Actions))
			for _, a := range res.Actions {
				final = append(final, core.ActionState{
					Target:       a.Target,
					Kind:         a.Kind,
					Status:       a.Status,
					Attempts:     a.Attempts,
					RowsAffected: a.RowsAffected,
					Error:        a.Error,
				})
			}
			renderTransitions(r, runner.RunID(), final, printed)
			return res
		}
	}
}

// renderTransitions prints one line per action whose status changed
// since the last snapshot.
func renderTransitions(r *output.Renderer, runID string, states []core.ActionState, printed map[string]core.ActionStatus) {
	for _, s := range states {
		if s.Status == core.ActionStatusPending || printed[s.Target.Key()] == s.Status {
			continue
		}
		printed[s.Target.Key()] = s.Status

		if r.EffectiveMode() == output.ModeJSON {
			_ = r.JSONLine(output.RunEvent{
				Event:        "action_update",
				RunID:        runID,
				Target:       s.Target.String(),
				Kind:         string(s.Kind),
				Status:       string(s.Status),
				Attempts:     s.Attempts,
				RowsAffected: s.RowsAffected,
				Error:        s.Error,
				Timestamp:    time.Now().UTC().Format(time.RFC3339),
			})
			continue
		}

		r.StatusLine(s.Target.String(), string(s.Status), actionDetail(s))
	}
}

// actionDetail summarizes one action state for a status line.
func actionDetail(s core.ActionState) string {
	switch s.Status {
	case core.ActionStatusFailed:
		return s.Error
	case core.ActionStatusSkipped, core.ActionStatusCancelled:
		return s.Error
	case core.ActionStatusSuccessful:
		detail := ""
		if s.RowsAffected > 0 {
			detail = fmt.Sprintf("%d rows", s.RowsAffected)
		}
		if s.Attempts > 1 {
			if detail != "" {
				detail += ", "
			}
			detail += fmt.Sprintf("attempt %d", s.Attempts)
		}
		return detail
	}
	return ""
}

// renderRunSummary prints the final aggregate of a completed run.
func renderRunSummary(r *output.Renderer, runID, environment string, res *core.RunResult) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(buildRunOutput(runID, environment, res))
	}

	counts := res.CountByStatus()
	r.Println("")
	switch res.Status {
	case core.RunStatusSuccessful:
		r.Success(fmt.Sprintf("Run complete: %d action(s) in %s",
			counts[core.ActionStatusSuccessful], res.Duration().Round(time.Millisecond)))
	case core.RunStatusFailed:
		r.Error(fmt.Sprintf("Run failed: %d succeeded, %d failed, %d skipped in %s",
			counts[core.ActionStatusSuccessful], counts[core.ActionStatusFailed],
			counts[core.ActionStatusSkipped], res.Duration().Round(time.Millisecond)))
	case core.RunStatusCancelled:
		r.Warning(fmt.Sprintf("Run cancelled: %d succeeded, %d cancelled in %s",
			counts[core.ActionStatusSuccessful], counts[core.ActionStatusCancelled],
			res.Duration().Round(time.Millisecond)))
	}
	if runID != "" {
		r.Muted("run id: " + runID)
	}
	return nil
}

// buildRunOutput converts a run result into its JSON document.
func buildRunOutput(runID, environment string, res *core.RunResult) output.RunOutput {
	counts := make(map[string]int)
	for status, n := range res.CountByStatus() {
		counts[string(status)] = n
	}

	actions := make([]output.RunActionOutput, 0, len(res.Actions))
	for _, a := range res.Actions {
		actions = append(actions, output.RunActionOutput{
			Target:       a.Target.String(),
			Kind:         string(a.Kind),
			Status:       string(a.Status),
			Attempts:     a.Attempts,
			RowsAffected: a.RowsAffected,
			DurationMS:   a.Duration().Milliseconds(),
			Error:        a.Error,
		})
	}

	return output.RunOutput{
		RunID:       runID,
		Status:      string(res.Status),
		Environment: environment,
		StartedAt:   res.StartedAt,
		FinishedAt:  res.FinishedAt,
		DurationMS:  res.Duration().Milliseconds(),
		Counts:      counts,
		Actions:     actions,
	}
}

// renderDryRun reports what a run would dispatch without executing
// anything.
func renderDryRun(r *output.Renderer, g *core.ExecutionGraph, environment string) error {
	if r.EffectiveMode() == output.ModeJSON {
		out := buildRunOutput("", environment, &core.RunResult{
			Status:  core.RunStatusSuccessful,
			Actions: g.Actions,
		})
		out.DryRun = true
		out.Counts = map[string]int{string(core.ActionStatusPending): g.Len()}
		return r.JSON(out)
	}

	r.Header(1, fmt.Sprintf("Dry run (%d action(s), nothing dispatched)", g.Len()))
	byKind := make(map[core.ActionKind]int)
	for _, a := range g.Actions {
		r.StatusLine(a.Target.String(), "pending", string(a.Kind))
		byKind[a.Kind]++
	}
	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, fmt.Sprintf("%d %s", byKind[k], k))
	}
	sort.Strings(kinds)
	r.Println("")
	r.Muted("would run: " + strings.Join(kinds, ", "))
	return nil
}
