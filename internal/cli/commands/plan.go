package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/millbrook-data/strata/internal/cli/output"
	"github.com/millbrook-data/strata/internal/engine"
	"github.com/millbrook-data/strata/pkg/core"
)

// NewPlanCommand creates the plan command.
func NewPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan [patterns...]",
		Short: "Resolve statement plans without executing them",
		Long: `Resolve the selected actions into their warehouse-ready statement
plans and print them. The warehouse is probed for existing state (so
incremental actions show the plan they would really get) but nothing is
ever dispatched.`,
		Example: `  # Plan the whole graph
  strata plan

  # Plan one action with its statements
  strata plan analytics.orders --sql

  # See what a full refresh would do
  strata plan --full-refresh --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, args)
		},
	}

	addSelectionFlags(cmd)
	cmd.Flags().Bool("full-refresh", false, "Plan a from-scratch rebuild of incremental tables")
	cmd.Flags().Bool("sql", false, "Print the resolved statements for each action")

	return cmd
}

func runPlan(cmd *cobra.Command, args []string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := cmdCtx.Cfg
	r := cmdCtx.Renderer

	graph, err := loadGraph(cfg)
	if err != nil {
		return err
	}

	fullRefresh, _ := cmd.Flags().GetBool("full-refresh")

	buildCtx := cmd.Context()
	if cfg.BuildTimeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(buildCtx, cfg.BuildTimeout)
		defer cancel()
	}

	execGraph, err := cmdCtx.Engine.Build(buildCtx, graph, selectionFilter(cmd, args), engine.BuildOptions{
		FullRefresh: fullRefresh,
	})
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		return planJSON(r, execGraph, cfg.Environment, fullRefresh)
	}
	showSQL, _ := cmd.Flags().GetBool("sql")
	return planText(r, execGraph, showSQL)
}

// planText prints the resolved plan in styled text format.
func planText(r *output.Renderer, g *core.ExecutionGraph, showSQL bool) error {
	styles := r.Styles()

	r.Header(1, fmt.Sprintf("Plan (%d action(s))", g.Len()))
	r.Println("")

	for _, a := range g.Actions {
		marker := styles.Muted.Render("one attempt")
		if a.Retryable {
			marker = styles.Muted.Render("retryable")
		}
		if a.Disabled {
			marker = styles.Warning.Render("disabled")
		}
		r.Printf("%s  %s  %s\n", styles.TargetPath.Render(a.Target.String()),
			styles.Bold.Render(string(a.Kind)), marker)

		if len(a.Dependencies) > 0 {
			deps := make([]string, 0, len(a.Dependencies))
			for _, d := range a.Dependencies {
				deps = append(deps, d.String())
			}
			r.Printf("  %s %s\n", styles.Muted.Render("after:"), strings.Join(deps, ", "))
		}

		for i, step := range a.Steps {
			r.Printf("  %s %s\n", styles.Muted.Render(fmt.Sprintf("step %d:", i+1)), stepKind(step))
			if showSQL {
				if sql := stepSQL(step); sql != "" {
					for _, line := range strings.Split(strings.TrimRight(sql, "\n"), "\n") {
						r.Println("    " + styles.Muted.Render(line))
					}
				}
			}
		}
		r.Println("")
	}

	return nil
}

// planJSON prints the resolved plan as a JSON document.
func planJSON(r *output.Renderer, g *core.ExecutionGraph, environment string, fullRefresh bool) error {
	out := output.PlanOutput{
		Environment: environment,
		FullRefresh: fullRefresh,
		Total:       g.Len(),
		Actions:     make([]output.PlanActionOutput, 0, g.Len()),
	}

	for _, a := range g.Actions {
		deps := make([]string, 0, len(a.Dependencies))
		for _, d := range a.Dependencies {
			deps = append(deps, d.String())
		}
		steps := make([]output.PlanStepOutput, 0, len(a.Steps))
		for _, s := range a.Steps {
			steps = append(steps, output.PlanStepOutput{Kind: stepKind(s), SQL: stepSQL(s)})
		}
		out.Actions = append(out.Actions, output.PlanActionOutput{
			Target:    a.Target.String(),
			Kind:      string(a.Kind),
			Retryable: a.Retryable,
			Disabled:  a.Disabled,
			DependsOn: deps,
			Steps:     steps,
		})
	}

	return r.JSON(out)
}

// stepKind names a plan step's variant.
func stepKind(s core.PlanStep) string {
	switch {
	case s.Merge != nil:
		return "merge"
	case s.Load != nil:
		return "load"
	case s.Assertion != nil:
		return "assertion"
	case s.Notebook != nil:
		return "notebook"
	default:
		return "sql"
	}
}

// stepSQL returns the statement or query text driving a step, if any.
func stepSQL(s core.PlanStep) string {
	switch {
	case s.Merge != nil:
		return s.Merge.Query
	case s.Load != nil:
		return s.Load.Query
	case s.Assertion != nil:
		return s.Assertion.Query
	case s.Notebook != nil:
		return ""
	default:
		return s.SQL
	}
}
