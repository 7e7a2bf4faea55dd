package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/millbrook-data/strata/internal/cli/output"
	"github.com/millbrook-data/strata/internal/selector"
	"github.com/millbrook-data/strata/pkg/core"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [patterns...]",
		Short: "List the actions declared in the graph",
		Long: `List the actions of the compiled graph with their kind, tags and
dependencies. The warehouse is never touched.

The selection flags narrow the listing the same way they narrow a run,
so "strata list --tag daily --include-dependents" shows exactly what
"strata run --tag daily --include-dependents" would execute.`,
		Example: `  # List every action
  strata list

  # List assertions only
  strata list --kind assertion

  # List what a tag selection would run
  strata list --tag daily --include-dependents

  # List as JSON
  strata list --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, args)
		},
	}

	addSelectionFlags(cmd)
	cmd.Flags().String("kind", "", "Only show actions of this kind")

	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
	cmdCtx := NewCommandContextWithoutEngine(cmd)
	cfg := cmdCtx.Cfg
	r := cmdCtx.Renderer

	graph, err := loadGraph(cfg)
	if err != nil {
		return err
	}

	targets, err := selector.Select(graph, selectionFilter(cmd, args))
	if err != nil {
		return err
	}

	kindFilter, _ := cmd.Flags().GetString("kind")
	actions := make([]*core.Action, 0, len(targets))
	for _, t := range targets {
		a, ok := graph.ActionByTarget(t)
		if !ok {
			continue
		}
		if kindFilter != "" && string(a.Kind) != strings.ToLower(kindFilter) {
			continue
		}
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool {
		return actions[i].Target.Key() < actions[j].Target.Key()
	})

	if r.EffectiveMode() == output.ModeJSON {
		return listJSON(r, actions)
	}
	return listText(r, actions)
}

// listText prints the actions as a table plus a per-kind summary.
func listText(r *output.Renderer, actions []*core.Action) error {
	styles := r.Styles()

	r.Header(1, fmt.Sprintf("Actions (%d total)", len(actions)))
	r.Println("")

	if len(actions) == 0 {
		r.Muted("nothing matches the selection")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.Writer())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"TARGET", "KIND", "TAGS", "DEPS", "FLAGS"})

	byKind := make(map[core.ActionKind]int)
	for _, a := range actions {
		byKind[a.Kind]++
		t.AppendRow(table.Row{
			a.Target.String(),
			string(a.Kind),
			strings.Join(a.Tags, ", "),
			len(a.DependencyTargets()),
			actionFlags(a),
		})
	}
	t.Render()

	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, fmt.Sprintf("%d %s", byKind[k], k))
	}
	sort.Strings(kinds)
	r.Println("")
	r.Println(styles.Muted.Render(strings.Join(kinds, ", ")))

	return nil
}

// actionFlags renders the optional markers of an action.
func actionFlags(a *core.Action) string {
	flags := make([]string, 0, 2)
	if a.Disabled {
		flags = append(flags, "disabled")
	}
	if a.Hermeticity == core.HermeticityNonHermetic {
		flags = append(flags, "non-hermetic")
	}
	return strings.Join(flags, ", ")
}

// listJSON prints the actions as a JSON document.
func listJSON(r *output.Renderer, actions []*core.Action) error {
	out := output.ListOutput{
		Actions: make([]output.ListActionOutput, 0, len(actions)),
		Summary: output.ListSummary{
			Total:  len(actions),
			ByKind: make(map[string]int),
		},
	}

	for _, a := range actions {
		deps := a.DependencyTargets()
		depNames := make([]string, 0, len(deps))
		for _, d := range deps {
			depNames = append(depNames, d.String())
		}
		out.Actions = append(out.Actions, output.ListActionOutput{
			Target:    a.Target.String(),
			Kind:      string(a.Kind),
			Tags:      a.Tags,
			Disabled:  a.Disabled,
			Hermetic:  string(a.Hermeticity),
			DependsOn: depNames,
		})
		out.Summary.ByKind[string(a.Kind)]++
		if a.Disabled {
			out.Summary.Disabled++
		}
	}

	return r.JSON(out)
}
