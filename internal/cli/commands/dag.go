package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/millbrook-data/strata/internal/cli/output"
	"github.com/millbrook-data/strata/internal/dag"
	"github.com/millbrook-data/strata/pkg/core"
)

// NewDAGCommand creates the dag command.
func NewDAGCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dag",
		Short: "Show the dependency graph",
		Long: `Display the dependency graph of all actions.

Actions are grouped by execution level: everything in one level can run
concurrently once all earlier levels have finished. Dependencies on
targets outside the graph are treated as already satisfied.`,
		Example: `  # Show the DAG
  strata dag

  # Output as JSON
  strata dag --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDAG(cmd)
		},
	}

	return cmd
}

func runDAG(cmd *cobra.Command) error {
	cmdCtx := NewCommandContextWithoutEngine(cmd)
	r := cmdCtx.Renderer

	graph, err := loadGraph(cmdCtx.Cfg)
	if err != nil {
		return err
	}
	if err := graph.Normalize(); err != nil {
		return fmt.Errorf("invalid graph: %w", err)
	}

	d := dependencyDAG(graph)
	levels, err := d.ExecutionLevels()
	if err != nil {
		return fmt.Errorf("failed to compute execution levels: %w", err)
	}

	if r.EffectiveMode() == output.ModeJSON {
		return dagJSON(r, d, levels)
	}
	return dagText(r, d, levels)
}

// dependencyDAG builds the dependency DAG of a compiled graph. Edges
// run dependency to dependent; unknown dependencies are dropped.
func dependencyDAG(g *core.Graph) *dag.Graph {
	d := dag.NewGraph()
	for _, a := range g.Actions {
		d.AddNode(a.Target.Key(), a)
	}
	for _, a := range g.Actions {
		for _, dep := range a.DependencyTargets() {
			if d.HasNode(dep.Key()) {
				_ = d.AddEdge(dep.Key(), a.Target.Key())
			}
		}
	}
	return d
}

// nodeIdentity renders a DAG node id through its action's identity.
func nodeIdentity(d *dag.Graph, id string) (string, core.ActionKind) {
	if n, ok := d.GetNode(id); ok {
		if a, ok := n.Data.(*core.Action); ok {
			return a.Target.String(), a.Kind
		}
	}
	return id, ""
}

// dagText outputs the DAG in styled text format.
func dagText(r *output.Renderer, d *dag.Graph, levels [][]string) error {
	styles := r.Styles()

	r.Header(1, "Dependency Graph")

	for i, level := range levels {
		r.Println(styles.Header2.Render(fmt.Sprintf("Level %d:", i)))
		for _, id := range level {
			identity, kind := nodeIdentity(d, id)
			deps := identities(d, d.Parents(id))
			dependents := identities(d, d.Children(id))

			r.Printf("  %s %s\n", styles.TargetPath.Render(identity), styles.Muted.Render(string(kind)))
			if len(deps) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("depends on:"), strings.Join(deps, ", "))
			}
			if len(dependents) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("used by:"), strings.Join(dependents, ", "))
			}
		}
		r.Println("")
	}

	r.Println(styles.Muted.Render(fmt.Sprintf("Total: %d actions, %d dependencies", d.NodeCount(), d.EdgeCount())))

	return nil
}

// dagJSON outputs the DAG in JSON format.
func dagJSON(r *output.Renderer, d *dag.Graph, levels [][]string) error {
	out := output.DAGOutput{
		Levels:       make([]output.DAGLevel, 0, len(levels)),
		TotalActions: d.NodeCount(),
		TotalEdges:   d.EdgeCount(),
	}

	for i, level := range levels {
		dagLevel := output.DAGLevel{
			Level:   i,
			Actions: make([]output.DAGNode, 0, len(level)),
		}

		for _, id := range level {
			identity, kind := nodeIdentity(d, id)
			dagLevel.Actions = append(dagLevel.Actions, output.DAGNode{
				Target:    identity,
				Kind:      string(kind),
				DependsOn: identities(d, d.Parents(id)),
				UsedBy:    identities(d, d.Children(id)),
			})
		}

		out.Levels = append(out.Levels, dagLevel)
	}

	return r.JSON(out)
}

// identities maps DAG node ids to readable identities.
func identities(d *dag.Graph, ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		identity, _ := nodeIdentity(d, id)
		out = append(out, identity)
	}
	return out
}
