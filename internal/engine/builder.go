package engine

// builder.go - Execution graph construction from a compiled graph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/millbrook-data/strata/internal/selector"
	"github.com/millbrook-data/strata/pkg/core"
)

// BuildOptions control execution-graph resolution.
type BuildOptions struct {
	// FullRefresh rebuilds incremental tables from scratch instead of
	// merging into the existing target.
	FullRefresh bool
}

// Build resolves the selected subset of a compiled graph into an
// execution graph with warehouse-ready statement plans. Every action
// starts PENDING; nothing is dispatched. A graph carrying compilation
// errors or integrity violations is refused before any warehouse work.
func (e *Engine) Build(ctx context.Context, g *core.Graph, filter selector.Filter, opts BuildOptions) (*core.ExecutionGraph, error) {
	if err := g.CompilationErr(); err != nil {
		return nil, fmt.Errorf("graph has compilation errors: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}

	targets, err := selector.Select(g, filter)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 && !filter.Empty() {
		return nil, fmt.Errorf("no actions match the selection")
	}

	e.logger.Debug("building execution graph",
		"selected", len(targets), "full_refresh", opts.FullRefresh)

	selected := make(map[string]bool, len(targets))
	for _, t := range targets {
		selected[t.Key()] = true
	}

	exists, err := e.probeTargets(ctx, g, targets, opts)
	if err != nil {
		return nil, err
	}

	actions := make([]*core.ExecutionAction, 0, len(targets))
	for _, t := range targets {
		a, ok := g.ActionByTarget(t)
		if !ok {
			return nil, fmt.Errorf("selected target %s not in graph", t.String())
		}

		ea, err := resolveAction(a, exists, opts)
		if err != nil {
			return nil, err
		}
		ea.Dependencies = restrictTargets(a.DependencyTargets(), selected, a.Target)
		ea.Dependents = restrictTargets(g.DependentsOf(t), selected, a.Target)
		actions = append(actions, ea)
	}

	return core.NewExecutionGraph(actions), nil
}

// probeTargets checks warehouse existence for every selected action
// whose plan depends on it: incremental tables outside full refresh and
// data preparations loading into (rather than replacing) their target.
// Probes run concurrently, bounded by the adapter's concurrency.
func (e *Engine) probeTargets(ctx context.Context, g *core.Graph, targets []core.Target, opts BuildOptions) (map[string]bool, error) {
	var probes []core.Target
	for _, t := range targets {
		a, ok := g.ActionByTarget(t)
		if ok && needsExistenceProbe(a, opts) {
			probes = append(probes, t)
		}
	}

	exists := make(map[string]bool, len(probes))
	if len(probes) == 0 {
		return exists, nil
	}

	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}

	var mu sync.Mutex
	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(e.db.DefaultConcurrency())
	for _, t := range probes {
		grp.Go(func() error {
			ok, err := e.db.TableExists(grpCtx, t)
			if err != nil {
				return fmt.Errorf("probe %s: %w", t.String(), err)
			}
			mu.Lock()
			exists[t.Key()] = ok
			mu.Unlock()
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, fmt.Errorf("failed to probe warehouse state: %w", err)
	}
	return exists, nil
}

func needsExistenceProbe(a *core.Action, opts BuildOptions) bool {
	switch a.Kind {
	case core.ActionKindTable:
		return a.Table.Kind == core.TableKindIncremental && !opts.FullRefresh
	case core.ActionKindDataPreparation:
		return resolveLoadMode(a.DataPreparation) != core.LoadModeReplace
	}
	return false
}

// resolveAction converts one compiled action into an execution action
// with its statement plan and idempotency classification. Full rebuilds
// and replace loads are retryable; merges, appends, operations,
// assertions and notebooks are not.
func resolveAction(a *core.Action, exists map[string]bool, opts BuildOptions) (*core.ExecutionAction, error) {
	ea := &core.ExecutionAction{
		Target:      a.Target,
		Kind:        a.Kind,
		Hermeticity: a.Hermeticity,
		Tags:        a.Tags,
		Disabled:    a.Disabled,
		Status:      core.ActionStatusPending,
	}

	switch a.Kind {
	case core.ActionKindTable:
		spec := a.Table
		switch spec.Kind {
		case core.TableKindView:
			ea.Steps = viewSteps(a.Target, spec.Query, spec.PreOps, spec.PostOps)
			ea.Retryable = true
		case core.TableKindIncremental:
			if opts.FullRefresh || !exists[a.Target.Key()] {
				ea.Steps = tableRebuildSteps(a.Target, spec.Query, spec.PreOps, spec.PostOps)
				ea.Retryable = true
			} else {
				ea.Steps = mergeSteps(a.Target, spec)
			}
		default:
			ea.Steps = tableRebuildSteps(a.Target, spec.Query, spec.PreOps, spec.PostOps)
			ea.Retryable = true
		}

	case core.ActionKindOperation:
		ea.Steps = sqlSteps(a.Operation.Queries)

	case core.ActionKindAssertion:
		ea.Steps = []core.PlanStep{{Assertion: &core.AssertionStep{Query: a.Assertion.Query}}}

	case core.ActionKindDeclaration:
		// Identity only; a declaration never produces statements.

	case core.ActionKindNotebook:
		ea.Steps = []core.PlanStep{{Notebook: &core.NotebookStep{Contents: a.Notebook.Contents}}}

	case core.ActionKindDataPreparation:
		steps, retryable, err := resolveLoad(a, exists)
		if err != nil {
			return nil, err
		}
		ea.Steps = steps
		ea.Retryable = retryable

	default:
		return nil, fmt.Errorf("action %s: unknown kind %q", a.Identity(), a.Kind)
	}

	return ea, nil
}

// resolveLoadMode picks the effective load mode: automatic becomes
// maximum when an ordering column is configured, append otherwise.
func resolveLoadMode(spec *core.DataPreparationSpec) core.LoadMode {
	mode := spec.Mode
	if mode == "" || mode == core.LoadModeAutomatic {
		if spec.Column != "" {
			return core.LoadModeMaximum
		}
		return core.LoadModeAppend
	}
	return mode
}

// resolveLoad builds the plan for a data preparation. Replace mode and
// loads into a target that does not exist yet resolve to a full
// rebuild; otherwise a structured load step carries the mode, column
// and error-table routing to execution time.
func resolveLoad(a *core.Action, exists map[string]bool) ([]core.PlanStep, bool, error) {
	spec := a.DataPreparation
	mode := resolveLoadMode(spec)

	switch mode {
	case core.LoadModeMaximum, core.LoadModeUnique:
		if spec.Column == "" {
			return nil, false, fmt.Errorf("data preparation %s: load mode %q requires a column", a.Identity(), mode)
		}
	}

	if mode == core.LoadModeReplace || !exists[a.Target.Key()] {
		return tableRebuildSteps(a.Target, spec.Query, nil, nil), true, nil
	}

	return []core.PlanStep{{Load: &core.LoadStep{
		Target:     a.Target,
		Query:      spec.Query,
		Mode:       mode,
		Column:     spec.Column,
		ErrorTable: spec.ErrorTable,
	}}}, false, nil
}

// restrictTargets keeps only edges inside the selected set, dropping
// self references and duplicates, sorted for deterministic scheduling.
// Dependencies outside the set are treated as already satisfied.
func restrictTargets(targets []core.Target, selected map[string]bool, self core.Target) []core.Target {
	seen := make(map[string]bool, len(targets))
	var out []core.Target
	for _, t := range targets {
		key := t.Key()
		if !selected[key] || t == self || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}
