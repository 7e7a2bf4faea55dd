package engine

// runner.go - Dependency-ordered concurrent execution of a resolved graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/millbrook-data/strata/internal/state"
	"github.com/millbrook-data/strata/pkg/core"
)

// RunOptions control one runner invocation.
type RunOptions struct {
	// Concurrency bounds the number of in-flight warehouse operations.
	// Zero uses the adapter's default.
	Concurrency int
	// RetryLimit is the number of times a retryable action is
	// re-dispatched after a failure. Non-retryable actions get exactly
	// one attempt regardless of the limit.
	RetryLimit int
	// JobPrefix labels every dispatched statement.
	JobPrefix string
	// Environment is recorded with the run in the history store.
	// Empty uses the engine's environment.
	Environment string
}

// outcome is a dispatch goroutine's report back to the coordinator.
type outcome struct {
	key        string
	status     core.ActionStatus
	attempts   int
	rows       int64
	err        string
	finishedAt time.Time
}

// Runner drives one execution graph to completion. All graph state is
// owned by a single coordinator goroutine; dispatch goroutines only
// execute statement plans and report outcomes, so no status transition
// ever races another.
type Runner struct {
	graph  *core.ExecutionGraph
	exec   *executor
	logger *slog.Logger
	store  state.Store // nil disables history recording
	opts   RunOptions

	notifier *Notifier
	sem      *semaphore.Weighted
	outcomes chan outcome
	cancel   context.CancelFunc

	runID string

	// Coordinator state. Only the loop goroutine touches these.
	actions      map[string]*core.ExecutionAction
	remaining    map[string]int
	ready        []string
	actionRunIDs map[string]string
	inFlight     int
	terminal     int
	stopping     bool
	startedAt    time.Time

	done   chan struct{}
	result *core.RunResult
}

// Run dispatches an execution graph against the warehouse. It returns
// immediately with a Runner handle; Result blocks until every action
// has reached a terminal status. Per-action failures are captured in
// action state and never surface as an error here.
func (e *Engine) Run(ctx context.Context, graph *core.ExecutionGraph, opts RunOptions) (*Runner, error) {
	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = e.db.DefaultConcurrency()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if opts.Environment == "" {
		opts.Environment = e.environment
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &Runner{
		graph: graph,
		exec: &executor{
			db:        e.db,
			notebooks: e.notebooks,
			logger:    e.logger,
			jobPrefix: opts.JobPrefix,
		},
		logger:       e.logger,
		store:        e.store,
		opts:         opts,
		notifier:     NewNotifier(),
		sem:          semaphore.NewWeighted(int64(concurrency)),
		outcomes:     make(chan outcome),
		cancel:       cancel,
		actionRunIDs: make(map[string]string),
		done:         make(chan struct{}),
	}

	if r.store != nil {
		run, err := r.store.CreateRun(opts.Environment)
		if err != nil {
			e.logger.Warn("failed to record run start", "error", err)
		} else {
			r.runID = run.ID
		}
	}

	e.logger.Info("starting run",
		"actions", graph.Len(),
		"concurrency", concurrency,
		"environment", opts.Environment,
		"run_id", r.runID)

	go r.loop(runCtx)
	return r, nil
}

// Cancel requests cooperative cancellation: no further pending action
// is dispatched, pending actions become CANCELLED, and in-flight
// actions are interrupted through their context and drained to a
// terminal status.
func (r *Runner) Cancel() {
	r.cancel()
}

// Result blocks until every action is terminal and returns the final
// aggregate.
func (r *Runner) Result() *core.RunResult {
	<-r.done
	return r.result
}

// RunID returns the history identifier of this run, or "" when history
// recording is disabled.
func (r *Runner) RunID() string {
	return r.runID
}

// Subscribe returns a channel receiving a full-graph snapshot on every
// status transition. The caller must Unsubscribe when done.
func (r *Runner) Subscribe() chan core.RunSnapshot {
	return r.notifier.Subscribe()
}

// Unsubscribe removes a snapshot listener.
func (r *Runner) Unsubscribe(ch chan core.RunSnapshot) {
	r.notifier.Unsubscribe(ch)
}

// loop is the coordinator. It serializes every status transition,
// dispatches ready actions in deterministic order and finalizes the
// run once all actions are terminal.
func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	r.startedAt = time.Now().UTC()
	r.actions = make(map[string]*core.ExecutionAction, r.graph.Len())
	r.remaining = make(map[string]int, r.graph.Len())
	for _, a := range r.graph.Actions {
		key := a.Target.Key()
		r.actions[key] = a
		r.remaining[key] = len(a.Dependencies)
		if len(a.Dependencies) == 0 {
			r.enqueue(key)
		}
	}

	ctxDone := ctx.Done()
	r.dispatchReady(ctx)

	for r.terminal < r.graph.Len() {
		select {
		case out := <-r.outcomes:
			r.applyOutcome(out)
			r.dispatchReady(ctx)
		case <-ctxDone:
			ctxDone = nil
			r.beginCancellation()
		}
	}

	r.finalize(time.Now().UTC())
}

// dispatchReady starts ready actions in sorted target order until the
// queue drains or the concurrency bound is reached. Disabled actions
// are skipped without dispatch and unlock their dependents.
func (r *Runner) dispatchReady(ctx context.Context) {
	if r.stopping || ctx.Err() != nil {
		return
	}
	for len(r.ready) > 0 {
		key := r.ready[0]
		a := r.actions[key]

		if a.Disabled {
			r.ready = r.ready[1:]
			r.markSkipped(a, "skipped: action is disabled")
			r.unlockDependents(a)
			continue
		}

		if !r.sem.TryAcquire(1) {
			return
		}
		r.ready = r.ready[1:]
		r.start(ctx, a)
	}
}

func (r *Runner) start(ctx context.Context, a *core.ExecutionAction) {
	a.Status = core.ActionStatusRunning
	a.StartedAt = time.Now().UTC()
	r.inFlight++

	r.logger.Debug("action started",
		"target", a.Target.String(), "kind", a.Kind, "retryable", a.Retryable)
	r.recordActionStart(a)
	r.broadcast()

	go r.dispatch(ctx, a)
}

// dispatch executes one action's plan, retrying retryable plans up to
// the configured limit. Retries stay invisible to observers; only the
// final attempt's outcome is reported.
func (r *Runner) dispatch(ctx context.Context, a *core.ExecutionAction) {
	out := outcome{key: a.Target.Key()}

	var rows int64
	var err error
	for attempt := 1; ; attempt++ {
		out.attempts = attempt
		rows, err = r.exec.executeAction(ctx, a)
		if err == nil || !a.Retryable || attempt > r.opts.RetryLimit || ctx.Err() != nil {
			break
		}
		r.logger.Warn("action failed, retrying",
			"target", a.Target.String(),
			"attempt", attempt,
			"retry_limit", r.opts.RetryLimit,
			"error", err)
	}

	out.finishedAt = time.Now().UTC()
	switch {
	case err == nil:
		out.status = core.ActionStatusSuccessful
		out.rows = rows
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		out.status = core.ActionStatusCancelled
	default:
		out.status = core.ActionStatusFailed
		out.err = err.Error()
	}

	r.sem.Release(1)
	r.outcomes <- out
}

// applyOutcome moves a running action to its terminal status and
// unblocks or skips its dependents.
func (r *Runner) applyOutcome(out outcome) {
	r.inFlight--
	a := r.actions[out.key]

	a.Status = out.status
	a.Attempts = out.attempts
	a.RowsAffected = out.rows
	a.Error = out.err
	a.FinishedAt = out.finishedAt
	r.terminal++

	switch out.status {
	case core.ActionStatusSuccessful:
		r.logger.Debug("action succeeded",
			"target", a.Target.String(),
			"rows", a.RowsAffected,
			"attempts", a.Attempts,
			"duration", a.Duration())
		r.unlockDependents(a)
	case core.ActionStatusFailed:
		r.logger.Debug("action failed",
			"target", a.Target.String(),
			"attempts", a.Attempts,
			"error", a.Error)
		r.skipDependents(a)
	case core.ActionStatusCancelled:
		r.logger.Debug("action cancelled", "target", a.Target.String())
	}

	r.recordActionTerminal(a)
	r.broadcast()
}

// unlockDependents decrements dependents' unmet-dependency counts and
// enqueues those that become ready.
func (r *Runner) unlockDependents(a *core.ExecutionAction) {
	for _, t := range a.Dependents {
		key := t.Key()
		r.remaining[key]--
		if r.remaining[key] > 0 {
			continue
		}
		if d, ok := r.actions[key]; ok && d.Status == core.ActionStatusPending {
			r.enqueue(key)
		}
	}
}

// skipDependents marks every still-pending transitive dependent of a
// failed action SKIPPED. The skip is bookkeeping, not an error; sibling
// subtrees keep running.
func (r *Runner) skipDependents(failed *core.ExecutionAction) {
	reason := fmt.Sprintf("skipped: upstream %s failed", failed.Target.String())
	stack := slices.Clone(failed.Dependents)
	for len(stack) > 0 {
		t := stack[0]
		stack = stack[1:]
		a, ok := r.actions[t.Key()]
		if !ok || a.Status != core.ActionStatusPending {
			continue
		}
		r.markSkipped(a, reason)
		stack = append(stack, a.Dependents...)
	}
}

func (r *Runner) markSkipped(a *core.ExecutionAction, reason string) {
	r.removeReady(a.Target.Key())
	a.Status = core.ActionStatusSkipped
	a.Error = reason
	r.terminal++

	r.logger.Debug("action skipped", "target", a.Target.String(), "reason", reason)
	r.recordActionTerminal(a)
	r.broadcast()
}

// beginCancellation stops dispatching and moves every still-pending
// action to CANCELLED. In-flight actions keep running until the
// adapter reports their natural terminal status.
func (r *Runner) beginCancellation() {
	if r.stopping {
		return
	}
	r.stopping = true
	r.ready = nil

	pending := 0
	for _, a := range r.graph.Actions {
		if a.Status == core.ActionStatusPending {
			pending++
		}
	}
	r.logger.Info("cancellation requested", "pending", pending, "in_flight", r.inFlight)

	for _, a := range r.graph.Actions {
		if a.Status != core.ActionStatusPending {
			continue
		}
		a.Status = core.ActionStatusCancelled
		r.terminal++
		r.recordActionTerminal(a)
		r.broadcast()
	}
}

// finalize aggregates terminal action states into the run result.
// Failure outranks cancellation; skips alone do not fail a run.
func (r *Runner) finalize(finishedAt time.Time) {
	counts := make(map[core.ActionStatus]int)
	for _, a := range r.graph.Actions {
		counts[a.Status]++
	}

	status := core.RunStatusSuccessful
	switch {
	case counts[core.ActionStatusFailed] > 0:
		status = core.RunStatusFailed
	case counts[core.ActionStatusCancelled] > 0 || r.stopping:
		status = core.RunStatusCancelled
	}

	r.result = &core.RunResult{
		Status:     status,
		Actions:    r.graph.Actions,
		StartedAt:  r.startedAt,
		FinishedAt: finishedAt,
	}

	var errMsg string
	if n := counts[core.ActionStatusFailed]; n > 0 {
		errMsg = fmt.Sprintf("%d action(s) failed", n)
	}
	r.completeRun(status, errMsg)

	switch status {
	case core.RunStatusFailed:
		r.logger.Info("run failed",
			"run_id", r.runID,
			"failed", counts[core.ActionStatusFailed],
			"skipped", counts[core.ActionStatusSkipped],
			"successful", counts[core.ActionStatusSuccessful])
	case core.RunStatusCancelled:
		r.logger.Info("run cancelled",
			"run_id", r.runID,
			"cancelled", counts[core.ActionStatusCancelled],
			"successful", counts[core.ActionStatusSuccessful])
	default:
		r.logger.Info("run completed",
			"run_id", r.runID,
			"successful", counts[core.ActionStatusSuccessful],
			"skipped", counts[core.ActionStatusSkipped])
	}
}

func (r *Runner) enqueue(key string) {
	i := sort.SearchStrings(r.ready, key)
	r.ready = slices.Insert(r.ready, i, key)
}

func (r *Runner) removeReady(key string) {
	i := sort.SearchStrings(r.ready, key)
	if i < len(r.ready) && r.ready[i] == key {
		r.ready = slices.Delete(r.ready, i, i+1)
	}
}

// broadcast publishes an immutable snapshot of the whole graph.
func (r *Runner) broadcast() {
	snap := core.RunSnapshot{Actions: make([]core.ActionState, len(r.graph.Actions))}
	for i, a := range r.graph.Actions {
		snap.Actions[i] = core.ActionState{
			Target:       a.Target,
			Kind:         a.Kind,
			Status:       a.Status,
			Attempts:     a.Attempts,
			RowsAffected: a.RowsAffected,
			Error:        a.Error,
		}
	}
	r.notifier.Broadcast(snap)
}

// History recording is best effort; a run never fails on store errors.

func (r *Runner) recordActionStart(a *core.ExecutionAction) {
	if r.store == nil || r.runID == "" {
		return
	}
	ar := &state.ActionRun{
		RunID:     r.runID,
		Target:    a.Target.String(),
		Kind:      a.Kind,
		Status:    core.ActionStatusRunning,
		StartedAt: a.StartedAt,
	}
	_ = r.store.RecordActionRun(ar)
	r.actionRunIDs[a.Target.Key()] = ar.ID
}

func (r *Runner) recordActionTerminal(a *core.ExecutionAction) {
	if r.store == nil || r.runID == "" {
		return
	}
	if id, ok := r.actionRunIDs[a.Target.Key()]; ok {
		_ = r.store.UpdateActionRun(id, a.Status, a.RowsAffected, a.Attempts, a.Error)
		return
	}
	// Never dispatched: terminal straight from pending.
	_ = r.store.RecordActionRun(&state.ActionRun{
		RunID:  r.runID,
		Target: a.Target.String(),
		Kind:   a.Kind,
		Status: a.Status,
		Error:  a.Error,
	})
}

func (r *Runner) completeRun(status core.RunStatus, errMsg string) {
	if r.store == nil || r.runID == "" {
		return
	}
	_ = r.store.CompleteRun(r.runID, status, errMsg)
}
