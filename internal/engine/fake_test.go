package engine

// fake_test.go - Scriptable in-memory warehouse for builder and runner tests

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/millbrook-data/strata/internal/selector"
	"github.com/millbrook-data/strata/pkg/adapter"
	"github.com/millbrook-data/strata/pkg/core"
)

// fakeAdapter scripts statement outcomes by substring match against
// the executed SQL. Assertion queries return scripted row counts
// through an embedded in-memory SQLite database.
type fakeAdapter struct {
	mu          sync.Mutex
	execLog     []string
	probeLog    []string
	failures    map[string]int // substring -> remaining failures, -1 = always
	execRows    map[string]int64
	assertRows  map[string]int64
	blocked     map[string]fakeGate
	existing    map[string]bool
	metadata    map[string]*core.TableMetadata
	probeErr    error
	rowsDB      *sql.DB
	concurrency int
}

// fakeGate parks matching executions until released. A gate ignoring
// the context lets a statement outlive run cancellation, which is how
// a warehouse call that cannot be interrupted behaves.
type fakeGate struct {
	ch        chan struct{}
	ignoreCtx bool
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		failures:    make(map[string]int),
		execRows:    make(map[string]int64),
		assertRows:  make(map[string]int64),
		blocked:     make(map[string]fakeGate),
		existing:    make(map[string]bool),
		metadata:    make(map[string]*core.TableMetadata),
		concurrency: 4,
	}
}

func (f *fakeAdapter) Connect(ctx context.Context, cfg adapter.Config) error { return nil }

func (f *fakeAdapter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rowsDB != nil {
		err := f.rowsDB.Close()
		f.rowsDB = nil
		return err
	}
	return nil
}

func (f *fakeAdapter) Exec(ctx context.Context, sqlText string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	f.mu.Lock()
	f.execLog = append(f.execLog, sqlText)
	var gate fakeGate
	var gated bool
	for sub, g := range f.blocked {
		if strings.Contains(sqlText, sub) {
			gate, gated = g, true
			break
		}
	}
	f.mu.Unlock()

	if gated {
		if gate.ignoreCtx {
			<-gate.ch
		} else {
			select {
			case <-gate.ch:
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for sub, n := range f.failures {
		if !strings.Contains(sqlText, sub) || n == 0 {
			continue
		}
		if n > 0 {
			f.failures[sub] = n - 1
		}
		return 0, fmt.Errorf("scripted failure for %q", sub)
	}
	for sub, rows := range f.execRows {
		if strings.Contains(sqlText, sub) {
			return rows, nil
		}
	}
	return 0, nil
}

func (f *fakeAdapter) Query(ctx context.Context, sqlText string) (*core.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.execLog = append(f.execLog, sqlText)
	var count int64
	for sub, rows := range f.assertRows {
		if strings.Contains(sqlText, sub) {
			count = rows
			break
		}
	}
	if f.rowsDB == nil {
		db, err := sql.Open("sqlite", ":memory:")
		if err != nil {
			f.mu.Unlock()
			return nil, err
		}
		f.rowsDB = db
	}
	db := f.rowsDB
	f.mu.Unlock()

	stmt := "SELECT 1 WHERE 1 = 0"
	if count > 0 {
		vals := make([]string, count)
		for i := range vals {
			vals[i] = "(1)"
		}
		stmt = "VALUES " + strings.Join(vals, ", ")
	}
	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	return &core.Rows{Rows: rows}, nil
}

func (f *fakeAdapter) TableExists(ctx context.Context, target core.Target) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probeLog = append(f.probeLog, target.Key())
	if f.probeErr != nil {
		return false, f.probeErr
	}
	return f.existing[target.Key()], nil
}

func (f *fakeAdapter) GetTableMetadata(ctx context.Context, target core.Target) (*core.TableMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	md, ok := f.metadata[target.Key()]
	if !ok {
		return nil, fmt.Errorf("table %s not found", target.String())
	}
	return md, nil
}

func (f *fakeAdapter) DefaultConcurrency() int { return f.concurrency }
func (f *fakeAdapter) DialectName() string     { return "fake" }

// failWith scripts the next n executions matching sub to fail.
// n < 0 fails every match.
func (f *fakeAdapter) failWith(sub string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[sub] = n
}

// holdOn blocks executions matching sub until the returned release
// function is called or the statement context is cancelled.
func (f *fakeAdapter) holdOn(sub string) func() {
	return f.gate(sub, false)
}

// holdThroughCancel blocks matching executions until released even
// when the statement context is cancelled.
func (f *fakeAdapter) holdThroughCancel(sub string) func() {
	return f.gate(sub, true)
}

func (f *fakeAdapter) gate(sub string, ignoreCtx bool) func() {
	ch := make(chan struct{})
	f.mu.Lock()
	f.blocked[sub] = fakeGate{ch: ch, ignoreCtx: ignoreCtx}
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (f *fakeAdapter) markExisting(targets ...core.Target) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range targets {
		f.existing[t.Key()] = true
	}
}

func (f *fakeAdapter) setMetadata(t core.Target, cols ...core.Column) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metadata[t.Key()] = &core.TableMetadata{Target: t, Columns: cols}
}

func (f *fakeAdapter) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.execLog))
	copy(out, f.execLog)
	return out
}

func (f *fakeAdapter) callsMatching(sub string) int {
	n := 0
	for _, c := range f.calls() {
		if strings.Contains(c, sub) {
			n++
		}
	}
	return n
}

var _ adapter.Adapter = (*fakeAdapter)(nil)

// fakeNotebookRunner records notebook handoffs.
type fakeNotebookRunner struct {
	mu  sync.Mutex
	ran []string
	err error
}

func (f *fakeNotebookRunner) RunNotebook(ctx context.Context, target core.Target, contents string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.ran = append(f.ran, target.String())
	return nil
}

// Fixture helpers. All test targets share one database and schema so
// identities read like real warehouse relations.

func tgt(name string) core.Target {
	return core.Target{Database: "analytics", Schema: "core", Name: name}
}

func deps(names ...string) []core.DependencyRef {
	refs := make([]core.DependencyRef, len(names))
	for i, n := range names {
		refs[i] = core.DependencyRef{Target: tgt(n)}
	}
	return refs
}

func tableAction(name, query string, dependsOn ...string) *core.Action {
	return &core.Action{
		Target:       tgt(name),
		Kind:         core.ActionKindTable,
		Dependencies: deps(dependsOn...),
		Table:        &core.TableSpec{Kind: core.TableKindTable, Query: query},
	}
}

func viewAction(name, query string, dependsOn ...string) *core.Action {
	return &core.Action{
		Target:       tgt(name),
		Kind:         core.ActionKindTable,
		Dependencies: deps(dependsOn...),
		Table:        &core.TableSpec{Kind: core.TableKindView, Query: query},
	}
}

func incrementalAction(name string, spec core.TableSpec, dependsOn ...string) *core.Action {
	spec.Kind = core.TableKindIncremental
	return &core.Action{
		Target:       tgt(name),
		Kind:         core.ActionKindTable,
		Dependencies: deps(dependsOn...),
		Table:        &spec,
	}
}

func assertionAction(name, query string, dependsOn ...string) *core.Action {
	return &core.Action{
		Target:       tgt(name),
		Kind:         core.ActionKindAssertion,
		Dependencies: deps(dependsOn...),
		Assertion:    &core.AssertionSpec{Query: query},
	}
}

func declarationAction(name string) *core.Action {
	return &core.Action{
		Target:      tgt(name),
		Kind:        core.ActionKindDeclaration,
		Declaration: &core.DeclarationSpec{},
	}
}

// newTestEngine wires an engine directly to a fake warehouse, skipping
// the adapter registry and the history store.
func newTestEngine(db adapter.Adapter) *Engine {
	return &Engine{
		db:          db,
		dbConnected: true,
		logger:      slog.New(slog.DiscardHandler),
		environment: "test",
	}
}

// allActions is the empty filter: every action in the graph.
func allActions() selector.Filter { return selector.Filter{} }

// waitFor polls until cond holds or the deadline expires.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func mustBuild(t *testing.T, e *Engine, g *core.Graph, opts BuildOptions) *core.ExecutionGraph {
	t.Helper()
	eg, err := e.Build(context.Background(), g, allActions(), opts)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	return eg
}
