package engine

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/millbrook-data/strata/pkg/adapter"
	"github.com/millbrook-data/strata/pkg/core"
)

func TestNewDefaults(t *testing.T) {
	e, err := New(Config{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer func() { _ = e.Close() }()

	if e.environment != "dev" {
		t.Errorf("environment = %q, want dev", e.environment)
	}
	if e.dbConfig.Type != "duckdb" {
		t.Errorf("adapter type = %q, want duckdb", e.dbConfig.Type)
	}
	if e.GetStateStore() != nil {
		t.Error("history store should be disabled without a state path")
	}
	if e.dbConnected {
		t.Error("warehouse connection must be lazy")
	}
}

func TestNewWithStatePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	e, err := New(Config{StatePath: path, Environment: "prod"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer func() { _ = e.Close() }()

	store := e.GetStateStore()
	if store == nil {
		t.Fatal("expected a history store")
	}
	runs, err := store.ListRuns(10)
	if err != nil {
		t.Fatalf("history schema not initialized: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("fresh store lists %d runs", len(runs))
	}
}

func TestNewBadStatePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "history.db")
	_, err := New(Config{StatePath: path})
	if err == nil || !strings.Contains(err.Error(), "failed to open history store") {
		t.Fatalf("expected store open failure, got %v", err)
	}
}

func TestBuildStaysOfflineWithoutProbes(t *testing.T) {
	// An unregistered adapter type only fails once something actually
	// needs the warehouse.
	e, err := New(Config{Adapter: adapter.Config{Type: "no-such-warehouse"}})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer func() { _ = e.Close() }()

	g := core.NewGraph(tableAction("orders", "SELECT 1"))
	if _, err := e.Build(context.Background(), g, allActions(), BuildOptions{}); err != nil {
		t.Errorf("plan resolution without probes must not connect: %v", err)
	}

	probing := core.NewGraph(incrementalAction("events", core.TableSpec{Query: "SELECT 1"}))
	_, err = e.Build(context.Background(), probing, allActions(), BuildOptions{})
	if err == nil || !strings.Contains(err.Error(), "failed to create warehouse adapter") {
		t.Fatalf("expected lazy connection failure, got %v", err)
	}
}

func TestCloseWithoutConnection(t *testing.T) {
	e, err := New(Config{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close() on an unconnected engine failed: %v", err)
	}
}
