package adapter

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/millbrook-data/strata/pkg/core"
)

// Factory builds a disconnected adapter. A nil logger yields a discard
// logger inside the adapter.
type Factory func(*slog.Logger) Adapter

// warehouses is the process-wide adapter registry. Warehouse packages
// register themselves from init, mirroring database/sql drivers, so a
// blank import is all it takes to make a warehouse type available.
var warehouses = struct {
	mu        sync.RWMutex
	factories map[string]Factory
}{factories: make(map[string]Factory)}

// Register makes a warehouse type available under the given name.
// Names are case-insensitive. Registering the same name twice panics;
// that is always a wiring bug, not a runtime condition.
func Register(name string, factory Factory) {
	key := strings.ToLower(name)
	warehouses.mu.Lock()
	defer warehouses.mu.Unlock()
	if _, dup := warehouses.factories[key]; dup {
		panic("adapter: Register called twice for type " + key)
	}
	warehouses.factories[key] = factory
}

// Get looks up the factory for a warehouse type.
func Get(name string) (Factory, bool) {
	warehouses.mu.RLock()
	defer warehouses.mu.RUnlock()
	f, ok := warehouses.factories[strings.ToLower(name)]
	return f, ok
}

// NewAdapter builds a disconnected adapter for the configured warehouse
// type. Connecting is the caller's job; see Adapter.Connect.
func NewAdapter(cfg core.AdapterConfig, logger *slog.Logger) (Adapter, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("adapter type not specified")
	}

	factory, ok := Get(cfg.Type)
	if !ok {
		return nil, &UnknownAdapterError{
			Type:      cfg.Type,
			Available: ListAdapters(),
		}
	}
	return factory(logger), nil
}

// ListAdapters returns the registered warehouse types, sorted.
func ListAdapters() []string {
	warehouses.mu.RLock()
	defer warehouses.mu.RUnlock()
	names := make([]string, 0, len(warehouses.factories))
	for name := range warehouses.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered reports whether a warehouse type is available.
func IsRegistered(name string) bool {
	_, ok := Get(name)
	return ok
}

// UnknownAdapterError is returned when a target names a warehouse type
// that no imported adapter package registered.
type UnknownAdapterError struct {
	Type      string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("unknown adapter type %q\nAvailable adapters: %v\nHint: Check your target.type in strata.yaml", e.Type, e.Available)
}
