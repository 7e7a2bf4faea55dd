// Package adapter provides warehouse adapter interfaces and shared
// implementation for Strata's execution engine.
//
// This package contains the public contract that all warehouse adapters
// must implement. Concrete adapter implementations live in pkg/adapters/
// subdirectories and register themselves via init().
//
// Note: the contract types are defined in pkg/core. This package
// re-exports them via type aliases so adapter implementations only need
// one import.
package adapter

import (
	"github.com/millbrook-data/strata/pkg/core"
)

// Type aliases for the shared contract types defined in pkg/core.
type (
	// Adapter is an alias for core.Adapter.
	Adapter = core.Adapter

	// Config is an alias for core.AdapterConfig.
	Config = core.AdapterConfig

	// Column is an alias for core.Column.
	Column = core.Column

	// Metadata is an alias for core.TableMetadata.
	Metadata = core.TableMetadata

	// Rows is an alias for core.Rows.
	Rows = core.Rows
)
