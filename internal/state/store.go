// Package state persists run history for Strata using SQLite.
// It tracks runs and the per-action executions inside them.
//
// Note: Core types are defined in pkg/core. This package re-exports
// them via type aliases so callers that only deal with history do not
// need a second import.
package state

import (
	"github.com/millbrook-data/strata/pkg/core"
)

// Type aliases for the persistence types defined in pkg/core.
type (
	// Store is an alias for core.Store.
	Store = core.Store

	// RunStatus is an alias for core.RunStatus.
	RunStatus = core.RunStatus

	// Run is an alias for core.Run.
	Run = core.Run

	// ActionStatus is an alias for core.ActionStatus.
	ActionStatus = core.ActionStatus

	// ActionRun is an alias for core.ActionRun.
	ActionRun = core.ActionRun
)

// Re-export status constants from core.
const (
	RunStatusRunning    = core.RunStatusRunning
	RunStatusSuccessful = core.RunStatusSuccessful
	RunStatusFailed     = core.RunStatusFailed
	RunStatusCancelled  = core.RunStatusCancelled

	ActionStatusPending    = core.ActionStatusPending
	ActionStatusRunning    = core.ActionStatusRunning
	ActionStatusSuccessful = core.ActionStatusSuccessful
	ActionStatusFailed     = core.ActionStatusFailed
	ActionStatusSkipped    = core.ActionStatusSkipped
	ActionStatusCancelled  = core.ActionStatusCancelled
)
