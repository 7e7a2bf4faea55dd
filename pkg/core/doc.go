// Package core defines the shared language of the Strata system.
//
// This package contains:
//   - Domain entities (Target, Action, Graph, ExecutionGraph, RunResult)
//   - Service interfaces (Adapter, Store, NotebookRunner)
//
// The Golden Rule: pkg/core imports only the stdlib and codec libraries.
// All other packages depend on core, not the reverse.
package core
