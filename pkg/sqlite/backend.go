// Package sqlite provides the public API for the SQLite-backed link graph.
// This package exposes the factory function for creating backends while
// keeping implementation details internal.
package sqlite

import (
	"github.com/mesh-intelligence/linkgraph/internal/sqlite"
)

// Option configures a Backend.
type Option = sqlite.Option

// Backend is a LinkManager persisted to SQLite and JSONL.
type Backend = sqlite.Backend

// Re-exported options.
var (
	WithLogger      = sqlite.WithLogger
	WithBlockOracle = sqlite.WithBlockOracle
	WithHooks       = sqlite.WithHooks
)

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
//
// Example:
//
//	backend := sqlite.NewBackend()
//	err := backend.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".linkgraph",
//	})
//	defer backend.Detach()
func NewBackend(opts ...Option) *Backend {
	return sqlite.NewBackend(opts...)
}
