package types

import (
	"errors"
	"fmt"
)

// ErrValidation is the root of every input validation failure.
var ErrValidation = errors.New("validation error")

// Validation errors. Each wraps ErrValidation.
var (
	ErrInvalidID       = fmt.Errorf("%w: invalid block ID", ErrValidation)
	ErrInvalidPriority = fmt.Errorf("%w: priority must not be negative", ErrValidation)
	ErrSelfLoop        = fmt.Errorf("%w: link source and target are the same block", ErrValidation)
	ErrBlockNotFound   = fmt.Errorf("%w: block not found", ErrValidation)
	ErrInvalidQuery    = fmt.Errorf("%w: invalid link query", ErrValidation)
)

// Graph invariant errors.
var (
	ErrDuplicateLink   = errors.New("link already exists")
	ErrCycleDetected   = errors.New("cycle detected")
	ErrUnknownRelation = errors.New("unknown relation")

	// ErrConcurrencyConflict is reserved for optimistic concurrency; the
	// engine serializes writers and never returns it today.
	ErrConcurrencyConflict = errors.New("concurrent modification conflict")
)
