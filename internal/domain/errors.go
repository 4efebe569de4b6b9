package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks malformed input that is rejected locally.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a stale or unknown id.
	ErrNotFound      = errors.New("not found")
	ErrStopNotFound  = fmt.Errorf("stop %w", ErrNotFound)
	ErrAgentNotFound = fmt.Errorf("agent %w", ErrNotFound)

	// ErrInvalidReorder is returned when a reorder request does not name
	// exactly the ids currently held by the sequence being reordered.
	ErrInvalidReorder = fmt.Errorf("%w: invalid reorder", ErrValidation)

	// ErrUpstream wraps geocode, optimization and notification failures.
	ErrUpstream           = errors.New("upstream service error")
	ErrOptimizationFailed = fmt.Errorf("%w: optimization failed", ErrUpstream)

	// ErrLocationUnavailable is surfaced when a device stops delivering fixes.
	ErrLocationUnavailable = errors.New("location unavailable")

	// ErrAgentNotActive rejects location updates for agents that are not on a route.
	ErrAgentNotActive = errors.New("agent not in active route")

	// ErrInvariantViolation indicates a programming fault, such as a stop owned twice.
	ErrInvariantViolation = errors.New("invariant violation")
)

// OptimizationError describes why a route optimization could not be produced.
type OptimizationError struct {
	Reason       string
	Unassignable []string
}

func (e *OptimizationError) Error() string {
	if len(e.Unassignable) == 0 {
		return fmt.Sprintf("optimization failed: %s", e.Reason)
	}
	return fmt.Sprintf("optimization failed: %s (unassignable: %s)", e.Reason, strings.Join(e.Unassignable, ", "))
}

func (e *OptimizationError) Unwrap() error { return ErrOptimizationFailed }
