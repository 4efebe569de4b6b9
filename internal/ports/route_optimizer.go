package ports

import (
	"context"

	"pharmacy-delivery-service/internal/domain"
)

// One geocoded stop handed to the optimizer.
type OptimizationStop struct {
	ID       string
	Location domain.Coordinates
}

type OptimizationResult struct {
	OrderedIDs []string
	// Stops the upstream solver could not place on the route.
	Unassigned      []string
	EncodedPath     string
	DistanceMeters  float64
	DurationSeconds float64
}

// Contract for the external route optimization service. Implementations are
// stateless; failures wrap domain.ErrOptimizationFailed.
type RouteOptimizer interface {
	Optimize(ctx context.Context, start domain.Coordinates, stops []OptimizationStop) (OptimizationResult, error)
}
