package ports

import (
	"context"
	"time"

	"pharmacy-delivery-service/internal/domain"
)

// Port: durable storage behind the route assignment store.
type RouteRepository interface {
	// Return every agent record.
	ListAgents(ctx context.Context) ([]domain.Agent, error)
	// Return every stop record, open and closed.
	ListStops(ctx context.Context) ([]domain.Stop, error)
	UpsertAgent(ctx context.Context, agent domain.Agent) error
	// Write a batch of stop records (owner, sequence, flags) in one transaction.
	SaveStops(ctx context.Context, stops []domain.Stop) error
	UpdatePosition(ctx context.Context, agentID string, pos domain.Coordinates, bearing float64, at time.Time) error
}
