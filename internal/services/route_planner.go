package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"pharmacy-delivery-service/internal/assignment"
	"pharmacy-delivery-service/internal/domain"
	"pharmacy-delivery-service/internal/events"
	"pharmacy-delivery-service/internal/geo"
	"pharmacy-delivery-service/internal/platform/obs"
	"pharmacy-delivery-service/internal/ports"
)

// Maximum number of geocoding requests in flight for one optimization.
const geocodeConcurrency = 5

// RoutePlanner asks the optimization service for a stop order and applies it
// to the pending pool or to one agent's route.
type RoutePlanner struct {
	Store     *assignment.Store
	Geocoder  ports.Geocoder
	Optimizer ports.RouteOptimizer
	Broker    events.Broker
	// Route start when the caller gives none and the agent has no known position.
	Pharmacy domain.Coordinates
}

// OptimizePending reorders the pending pool. start overrides the pharmacy.
func (p *RoutePlanner) OptimizePending(ctx context.Context, start *domain.Coordinates) (_ domain.OptimizedRoute, err error) {
	defer obs.Time(ctx, "planner.OptimizePending")(&err)

	origin := p.Pharmacy
	if start != nil {
		origin = *start
	}

	route, err := p.optimize(ctx, "", origin, p.Store.Pending(), func(ids []string) error {
		_, err := p.Store.ReorderPending(ctx, ids)
		return err
	})
	if err != nil {
		return domain.OptimizedRoute{}, fmt.Errorf("optimize pending stops: %w", err)
	}
	return route, nil
}

// OptimizeAgent reorders the agent's route. The start is the given point,
// else the agent's last known position, else the pharmacy.
func (p *RoutePlanner) OptimizeAgent(ctx context.Context, agentID string, start *domain.Coordinates) (_ domain.OptimizedRoute, err error) {
	defer obs.Time(ctx, "planner.OptimizeAgent")(&err)

	agent, err := p.Store.Agent(agentID)
	if err != nil {
		return domain.OptimizedRoute{}, err
	}
	stops, err := p.Store.StopsFor(agentID)
	if err != nil {
		return domain.OptimizedRoute{}, err
	}

	origin := p.Pharmacy
	switch {
	case start != nil:
		origin = *start
	case agent.LastKnownPosition != nil:
		origin = *agent.LastKnownPosition
	}

	route, err := p.optimize(ctx, agentID, origin, stops, func(ids []string) error {
		_, err := p.Store.ReorderAssigned(ctx, agentID, ids)
		return err
	})
	if err != nil {
		return domain.OptimizedRoute{}, fmt.Errorf("optimize route for agent %s: %w", agentID, err)
	}
	return route, nil
}

func (p *RoutePlanner) optimize(ctx context.Context, agentID string, start domain.Coordinates, stops []domain.Stop, apply func([]string) error) (domain.OptimizedRoute, error) {
	if err := start.Validate(); err != nil {
		return domain.OptimizedRoute{}, fmt.Errorf("route start: %w", err)
	}
	if len(stops) == 0 {
		return domain.OptimizedRoute{}, &domain.OptimizationError{Reason: "no stops to optimize"}
	}

	located, failed, err := p.locate(ctx, stops)
	if err != nil {
		return domain.OptimizedRoute{}, err
	}
	if len(located) == 0 {
		return domain.OptimizedRoute{}, &domain.OptimizationError{Reason: "no geocodable stops", Unassignable: failed}
	}

	res, err := p.Optimizer.Optimize(ctx, start, located)
	if err != nil {
		var oe *domain.OptimizationError
		if errors.As(err, &oe) && len(failed) > 0 {
			return domain.OptimizedRoute{}, &domain.OptimizationError{Reason: oe.Reason, Unassignable: append(failed, oe.Unassignable...)}
		}
		return domain.OptimizedRoute{}, err
	}

	var path []domain.Coordinates
	if res.EncodedPath != "" {
		path, err = geo.DecodePolyline(res.EncodedPath)
		if err != nil {
			return domain.OptimizedRoute{}, &domain.OptimizationError{Reason: fmt.Sprintf("bad route geometry: %v", err)}
		}
	}

	order, unassignable := finalOrder(stops, res.OrderedIDs, failed, res.Unassigned)
	if err := apply(order); err != nil {
		return domain.OptimizedRoute{}, err
	}

	route := domain.OptimizedRoute{
		AgentID:         agentID,
		Start:           start,
		OrderedIDs:      order,
		Unassignable:    unassignable,
		EncodedPath:     res.EncodedPath,
		Path:            path,
		DistanceMeters:  res.DistanceMeters,
		DurationSeconds: res.DurationSeconds,
	}

	topics := []string{events.TopicMap}
	if agentID != "" {
		topics = append(topics, events.AgentTopic(agentID))
	}
	publish(ctx, p.Broker, events.Event{
		Type:       events.RouteOptimized,
		AgentID:    agentID,
		OrderedIDs: order,
		At:         time.Now().UTC(),
	}, topics...)

	log.Printf("req_id=%s op=planner.optimize agent_id=%q stops=%d routed=%d unassignable=%d distance_m=%.0f",
		obs.RequestID(ctx), agentID, len(stops), len(res.OrderedIDs), len(unassignable), res.DistanceMeters)
	return route, nil
}

// locate resolves a location for every stop, geocoding the ones that have
// none. Stops that cannot be geocoded are returned as failed in input order.
func (p *RoutePlanner) locate(ctx context.Context, stops []domain.Stop) ([]ports.OptimizationStop, []string, error) {
	locs := make([]*domain.Coordinates, len(stops))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(geocodeConcurrency)

	for i, s := range stops {
		if s.Location != nil {
			locs[i] = s.Location.Ptr()
			continue
		}
		i, s := i, s
		g.Go(func() error {
			c, err := p.Geocoder.Geocode(gctx, s.Address)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Printf("req_id=%s op=planner.locate stop_id=%s geocode failed: %v", obs.RequestID(ctx), s.ID, err)
				return nil
			}
			if _, err := p.Store.SetStopLocation(gctx, s.ID, c); err != nil {
				log.Printf("req_id=%s op=planner.locate stop_id=%s store location failed: %v", obs.RequestID(ctx), s.ID, err)
			}
			locs[i] = c.Ptr()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("geocode stops: %w", err)
	}

	located := make([]ports.OptimizationStop, 0, len(stops))
	var failed []string
	for i, s := range stops {
		if locs[i] == nil {
			failed = append(failed, s.ID)
			continue
		}
		located = append(located, ports.OptimizationStop{ID: s.ID, Location: *locs[i]})
	}
	return located, failed, nil
}

// finalOrder puts optimized stops first, then geocode failures, then stops the
// solver left out. Stops the solver dropped silently keep their previous
// relative order at the end so the result is always a permutation.
func finalOrder(stops []domain.Stop, ordered, failed, unassigned []string) ([]string, []string) {
	known := make(map[string]bool, len(stops))
	for _, s := range stops {
		known[s.ID] = true
	}

	seen := make(map[string]bool, len(stops))
	order := make([]string, 0, len(stops))
	add := func(id string) bool {
		if !known[id] || seen[id] {
			return false
		}
		seen[id] = true
		order = append(order, id)
		return true
	}

	for _, id := range ordered {
		add(id)
	}
	var unassignable []string
	for _, id := range failed {
		if add(id) {
			unassignable = append(unassignable, id)
		}
	}
	for _, id := range unassigned {
		if add(id) {
			unassignable = append(unassignable, id)
		}
	}
	for _, s := range stops {
		if add(s.ID) {
			unassignable = append(unassignable, s.ID)
		}
	}
	return order, unassignable
}
