package routing

import (
	"context"
	"fmt"
	"sync"

	"pharmacy-delivery-service/internal/domain"
	"pharmacy-delivery-service/internal/geo"
	"pharmacy-delivery-service/internal/ports"
)

// MockProvider is a deterministic stand-in for OpenRouteService in tests.
// Optimize orders stops by a greedy nearest-neighbor walk on straight-line
// distance.
type MockProvider struct {
	mu        sync.Mutex
	addresses map[string]domain.Coordinates
	labels    map[domain.Coordinates]string

	// Unassignable stop ids are reported as left out by the solver.
	Unassignable map[string]bool
	// OptimizeErr, when set, is returned by every Optimize call.
	OptimizeErr error

	GeocodeCalls  int
	OptimizeCalls int
}

func NewMockProvider(addresses map[string]domain.Coordinates) *MockProvider {
	m := &MockProvider{
		addresses:    make(map[string]domain.Coordinates, len(addresses)),
		labels:       make(map[domain.Coordinates]string, len(addresses)),
		Unassignable: map[string]bool{},
	}
	for addr, c := range addresses {
		m.addresses[normalize(addr)] = c
		m.labels[c] = addr
	}
	return m
}

func (m *MockProvider) Geocode(ctx context.Context, address string) (domain.Coordinates, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GeocodeCalls++

	if err := ctx.Err(); err != nil {
		return domain.Coordinates{}, err
	}
	c, ok := m.addresses[normalize(address)]
	if !ok {
		return domain.Coordinates{}, fmt.Errorf("geocode %q: %w: no match", address, domain.ErrNotFound)
	}
	return c, nil
}

func (m *MockProvider) ReverseGeocode(_ context.Context, at domain.Coordinates) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if label, ok := m.labels[at]; ok {
		return label, nil
	}
	return "", fmt.Errorf("reverse geocode %v,%v: %w: no match", at.Lat, at.Lng, domain.ErrNotFound)
}

func (m *MockProvider) Optimize(ctx context.Context, start domain.Coordinates, stops []ports.OptimizationStop) (ports.OptimizationResult, error) {
	m.mu.Lock()
	m.OptimizeCalls++
	optErr := m.OptimizeErr
	skip := make(map[string]bool, len(m.Unassignable))
	for id, v := range m.Unassignable {
		skip[id] = v
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return ports.OptimizationResult{}, err
	}
	if optErr != nil {
		return ports.OptimizationResult{}, optErr
	}
	if len(stops) == 0 {
		return ports.OptimizationResult{}, &domain.OptimizationError{Reason: "no stops to optimize"}
	}

	var out ports.OptimizationResult
	remaining := make([]ports.OptimizationStop, 0, len(stops))
	for _, s := range stops {
		if skip[s.ID] {
			out.Unassigned = append(out.Unassigned, s.ID)
			continue
		}
		remaining = append(remaining, s)
	}
	if len(remaining) == 0 {
		return ports.OptimizationResult{}, &domain.OptimizationError{Reason: "no stops could be routed", Unassignable: out.Unassigned}
	}

	path := []domain.Coordinates{start}
	current := start
	for len(remaining) > 0 {
		best := 0
		bestDist := geo.DistanceMeters(current, remaining[0].Location)
		for i := 1; i < len(remaining); i++ {
			d := geo.DistanceMeters(current, remaining[i].Location)
			// Ties go to the smaller id so the order is deterministic.
			if d < bestDist || (d == bestDist && remaining[i].ID < remaining[best].ID) {
				best, bestDist = i, d
			}
		}

		next := remaining[best]
		out.OrderedIDs = append(out.OrderedIDs, next.ID)
		out.DistanceMeters += bestDist
		path = append(path, next.Location)
		current = next.Location
		remaining = append(remaining[:best], remaining[best+1:]...)
	}

	// Assume an urban average of 30 km/h.
	out.DurationSeconds = out.DistanceMeters / (30000.0 / 3600.0)
	out.EncodedPath = geo.EncodePolyline(path)
	return out, nil
}

var (
	_ ports.Geocoder        = (*MockProvider)(nil)
	_ ports.ReverseGeocoder = (*MockProvider)(nil)
	_ ports.RouteOptimizer  = (*MockProvider)(nil)
)
