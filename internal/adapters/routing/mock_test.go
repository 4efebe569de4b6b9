package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy-delivery-service/internal/domain"
	"pharmacy-delivery-service/internal/geo"
	"pharmacy-delivery-service/internal/ports"
)

func TestMockOptimizeNearestNeighbor(t *testing.T) {
	m := NewMockProvider(nil)
	start := domain.Coordinates{Lat: 0, Lng: 0}

	res, err := m.Optimize(context.Background(), start, []ports.OptimizationStop{
		{ID: "far", Location: domain.Coordinates{Lat: 0.3, Lng: 0}},
		{ID: "near", Location: domain.Coordinates{Lat: 0.1, Lng: 0}},
		{ID: "mid", Location: domain.Coordinates{Lat: 0.2, Lng: 0}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"near", "mid", "far"}, res.OrderedIDs)
	assert.InDelta(t, geo.DistanceMeters(start, domain.Coordinates{Lat: 0.3}), res.DistanceMeters, 1e-6)

	path, err := geo.DecodePolyline(res.EncodedPath)
	require.NoError(t, err)
	assert.Len(t, path, 4)
}

func TestMockOptimizeUnassignable(t *testing.T) {
	m := NewMockProvider(nil)
	m.Unassignable["b"] = true

	res, err := m.Optimize(context.Background(), domain.Coordinates{}, []ports.OptimizationStop{
		{ID: "a", Location: domain.Coordinates{Lat: 1}},
		{ID: "b", Location: domain.Coordinates{Lat: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, res.OrderedIDs)
	assert.Equal(t, []string{"b"}, res.Unassigned)
}

func TestMockGeocode(t *testing.T) {
	m := NewMockProvider(map[string]domain.Coordinates{"1 Main St": {Lat: 1, Lng: 2}})

	got, err := m.Geocode(context.Background(), " 1  main st")
	require.NoError(t, err)
	assert.Equal(t, domain.Coordinates{Lat: 1, Lng: 2}, got)

	_, err = m.Geocode(context.Background(), "2 Main St")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	label, err := m.ReverseGeocode(context.Background(), domain.Coordinates{Lat: 1, Lng: 2})
	require.NoError(t, err)
	assert.Equal(t, "1 Main St", label)
}
