package ports

import (
	"context"

	"pharmacy-delivery-service/internal/domain"
)

// Contract for turning a free-text address into coordinates.
type Geocoder interface {
	// Fails with domain.ErrNotFound when the address has no match.
	Geocode(ctx context.Context, address string) (domain.Coordinates, error)
}

// Contract for turning coordinates back into a display address.
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, at domain.Coordinates) (string, error)
}

// Port: a persistent address -> coordinates cache shared by geocoding adapters.
type GeocodeCache interface {
	// Return cached coordinates for the addresses that are present; misses are simply absent.
	GetMany(ctx context.Context, addresses []string) (map[string]domain.Coordinates, error)
	PutMany(ctx context.Context, entries map[string]domain.Coordinates) error
}
