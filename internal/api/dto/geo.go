package dto

import "pharmacy-delivery-service/internal/domain"

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (l LatLng) ToDomain() domain.Coordinates { return domain.Coordinates{Lat: l.Lat, Lng: l.Lng} }

func LatLngFrom(c domain.Coordinates) LatLng { return LatLng{Lat: c.Lat, Lng: c.Lng} }

func latLngPtr(c *domain.Coordinates) *LatLng {
	if c == nil {
		return nil
	}
	l := LatLngFrom(*c)
	return &l
}

type ReverseGeocodeResponse struct {
	Label string `json:"label"`
}

type ErrorResponse struct {
	Error        string   `json:"error"`
	Unassignable []string `json:"unassignable,omitempty"`
}
