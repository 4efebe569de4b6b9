package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"pharmacy-delivery-service/internal/api/dto"
	"pharmacy-delivery-service/internal/domain"
	"pharmacy-delivery-service/internal/ports"
)

type GeocodeHandler struct {
	Reverse ports.ReverseGeocoder
}

// ReverseGeocode resolves ?lat=&lng= to a display label.
func (h *GeocodeHandler) ReverseGeocode(w http.ResponseWriter, r *http.Request) {
	at, err := parseLatLng(r)
	if err != nil {
		writeDomainError(w, r, "geocode.Reverse", err)
		return
	}

	label, err := h.Reverse.ReverseGeocode(r.Context(), at)
	if err != nil {
		writeDomainError(w, r, "geocode.Reverse", err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.ReverseGeocodeResponse{Label: label})
}

func parseLatLng(r *http.Request) (domain.Coordinates, error) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("%w: lat must be a number", domain.ErrValidation)
	}
	lng, err := strconv.ParseFloat(q.Get("lng"), 64)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("%w: lng must be a number", domain.ErrValidation)
	}
	c := domain.Coordinates{Lat: lat, Lng: lng}
	return c, c.Validate()
}
