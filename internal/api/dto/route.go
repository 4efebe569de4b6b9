package dto

import "pharmacy-delivery-service/internal/domain"

// OptimizeRequest overrides the route start. An empty body is allowed.
type OptimizeRequest struct {
	Start *LatLng `json:"start"`
}

func (r OptimizeRequest) StartCoordinates() *domain.Coordinates {
	if r.Start == nil {
		return nil
	}
	return r.Start.ToDomain().Ptr()
}

type RouteResponse struct {
	AgentID         string   `json:"agent_id,omitempty"`
	Start           LatLng   `json:"start"`
	OrderedIDs      []string `json:"ordered_ids"`
	Unassignable    []string `json:"unassignable"`
	EncodedPath     string   `json:"encoded_path"`
	Path            []LatLng `json:"path"`
	DistanceMeters  float64  `json:"distance_meters"`
	DurationSeconds float64  `json:"duration_seconds"`
}

func RouteFrom(r domain.OptimizedRoute) RouteResponse {
	out := RouteResponse{
		AgentID:         r.AgentID,
		Start:           LatLngFrom(r.Start),
		OrderedIDs:      r.OrderedIDs,
		Unassignable:    r.Unassignable,
		EncodedPath:     r.EncodedPath,
		Path:            make([]LatLng, 0, len(r.Path)),
		DistanceMeters:  r.DistanceMeters,
		DurationSeconds: r.DurationSeconds,
	}
	if out.Unassignable == nil {
		out.Unassignable = []string{}
	}
	for _, c := range r.Path {
		out.Path = append(out.Path, LatLngFrom(c))
	}
	return out
}
