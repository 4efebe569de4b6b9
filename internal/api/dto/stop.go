package dto

import "pharmacy-delivery-service/internal/domain"

type CreateStopRequest struct {
	ID       string  `json:"id"`
	Address  string  `json:"address"`
	Phone    string  `json:"phone"`
	Location *LatLng `json:"location"`
}

func (r CreateStopRequest) ToDomain() domain.Stop {
	s := domain.Stop{ID: r.ID, Address: r.Address, Phone: r.Phone}
	if r.Location != nil {
		s.Location = r.Location.ToDomain().Ptr()
	}
	return s
}

type StopResponse struct {
	ID       string  `json:"id"`
	Address  string  `json:"address"`
	Phone    string  `json:"phone,omitempty"`
	Location *LatLng `json:"location"`
	Sequence int     `json:"sequence"`
	Notified bool    `json:"notified"`
	Status   string  `json:"status"`
	AgentID  string  `json:"agent_id,omitempty"`
}

func StopFrom(s domain.Stop) StopResponse {
	return StopResponse{
		ID:       s.ID,
		Address:  s.Address,
		Phone:    s.Phone,
		Location: latLngPtr(s.Location),
		Sequence: s.Sequence,
		Notified: s.Notified,
		Status:   string(s.Status),
		AgentID:  s.AgentID,
	}
}

type ListStopsResponse struct {
	Stops []StopResponse `json:"stops"`
}

func StopsFrom(stops []domain.Stop) ListStopsResponse {
	res := ListStopsResponse{Stops: make([]StopResponse, 0, len(stops))}
	for _, s := range stops {
		res.Stops = append(res.Stops, StopFrom(s))
	}
	return res
}

// ReorderRequest must name exactly the stops currently in the sequence.
type ReorderRequest struct {
	IDs []string `json:"ids"`
}

type AssignRequest struct {
	AgentID string `json:"agent_id"`
}

type CompleteRequest struct {
	Status string `json:"status"`
}
