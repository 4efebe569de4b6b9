package dto

import (
	"time"

	"pharmacy-delivery-service/internal/domain"
	"pharmacy-delivery-service/internal/proximity"
	"pharmacy-delivery-service/internal/tracking"
)

type CreateAgentRequest struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Status string `json:"status"`
}

func (r CreateAgentRequest) ToDomain() (domain.Agent, error) {
	a := domain.Agent{ID: r.ID, Name: r.Name, Phone: r.Phone}
	if r.Status != "" {
		st, err := domain.ParseAgentStatus(r.Status)
		if err != nil {
			return domain.Agent{}, err
		}
		a.Status = st
	}
	return a, nil
}

type AgentResponse struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Phone     string     `json:"phone,omitempty"`
	Status    string     `json:"status"`
	Position  *LatLng    `json:"position"`
	Bearing   float64    `json:"bearing"`
	UpdatedAt *time.Time `json:"updated_at"`
}

func AgentFrom(a domain.Agent) AgentResponse {
	return AgentResponse{
		ID:        a.ID,
		Name:      a.Name,
		Phone:     a.Phone,
		Status:    string(a.Status),
		Position:  latLngPtr(a.LastKnownPosition),
		Bearing:   a.BearingDegrees,
		UpdatedAt: a.UpdatedAt,
	}
}

type ListAgentsResponse struct {
	Agents []AgentResponse `json:"agents"`
}

func AgentsFrom(agents []domain.Agent) ListAgentsResponse {
	res := ListAgentsResponse{Agents: make([]AgentResponse, 0, len(agents))}
	for _, a := range agents {
		res.Agents = append(res.Agents, AgentFrom(a))
	}
	return res
}

type StatusRequest struct {
	Status string `json:"status"`
}

// FixRequest is one raw device reading. A missing timestamp means "now".
type FixRequest struct {
	Lat       float64    `json:"lat"`
	Lng       float64    `json:"lng"`
	Timestamp *time.Time `json:"timestamp"`
}

func (r FixRequest) ToFix() tracking.Fix {
	f := tracking.Fix{Lat: r.Lat, Lng: r.Lng, Timestamp: time.Now().UTC()}
	if r.Timestamp != nil {
		f.Timestamp = *r.Timestamp
	}
	return f
}

type NotificationResponse struct {
	StopID         string  `json:"stop_id"`
	DistanceMeters float64 `json:"distance_meters"`
}

type FixResponse struct {
	AgentID            string                 `json:"agent_id"`
	Position           LatLng                 `json:"position"`
	Bearing            float64                `json:"bearing"`
	Timestamp          time.Time              `json:"timestamp"`
	Notifications      []NotificationResponse `json:"notifications"`
	MissingCoordinates []string               `json:"missing_coordinates,omitempty"`
}

func FixResponseFrom(evt tracking.LocationEvent, res proximity.Result) FixResponse {
	out := FixResponse{
		AgentID:            evt.AgentID,
		Position:           LatLngFrom(evt.Position),
		Bearing:            evt.Bearing,
		Timestamp:          evt.Timestamp,
		Notifications:      make([]NotificationResponse, 0, len(res.Notifications)),
		MissingCoordinates: res.MissingCoordinates,
	}
	for _, n := range res.Notifications {
		out.Notifications = append(out.Notifications, NotificationResponse{StopID: n.StopID, DistanceMeters: n.DistanceMeters})
	}
	return out
}
