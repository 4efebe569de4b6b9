package domain

import (
	"fmt"
	"strings"
	"time"
)

type AgentStatus string

const (
	AgentAvailable AgentStatus = "available"
	AgentInRoute   AgentStatus = "in_route"
	AgentOffline   AgentStatus = "offline"
)

func ParseAgentStatus(s string) (AgentStatus, error) {
	switch st := AgentStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case AgentAvailable, AgentInRoute, AgentOffline:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown agent status %q", ErrValidation, s)
}

// Delivery person carrying a location-reporting device.
// The ordered stops an agent is responsible for are owned by the
// assignment store, not by this record.
type Agent struct {
	ID                string
	Name              string
	Phone             string
	Status            AgentStatus
	LastKnownPosition *Coordinates
	BearingDegrees    float64
	UpdatedAt         *time.Time
}

func (a Agent) Clone() Agent {
	if a.LastKnownPosition != nil {
		a.LastKnownPosition = a.LastKnownPosition.Ptr()
	}
	if a.UpdatedAt != nil {
		t := *a.UpdatedAt
		a.UpdatedAt = &t
	}
	return a
}
