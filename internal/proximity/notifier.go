// Package proximity fires one-time "agent is near your stop" notifications.
package proximity

import (
	"context"
	"fmt"

	"pharmacy-delivery-service/internal/domain"
	"pharmacy-delivery-service/internal/geo"
)

// DefaultRadiusMeters is used when no radius is configured.
const DefaultRadiusMeters = 300.0

// Stops is the part of the assignment store the notifier needs.
type Stops interface {
	StopsFor(agentID string) ([]domain.Stop, error)
	ClaimNotification(ctx context.Context, agentID, stopID string) (bool, error)
}

type NearbyNotification struct {
	StopID         string
	AgentID        string
	DistanceMeters float64
	Phone          string
	Address        string
}

// Result of one proximity check. MissingCoordinates lists assigned stops
// that were skipped because they were never geocoded.
type Result struct {
	Notifications      []NearbyNotification
	MissingCoordinates []string
}

type Notifier struct {
	Stops        Stops
	RadiusMeters float64
}

func NewNotifier(stops Stops, radiusMeters float64) *Notifier {
	if radiusMeters <= 0 {
		radiusMeters = DefaultRadiusMeters
	}
	return &Notifier{Stops: stops, RadiusMeters: radiusMeters}
}

// Check compares pos against every unnotified, geocoded stop the agent owns.
// Each stop inside the radius fires at most once per assignment; the claim
// is made in the store so concurrent checks cannot both fire.
func (n *Notifier) Check(ctx context.Context, agentID string, pos domain.Coordinates) (Result, error) {
	stops, err := n.Stops.StopsFor(agentID)
	if err != nil {
		return Result{}, fmt.Errorf("proximity check for agent %s: %w", agentID, err)
	}

	radius := n.RadiusMeters
	if radius <= 0 {
		radius = DefaultRadiusMeters
	}

	var res Result
	for _, s := range stops {
		if s.Location == nil {
			res.MissingCoordinates = append(res.MissingCoordinates, s.ID)
			continue
		}
		if s.Notified {
			continue
		}

		d := geo.DistanceMeters(pos, *s.Location)
		if d > radius {
			continue
		}

		claimed, err := n.Stops.ClaimNotification(ctx, agentID, s.ID)
		if err != nil {
			return res, fmt.Errorf("proximity check for agent %s: %w", agentID, err)
		}
		if !claimed {
			continue
		}

		res.Notifications = append(res.Notifications, NearbyNotification{
			StopID:         s.ID,
			AgentID:        agentID,
			DistanceMeters: d,
			Phone:          s.Phone,
			Address:        s.Address,
		})
	}
	return res, nil
}
