package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"pharmacy-delivery-service/internal/assignment"
	"pharmacy-delivery-service/internal/domain"
	"pharmacy-delivery-service/internal/events"
	"pharmacy-delivery-service/internal/platform/metrics"
	"pharmacy-delivery-service/internal/platform/obs"
	"pharmacy-delivery-service/internal/ports"
	"pharmacy-delivery-service/internal/proximity"
	"pharmacy-delivery-service/internal/tracking"
)

// LocationService turns location events into persisted positions, live map
// updates, and one-time proximity notifications.
type LocationService struct {
	Store    *assignment.Store
	Notifier *proximity.Notifier
	Trackers *tracking.Registry
	Broker   events.Broker
	Sender   ports.NotificationSender
}

// Ingest runs one pushed fix through the agent's tracker.
func (s *LocationService) Ingest(ctx context.Context, agentID string, fix tracking.Fix) (tracking.LocationEvent, proximity.Result, error) {
	var res proximity.Result
	evt, err := s.Trackers.Tracker(agentID).Handle(ctx, fix, func(ctx context.Context, evt tracking.LocationEvent) error {
		r, err := s.HandleEvent(ctx, evt)
		res = r
		return err
	})
	if errors.Is(err, domain.ErrValidation) {
		metrics.LocationEvents.WithLabelValues("invalid").Inc()
	}
	return evt, res, err
}

// Track consumes a device's fix stream until ctx ends or the stream fails.
// Taking the agent offline, or opening a newer stream for it, cancels this
// one with context.Canceled.
func (s *LocationService) Track(ctx context.Context, agentID string, src tracking.FixSource) error {
	ctx, tr, release := s.Trackers.Watch(ctx, agentID)
	defer release()

	return tr.Run(ctx, src, func(ctx context.Context, evt tracking.LocationEvent) error {
		_, err := s.HandleEvent(ctx, evt)
		if err == nil || errors.Is(err, domain.ErrAgentNotActive) || errors.Is(err, domain.ErrNotFound) {
			return err
		}
		log.Printf("req_id=%s op=location.Track agent_id=%s event not applied: %v", obs.RequestID(ctx), agentID, err)
		return nil
	})
}

// HandleEvent records the position (rejected unless the agent is in_route),
// publishes it, then runs the proximity check for the agent's stops.
func (s *LocationService) HandleEvent(ctx context.Context, evt tracking.LocationEvent) (_ proximity.Result, err error) {
	defer obs.Time(ctx, "location.HandleEvent")(&err)

	at := evt.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}

	if _, err := s.Store.RecordPosition(ctx, evt.AgentID, evt.Position, evt.Bearing, at); err != nil {
		metrics.LocationEvents.WithLabelValues("rejected").Inc()
		return proximity.Result{}, err
	}
	metrics.LocationEvents.WithLabelValues("accepted").Inc()

	publish(ctx, s.Broker, events.Event{
		Type:     events.AgentLocation,
		AgentID:  evt.AgentID,
		Position: &events.Position{Lat: evt.Position.Lat, Lng: evt.Position.Lng},
		Bearing:  evt.Bearing,
		At:       at,
	}, events.TopicMap, events.AgentTopic(evt.AgentID))

	res, err := s.Notifier.Check(ctx, evt.AgentID, evt.Position)
	if err != nil {
		return res, err
	}

	for _, n := range res.Notifications {
		publish(ctx, s.Broker, events.Event{
			Type:           events.StopNearby,
			AgentID:        n.AgentID,
			StopID:         n.StopID,
			DistanceMeters: n.DistanceMeters,
			At:             at,
		}, events.TopicMap, events.AgentTopic(n.AgentID))

		sendBestEffort(ctx, s.Sender, ports.Message{
			Phone:    n.Phone,
			Template: ports.TemplateAgentNearby,
			Data: map[string]string{
				"stop_id":         n.StopID,
				"agent_id":        n.AgentID,
				"address":         n.Address,
				"distance_meters": strconv.FormatFloat(n.DistanceMeters, 'f', 0, 64),
			},
		})
	}

	if len(res.MissingCoordinates) > 0 {
		metrics.ProximityNotifications.WithLabelValues("missing_coordinates").Add(float64(len(res.MissingCoordinates)))
		log.Printf("req_id=%s op=location.HandleEvent agent_id=%s missing_coordinates=%v", obs.RequestID(ctx), evt.AgentID, res.MissingCoordinates)
	}
	return res, nil
}

// SetStatus changes the agent's route state. Going offline drops the
// tracker; starting a route clears any fix left from an earlier shift.
func (s *LocationService) SetStatus(ctx context.Context, agentID string, status domain.AgentStatus) (domain.Agent, error) {
	agent, err := s.Store.SetAgentStatus(ctx, agentID, status)
	if err != nil {
		return domain.Agent{}, err
	}

	switch status {
	case domain.AgentOffline:
		s.Trackers.Forget(agentID)
	case domain.AgentInRoute:
		s.Trackers.Tracker(agentID).Reset()
	}

	publish(ctx, s.Broker, events.Event{
		Type:    events.AgentStatus,
		AgentID: agentID,
		Status:  string(status),
		At:      time.Now().UTC(),
	}, events.TopicMap, events.AgentTopic(agentID))
	return agent, nil
}

// Stop takes the agent offline. Fixes still in flight are rejected by the store.
func (s *LocationService) Stop(ctx context.Context, agentID string) error {
	if _, err := s.SetStatus(ctx, agentID, domain.AgentOffline); err != nil {
		return fmt.Errorf("stop tracking agent %s: %w", agentID, err)
	}
	return nil
}

func publish(ctx context.Context, b events.Broker, evt events.Event, topics ...string) {
	if b == nil {
		return
	}
	if err := events.PublishAll(ctx, b, evt, topics...); err != nil {
		log.Printf("req_id=%s op=events.Publish type=%s publish failed: %v", obs.RequestID(ctx), evt.Type, err)
	}
}

// sendBestEffort delivers a customer message. Failures are logged and
// counted, never returned.
func sendBestEffort(ctx context.Context, sender ports.NotificationSender, msg ports.Message) {
	if sender == nil {
		return
	}
	if msg.Phone == "" {
		metrics.ProximityNotifications.WithLabelValues("no_phone").Inc()
		log.Printf("req_id=%s op=notify template=%s skipped: no phone for stop %s", obs.RequestID(ctx), msg.Template, msg.Data["stop_id"])
		return
	}
	if err := sender.Send(ctx, msg); err != nil {
		metrics.ProximityNotifications.WithLabelValues("failed").Inc()
		log.Printf("req_id=%s op=notify template=%s send failed: %v", obs.RequestID(ctx), msg.Template, err)
		return
	}
	metrics.ProximityNotifications.WithLabelValues("sent").Inc()
}
