// Package events fans out live map updates to subscribers, in process or
// across instances through Redis pub/sub.
package events

import (
	"context"
	"time"
)

type Type string

const (
	AgentLocation  Type = "agent.location"
	AgentStatus    Type = "agent.status"
	StopNearby     Type = "stop.nearby"
	StopAssigned   Type = "stop.assigned"
	StopStatus     Type = "stop.status"
	RouteOptimized Type = "route.optimized"
)

// TopicMap carries every event for the dispatcher's map view.
const TopicMap = "map"

// AgentTopic carries the events of a single agent.
func AgentTopic(agentID string) string { return "agent:" + agentID }

type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Event struct {
	Type           Type      `json:"type"`
	AgentID        string    `json:"agent_id,omitempty"`
	StopID         string    `json:"stop_id,omitempty"`
	Position       *Position `json:"position,omitempty"`
	Bearing        float64   `json:"bearing,omitempty"`
	DistanceMeters float64   `json:"distance_meters,omitempty"`
	Status         string    `json:"status,omitempty"`
	OrderedIDs     []string  `json:"ordered_ids,omitempty"`
	At             time.Time `json:"at"`
}

// Broker delivers events to topic subscribers. Delivery is best effort:
// a subscriber that falls behind misses events rather than blocking publishers.
type Broker interface {
	Subscribe(ctx context.Context, topic string) (chan Event, error)
	// Unsubscribe releases the subscription and closes ch.
	Unsubscribe(topic string, ch chan Event)
	Publish(ctx context.Context, topic string, evt Event) error
	Close() error
}

// PublishAll publishes evt on each topic and returns the first error.
func PublishAll(ctx context.Context, b Broker, evt Event, topics ...string) error {
	var first error
	for _, t := range topics {
		if err := b.Publish(ctx, t, evt); err != nil && first == nil {
			first = err
		}
	}
	return first
}
