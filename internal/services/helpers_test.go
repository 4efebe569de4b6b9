package services

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"pharmacy-delivery-service/internal/assignment"
	"pharmacy-delivery-service/internal/domain"
	"pharmacy-delivery-service/internal/events"
	"pharmacy-delivery-service/internal/geo"
	"pharmacy-delivery-service/internal/ports"
)

const metersPerDegreeLat = geo.EarthRadiusMeters * math.Pi / 180

var pharmacy = domain.Coordinates{Lat: 33.4484, Lng: -112.0740}

func north(d float64) domain.Coordinates {
	return domain.Coordinates{Lat: pharmacy.Lat + d/metersPerDegreeLat, Lng: pharmacy.Lng}
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []ports.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg ports.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return f.err
}

func (f *fakeSender) sent() []ports.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.Message(nil), f.msgs...)
}

// drain returns whatever has been published to ch so far.
func drain(ch chan events.Event) []events.Event {
	var out []events.Event
	for {
		select {
		case evt := <-ch:
			out = append(out, evt)
		default:
			return out
		}
	}
}

func eventTypes(evts []events.Event) []events.Type {
	out := make([]events.Type, 0, len(evts))
	for _, e := range evts {
		out = append(out, e.Type)
	}
	return out
}

func subscribe(t *testing.T, b events.Broker, topic string) chan events.Event {
	t.Helper()
	ch, err := b.Subscribe(context.Background(), topic)
	require.NoError(t, err)
	t.Cleanup(func() { b.Unsubscribe(topic, ch) })
	return ch
}

func newStore(t *testing.T) *assignment.Store {
	t.Helper()
	s := assignment.NewStore(nil)
	_, err := s.AddAgent(context.Background(), domain.Agent{ID: "a1", Name: "Ana", Status: domain.AgentInRoute})
	require.NoError(t, err)
	return s
}

func addStop(t *testing.T, s *assignment.Store, stop domain.Stop, agentID string) {
	t.Helper()
	ctx := context.Background()
	_, err := s.AddStop(ctx, stop)
	require.NoError(t, err)
	if agentID != "" {
		_, err = s.Assign(ctx, stop.ID, agentID)
		require.NoError(t, err)
	}
}

func stopIDs(stops []domain.Stop) []string {
	out := make([]string, 0, len(stops))
	for _, s := range stops {
		out = append(out, s.ID)
	}
	return out
}
