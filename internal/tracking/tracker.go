// Package tracking turns raw device fixes into location events.
//
// A Tracker holds the previous fix for exactly one agent and nothing else.
// Bearing is derived from that previous fix only, so events for one agent
// must be processed in arrival order; Handle and Run serialize per agent.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"pharmacy-delivery-service/internal/domain"
	"pharmacy-delivery-service/internal/geo"
)

// Fix is one raw position reported by a device's location service.
type Fix struct {
	Lat       float64
	Lng       float64
	Timestamp time.Time
}

func (f Fix) Coordinates() domain.Coordinates { return domain.Coordinates{Lat: f.Lat, Lng: f.Lng} }

// LocationEvent is emitted once per accepted fix.
type LocationEvent struct {
	AgentID   string
	Position  domain.Coordinates
	Bearing   float64
	Timestamp time.Time
}

// EmitFunc receives location events. It runs while the tracker's lock is
// held, so the next fix for the same agent waits until it returns.
type EmitFunc func(ctx context.Context, evt LocationEvent) error

// FixSource is a blocking watch subscription on a device's location
// service. Next blocks until a fix arrives, the source fails, or ctx is done.
type FixSource interface {
	Next(ctx context.Context) (Fix, error)
}

type Tracker struct {
	agentID string

	mu   sync.Mutex
	prev *Fix
}

func NewTracker(agentID string) *Tracker {
	return &Tracker{agentID: agentID}
}

func (t *Tracker) AgentID() string { return t.agentID }

// Observe converts a fix into a location event and remembers it as the
// previous fix. The first fix has bearing 0.
func (t *Tracker) Observe(fix Fix) (LocationEvent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.observeLocked(fix)
}

func (t *Tracker) observeLocked(fix Fix) (LocationEvent, error) {
	cur := fix.Coordinates()
	if err := cur.Validate(); err != nil {
		return LocationEvent{}, fmt.Errorf("observe fix for agent %s: %w", t.agentID, err)
	}

	bearing := 0.0
	if t.prev != nil {
		bearing = geo.BearingDegrees(t.prev.Coordinates(), cur)
	}

	stored := fix
	t.prev = &stored

	return LocationEvent{
		AgentID:   t.agentID,
		Position:  cur,
		Bearing:   bearing,
		Timestamp: fix.Timestamp,
	}, nil
}

// Handle observes a fix and hands the resulting event to emit without
// releasing the lock in between, keeping per-agent processing in order.
func (t *Tracker) Handle(ctx context.Context, fix Fix, emit EmitFunc) (LocationEvent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// A fix that arrives after cancellation must not become the previous fix.
	if err := ctx.Err(); err != nil {
		return LocationEvent{}, err
	}

	evt, err := t.observeLocked(fix)
	if err != nil {
		return LocationEvent{}, err
	}

	if emit != nil {
		if err := emit(ctx, evt); err != nil {
			return evt, err
		}
	}
	return evt, nil
}

// Run consumes src until ctx is cancelled or the source fails.
//
// A source failure is reported as ErrLocationUnavailable and the tracker
// stops; it never retries on its own. Cancellation returns ctx.Err() and
// no fix received after cancellation is emitted. Invalid fixes are logged
// and skipped. An error from emit stops the loop and is returned as is.
func (t *Tracker) Run(ctx context.Context, src FixSource, emit EmitFunc) error {
	for {
		fix, err := src.Next(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return fmt.Errorf("track agent %s: %w: %v", t.agentID, domain.ErrLocationUnavailable, err)
		}

		if _, err := t.Handle(ctx, fix, emit); err != nil {
			if errors.Is(err, domain.ErrValidation) {
				log.Printf("agent_id=%s op=tracker.Run skipped invalid fix: %v", t.agentID, err)
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
	}
}

// Reset forgets the previous fix so the next one starts with bearing 0.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.prev = nil
	t.mu.Unlock()
}
