package tracking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pharmacy-delivery-service/internal/domain"
	"pharmacy-delivery-service/internal/geo"
)

func fixAt(lat, lng float64, sec int) Fix {
	return Fix{Lat: lat, Lng: lng, Timestamp: time.Date(2026, 1, 1, 8, 0, sec, 0, time.UTC)}
}

func TestTrackerObserveBearingFromPreviousFixOnly(t *testing.T) {
	fixes := []Fix{
		fixAt(33.4480, -112.0740, 0),
		fixAt(33.4490, -112.0740, 5),  // north
		fixAt(33.4490, -112.0730, 10), // east
		fixAt(33.4480, -112.0730, 15), // south
		fixAt(33.4480, -112.0740, 20), // west
		fixAt(33.4480, -112.0740, 25), // stationary
	}

	tr := NewTracker("agent-1")
	events := make([]LocationEvent, 0, len(fixes))
	for _, f := range fixes {
		evt, err := tr.Observe(f)
		require.NoError(t, err)
		events = append(events, evt)
	}

	require.Len(t, events, len(fixes))
	assert.Equal(t, 0.0, events[0].Bearing, "first fix has no direction")

	for i := 1; i < len(fixes); i++ {
		want := geo.BearingDegrees(fixes[i-1].Coordinates(), fixes[i].Coordinates())
		assert.Equal(t, want, events[i].Bearing, "event %d", i)
		assert.Equal(t, "agent-1", events[i].AgentID)
		assert.Equal(t, fixes[i].Timestamp, events[i].Timestamp)
	}

	assert.InDelta(t, 0, events[1].Bearing, 0.5)
	assert.InDelta(t, 90, events[2].Bearing, 0.5)
	assert.InDelta(t, 180, events[3].Bearing, 0.5)
	assert.InDelta(t, 270, events[4].Bearing, 0.5)
	assert.Equal(t, 0.0, events[5].Bearing)
}

func TestTrackerObserveRejectsInvalidFixAndKeepsPrevious(t *testing.T) {
	tr := NewTracker("agent-1")

	_, err := tr.Observe(fixAt(10, 10, 0))
	require.NoError(t, err)

	_, err = tr.Observe(fixAt(95, 10, 1))
	require.ErrorIs(t, err, domain.ErrValidation)

	evt, err := tr.Observe(fixAt(11, 10, 2))
	require.NoError(t, err)
	assert.InDelta(t, 0, evt.Bearing, 1e-9, "bearing must come from the last valid fix")
}

func TestTrackerResetStartsOver(t *testing.T) {
	tr := NewTracker("agent-1")
	_, _ = tr.Observe(fixAt(10, 10, 0))
	tr.Reset()

	evt, err := tr.Observe(fixAt(10, 11, 1))
	require.NoError(t, err)
	assert.Equal(t, 0.0, evt.Bearing)
}

func TestTrackerRunEmitsInOrderThenSurfacesLocationUnavailable(t *testing.T) {
	defer goleak.VerifyNone(t)

	fixes := make(chan Fix, 3)
	errs := make(chan error, 1)
	fixes <- fixAt(1, 1, 0)
	fixes <- fixAt(1.001, 1, 1)
	fixes <- fixAt(1.001, 1.001, 2)

	var got []LocationEvent
	emit := func(ctx context.Context, evt LocationEvent) error {
		got = append(got, evt)
		if len(got) == 3 {
			errs <- errors.New("permission denied")
		}
		return nil
	}

	err := NewTracker("agent-1").Run(context.Background(), ChanSource{Fixes: fixes, Errs: errs}, emit)
	require.ErrorIs(t, err, domain.ErrLocationUnavailable)
	assert.Contains(t, err.Error(), "permission denied")

	require.Len(t, got, 3)
	assert.Equal(t, 0.0, got[0].Bearing)
	assert.Equal(t, fixAt(1.001, 1.001, 2).Timestamp, got[2].Timestamp)
}

func TestTrackerRunClosedStreamIsLocationUnavailable(t *testing.T) {
	fixes := make(chan Fix)
	close(fixes)

	err := NewTracker("agent-1").Run(context.Background(), ChanSource{Fixes: fixes}, nil)
	assert.ErrorIs(t, err, domain.ErrLocationUnavailable)
}

func TestTrackerRunSkipsInvalidFixes(t *testing.T) {
	fixes := make(chan Fix, 3)
	fixes <- fixAt(1, 1, 0)
	fixes <- fixAt(1, 500, 1)
	fixes <- fixAt(2, 1, 2)
	close(fixes)

	var got []LocationEvent
	err := NewTracker("agent-1").Run(context.Background(), ChanSource{Fixes: fixes}, func(_ context.Context, evt LocationEvent) error {
		got = append(got, evt)
		return nil
	})
	require.ErrorIs(t, err, domain.ErrLocationUnavailable)
	require.Len(t, got, 2)
	assert.InDelta(t, 0, got[1].Bearing, 1e-9)
}

func TestTrackerRunStopsOnEmitError(t *testing.T) {
	fixes := make(chan Fix, 2)
	fixes <- fixAt(1, 1, 0)
	fixes <- fixAt(2, 1, 1)

	calls := 0
	err := NewTracker("agent-1").Run(context.Background(), ChanSource{Fixes: fixes}, func(context.Context, LocationEvent) error {
		calls++
		return domain.ErrAgentNotActive
	})
	require.ErrorIs(t, err, domain.ErrAgentNotActive)
	assert.Equal(t, 1, calls)
}

func TestTrackerRunCancelledDeliversNoBufferedFixes(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fixes := make(chan Fix, 4)
	for i := 0; i < 4; i++ {
		fixes <- fixAt(1, float64(i), i)
	}

	var emitted atomic.Int32
	err := NewTracker("agent-1").Run(ctx, ChanSource{Fixes: fixes}, func(context.Context, LocationEvent) error {
		emitted.Add(1)
		return nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, emitted.Load())
}

func TestTrackerRunCancelWhileBlocked(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	fixes := make(chan Fix)
	seen := make(chan struct{}, 1)
	done := make(chan error, 1)

	go func() {
		done <- NewTracker("agent-1").Run(ctx, ChanSource{Fixes: fixes}, func(context.Context, LocationEvent) error {
			seen <- struct{}{}
			return nil
		})
	}()

	fixes <- fixAt(1, 1, 0)
	<-seen
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("tracker did not stop after cancellation")
	}
}

func TestTrackerHandleSerializesPerAgent(t *testing.T) {
	tr := NewTracker("agent-1")

	var inFlight, maxInFlight atomic.Int32
	emit := func(context.Context, LocationEvent) error {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := tr.Handle(context.Background(), fixAt(1, float64(i)/100, i), emit)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestRegistryOneTrackerPerAgent(t *testing.T) {
	r := NewRegistry()

	a := r.Tracker("a")
	assert.Same(t, a, r.Tracker("a"))
	assert.NotSame(t, a, r.Tracker("b"))
	assert.Equal(t, 2, r.Len())

	_, err := a.Observe(fixAt(1, 1, 0))
	require.NoError(t, err)
	evt, err := r.Tracker("b").Observe(fixAt(1, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, 0.0, evt.Bearing, "agents must not share previous fixes")

	r.Forget("a")
	assert.NotSame(t, a, r.Tracker("a"))
}

func TestTrackerHandleCancelledLeavesPreviousFixUntouched(t *testing.T) {
	tr := NewTracker("agent-1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	emitted := false
	_, err := tr.Handle(ctx, fixAt(1, 1, 0), func(context.Context, LocationEvent) error {
		emitted = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, emitted)

	evt, err := tr.Observe(fixAt(1.001, 1, 5))
	require.NoError(t, err)
	assert.Equal(t, 0.0, evt.Bearing, "a cancelled fix must not seed the bearing")
}

func TestRegistryForgetCancelsActiveWatch(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := NewRegistry()
	ctx, tr, release := r.Watch(context.Background(), "a")
	defer release()
	assert.Same(t, tr, r.Tracker("a"))
	assert.True(t, r.Watching("a"))

	fixes := make(chan Fix)
	done := make(chan error, 1)
	go func() {
		done <- tr.Run(ctx, ChanSource{Fixes: fixes}, nil)
	}()

	r.Forget("a")

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("watch was not cancelled by Forget")
	}
	assert.False(t, r.Watching("a"))
	assert.Equal(t, 0, r.Len())
}

func TestRegistryNewerWatchReplacesOlder(t *testing.T) {
	r := NewRegistry()

	first, _, releaseFirst := r.Watch(context.Background(), "a")
	second, _, releaseSecond := r.Watch(context.Background(), "a")
	defer releaseSecond()

	assert.ErrorIs(t, first.Err(), context.Canceled)
	assert.NoError(t, second.Err())

	// Releasing the replaced watch must not drop the newer one.
	releaseFirst()
	assert.True(t, r.Watching("a"))
	assert.NoError(t, second.Err())

	other, _, releaseOther := r.Watch(context.Background(), "b")
	defer releaseOther()
	r.Forget("a")
	assert.ErrorIs(t, second.Err(), context.Canceled)
	assert.NoError(t, other.Err(), "forgetting one agent must not cancel another")
}
