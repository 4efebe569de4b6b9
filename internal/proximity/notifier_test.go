package proximity

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy-delivery-service/internal/assignment"
	"pharmacy-delivery-service/internal/domain"
	"pharmacy-delivery-service/internal/geo"
)

const metersPerDegreeLat = geo.EarthRadiusMeters * math.Pi / 180

var pharmacy = domain.Coordinates{Lat: 33.4484, Lng: -112.0740}

// north returns a point d meters due north of pharmacy.
func north(d float64) domain.Coordinates {
	return domain.Coordinates{Lat: pharmacy.Lat + d/metersPerDegreeLat, Lng: pharmacy.Lng}
}

func newStoreWithStops(t *testing.T, stops ...domain.Stop) *assignment.Store {
	t.Helper()
	ctx := context.Background()

	s := assignment.NewStore(nil)
	_, err := s.AddAgent(ctx, domain.Agent{ID: "a1", Status: domain.AgentInRoute})
	require.NoError(t, err)
	for _, st := range stops {
		_, err := s.AddStop(ctx, st)
		require.NoError(t, err)
		_, err = s.Assign(ctx, st.ID, "a1")
		require.NoError(t, err)
	}
	return s
}

func TestCheckFiresOnceWhenCrossingRadius(t *testing.T) {
	store := newStoreWithStops(t, domain.Stop{ID: "s1", Address: "1 Main", Phone: "+15550001", Location: pharmacy.Ptr()})
	n := NewNotifier(store, DefaultRadiusMeters)
	ctx := context.Background()

	require.InDelta(t, 301, geo.DistanceMeters(north(301), pharmacy), 0.01)

	res, err := n.Check(ctx, "a1", north(301))
	require.NoError(t, err)
	assert.Empty(t, res.Notifications, "301 m is outside the radius")

	res, err = n.Check(ctx, "a1", north(299))
	require.NoError(t, err)
	require.Len(t, res.Notifications, 1)
	got := res.Notifications[0]
	assert.Equal(t, "s1", got.StopID)
	assert.Equal(t, "a1", got.AgentID)
	assert.Equal(t, "+15550001", got.Phone)
	assert.InDelta(t, 299, got.DistanceMeters, 0.01)

	res, err = n.Check(ctx, "a1", north(100))
	require.NoError(t, err)
	assert.Empty(t, res.Notifications)

	// Leaving and re-entering does not fire again under the same assignment.
	_, err = n.Check(ctx, "a1", north(1000))
	require.NoError(t, err)
	res, err = n.Check(ctx, "a1", north(50))
	require.NoError(t, err)
	assert.Empty(t, res.Notifications)
}

func TestCheckTwoStopsOnlyInRadiusFires(t *testing.T) {
	store := newStoreWithStops(t,
		domain.Stop{ID: "near", Address: "near", Location: north(200).Ptr()},
		domain.Stop{ID: "far", Address: "far", Location: north(2000).Ptr()},
	)
	n := NewNotifier(store, 0)
	ctx := context.Background()

	res, err := n.Check(ctx, "a1", pharmacy)
	require.NoError(t, err)
	require.Len(t, res.Notifications, 1)
	assert.Equal(t, "near", res.Notifications[0].StopID)

	res, err = n.Check(ctx, "a1", pharmacy)
	require.NoError(t, err)
	assert.Empty(t, res.Notifications)

	far, err := store.Stop("far")
	require.NoError(t, err)
	assert.False(t, far.Notified)
}

func TestCheckSeveralStopsFireInOneUpdate(t *testing.T) {
	store := newStoreWithStops(t,
		domain.Stop{ID: "s1", Address: "a", Location: north(10).Ptr()},
		domain.Stop{ID: "s2", Address: "b", Location: north(-120).Ptr()},
	)

	res, err := NewNotifier(store, 300).Check(context.Background(), "a1", pharmacy)
	require.NoError(t, err)
	require.Len(t, res.Notifications, 2)
	assert.Equal(t, "s1", res.Notifications[0].StopID)
	assert.Equal(t, "s2", res.Notifications[1].StopID)
}

func TestCheckSkipsStopsWithoutCoordinates(t *testing.T) {
	store := newStoreWithStops(t,
		domain.Stop{ID: "nogeo", Address: "unknown"},
		domain.Stop{ID: "s1", Address: "a", Location: pharmacy.Ptr()},
	)
	n := NewNotifier(store, 300)

	for i := 0; i < 2; i++ {
		res, err := n.Check(context.Background(), "a1", pharmacy)
		require.NoError(t, err)
		assert.Equal(t, []string{"nogeo"}, res.MissingCoordinates)
	}

	stop, err := store.Stop("nogeo")
	require.NoError(t, err)
	assert.False(t, stop.Notified)
}

func TestCheckReassignmentRearmsStop(t *testing.T) {
	store := newStoreWithStops(t, domain.Stop{ID: "s1", Address: "a", Location: pharmacy.Ptr()})
	ctx := context.Background()
	_, err := store.AddAgent(ctx, domain.Agent{ID: "a2"})
	require.NoError(t, err)

	n := NewNotifier(store, 300)
	res, err := n.Check(ctx, "a1", pharmacy)
	require.NoError(t, err)
	require.Len(t, res.Notifications, 1)

	_, err = store.Assign(ctx, "s1", "a2")
	require.NoError(t, err)

	res, err = n.Check(ctx, "a2", pharmacy)
	require.NoError(t, err)
	require.Len(t, res.Notifications, 1)
	assert.Equal(t, "a2", res.Notifications[0].AgentID)
}

func TestCheckUnknownAgent(t *testing.T) {
	n := NewNotifier(assignment.NewStore(nil), 300)
	_, err := n.Check(context.Background(), "ghost", pharmacy)
	assert.ErrorIs(t, err, domain.ErrAgentNotFound)
}

type failingClaims struct {
	stops []domain.Stop
}

func (f failingClaims) StopsFor(string) ([]domain.Stop, error) { return f.stops, nil }

func (f failingClaims) ClaimNotification(context.Context, string, string) (bool, error) {
	return false, errors.New("store unavailable")
}

func TestCheckClaimFailureFiresNothing(t *testing.T) {
	n := NewNotifier(failingClaims{stops: []domain.Stop{{ID: "s1", Location: pharmacy.Ptr()}}}, 300)

	res, err := n.Check(context.Background(), "a1", pharmacy)
	require.Error(t, err)
	assert.Empty(t, res.Notifications)
}
