package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy-delivery-service/internal/adapters/routing"
	"pharmacy-delivery-service/internal/api/dto"
	"pharmacy-delivery-service/internal/assignment"
	"pharmacy-delivery-service/internal/domain"
	"pharmacy-delivery-service/internal/events"
	"pharmacy-delivery-service/internal/platform/metrics"
	"pharmacy-delivery-service/internal/proximity"
	"pharmacy-delivery-service/internal/services"
	"pharmacy-delivery-service/internal/tracking"
)

var pharmacy = domain.Coordinates{Lat: 33.4484, Lng: -112.0740}

type testAPI struct {
	store  *assignment.Store
	broker *events.MemoryBroker
	mock   *routing.MockProvider
	h      http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := assignment.NewStore(nil)
	broker := events.NewMemoryBroker()
	t.Cleanup(func() { _ = broker.Close() })

	mock := routing.NewMockProvider(map[string]domain.Coordinates{
		"1 Near St": {Lat: 33.4574, Lng: -112.0740},
		"2 Far St":  {Lat: 33.4754, Lng: -112.0740},
	})

	location := &services.LocationService{
		Store:    store,
		Notifier: proximity.NewNotifier(store, proximity.DefaultRadiusMeters),
		Trackers: tracking.NewRegistry(),
		Broker:   broker,
	}
	h := NewRouter(Deps{
		Store:    store,
		Location: location,
		Planner:  &services.RoutePlanner{Store: store, Geocoder: mock, Optimizer: mock, Broker: broker, Pharmacy: pharmacy},
		Dispatch: &services.DispatchService{Store: store, Broker: broker},
		Reverse:  mock,
		Broker:   broker,
	})
	return &testAPI{store: store, broker: broker, mock: mock, h: h}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	a.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndRequestID(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	a.h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = a.do(t, http.MethodPost, "/health", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.RegisterDefault()
	a := newTestAPI(t)
	a.do(t, http.MethodGet, "/health", "")

	rec := a.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",path="/health",status="200"}`)
}

func TestStopLifecycle(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/stops", `{"id":"s1","address":"1 Near St","phone":"+15550001"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[dto.StopResponse](t, rec)
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, 1, created.Sequence)

	rec = a.do(t, http.MethodPost, "/stops", `{"id":"s1","address":"again"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/stops", `{"id":"s2","address":"x","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodGet, "/stops/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodPost, "/agents", `{"id":"a1","name":"Ana"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "available", decode[dto.AgentResponse](t, rec).Status)

	rec = a.do(t, http.MethodPost, "/stops/s1/assign", `{"agent_id":"a1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "a1", decode[dto.StopResponse](t, rec).AgentID)

	rec = a.do(t, http.MethodPost, "/stops/s1/assign", `{"agent_id":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodGet, "/agents/a1/stops", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[dto.ListStopsResponse](t, rec).Stops, 1)

	rec = a.do(t, http.MethodPost, "/stops/s1/complete", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "delivered", decode[dto.StopResponse](t, rec).Status)

	rec = a.do(t, http.MethodPost, "/stops/s1/unassign", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "closed stops leave route planning")
}

func TestReorderMismatchIsConflict(t *testing.T) {
	a := newTestAPI(t)
	for _, body := range []string{`{"id":"s1","address":"1 Near St"}`, `{"id":"s2","address":"2 Far St"}`} {
		require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/stops", body).Code)
	}

	rec := a.do(t, http.MethodPut, "/stops/pending/order", `{"ids":["s2"]}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodPut, "/stops/pending/order", `{"ids":["s2","s1"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/stops/pending", "")
	stops := decode[dto.ListStopsResponse](t, rec).Stops
	require.Len(t, stops, 2)
	assert.Equal(t, "s2", stops[0].ID)
	assert.Equal(t, 1, stops[0].Sequence)
}

func TestPushFixNotifiesNearbyStop(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()
	_, err := a.store.AddAgent(ctx, domain.Agent{ID: "a1", Status: domain.AgentInRoute})
	require.NoError(t, err)
	_, err = a.store.AddStop(ctx, domain.Stop{ID: "s1", Address: "x", Location: pharmacy.Ptr()})
	require.NoError(t, err)
	_, err = a.store.Assign(ctx, "s1", "a1")
	require.NoError(t, err)

	rec := a.do(t, http.MethodPost, "/agents/a1/fixes", `{"lat":33.4485,"lng":-112.0740,"timestamp":"2026-03-01T09:00:00Z"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	res := decode[dto.FixResponse](t, rec)
	require.Len(t, res.Notifications, 1)
	assert.Equal(t, "s1", res.Notifications[0].StopID)

	rec = a.do(t, http.MethodPost, "/agents/a1/fixes", `{"lat":95,"lng":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/agents/ghost/fixes", `{"lat":1,"lng":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodPut, "/agents/a1/status", `{"status":"offline"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(t, http.MethodPost, "/agents/a1/fixes", `{"lat":33.4485,"lng":-112.0740}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestOptimizePending(t *testing.T) {
	a := newTestAPI(t)
	for _, body := range []string{
		`{"id":"far","address":"2 Far St"}`,
		`{"id":"lost","address":"nowhere"}`,
		`{"id":"near","address":"1 Near St"}`,
	} {
		require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/stops", body).Code)
	}

	rec := a.do(t, http.MethodPost, "/optimize/pending", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	route := decode[dto.RouteResponse](t, rec)
	assert.Equal(t, []string{"near", "far", "lost"}, route.OrderedIDs)
	assert.Equal(t, []string{"lost"}, route.Unassignable)
	assert.Len(t, route.Path, 3)
	assert.NotEmpty(t, route.EncodedPath)
}

func TestOptimizeFailureReportsUnassignable(t *testing.T) {
	a := newTestAPI(t)
	require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/stops", `{"id":"lost","address":"nowhere"}`).Code)

	rec := a.do(t, http.MethodPost, "/optimize/pending", `{"start":{"lat":33.45,"lng":-112.07}}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, []string{"lost"}, decode[dto.ErrorResponse](t, rec).Unassignable)

	rec = a.do(t, http.MethodPost, "/agents/ghost/optimize", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReverseGeocode(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/geocode/reverse?lat=33.4574&lng=-112.0740", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1 Near St", decode[dto.ReverseGeocodeResponse](t, rec).Label)

	rec = a.do(t, http.MethodGet, "/geocode/reverse?lat=abc&lng=1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodGet, "/geocode/reverse?lat=1&lng=1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestTrackStreamFeedsLiveMap(t *testing.T) {
	a := newTestAPI(t)
	_, err := a.store.AddAgent(context.Background(), domain.Agent{ID: "a1", Status: domain.AgentInRoute})
	require.NoError(t, err)

	srv := httptest.NewServer(a.h)
	defer srv.Close()

	live, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/live?agent=a1"), nil)
	require.NoError(t, err)
	defer live.Close()

	device, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/agents/a1/track"), nil)
	require.NoError(t, err)
	defer device.Close()

	require.NoError(t, device.WriteJSON(dto.FixRequest{Lat: 33.4484, Lng: -112.0740}))
	require.NoError(t, device.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, device.WriteJSON(dto.FixRequest{Lat: 33.4494, Lng: -112.0740}))

	require.NoError(t, live.SetReadDeadline(time.Now().Add(2*time.Second)))
	var first, second events.Event
	require.NoError(t, live.ReadJSON(&first))
	require.NoError(t, live.ReadJSON(&second))

	assert.Equal(t, events.AgentLocation, first.Type)
	assert.Equal(t, 0.0, first.Bearing)
	assert.InDelta(t, 0, second.Bearing, 0.5)
	require.NotNil(t, second.Position)
	assert.InDelta(t, 33.4494, second.Position.Lat, 1e-9)
}

func TestTrackRejectsAgentNotInRoute(t *testing.T) {
	a := newTestAPI(t)
	_, err := a.store.AddAgent(context.Background(), domain.Agent{ID: "a1"})
	require.NoError(t, err)

	srv := httptest.NewServer(a.h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/agents/ghost/track")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	device, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/agents/a1/track"), nil)
	require.NoError(t, err)
	defer device.Close()

	require.NoError(t, device.WriteJSON(dto.FixRequest{Lat: 33.4484, Lng: -112.0740}))
	require.NoError(t, device.SetReadDeadline(time.Now().Add(2*time.Second)))

	var frame dto.ErrorResponse
	require.NoError(t, device.ReadJSON(&frame))
	assert.Contains(t, frame.Error, domain.ErrAgentNotActive.Error())

	_, _, err = device.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestTrackStreamClosedWhenAgentGoesOffline(t *testing.T) {
	a := newTestAPI(t)
	_, err := a.store.AddAgent(context.Background(), domain.Agent{ID: "a1", Status: domain.AgentInRoute})
	require.NoError(t, err)

	srv := httptest.NewServer(a.h)
	defer srv.Close()

	device, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/agents/a1/track"), nil)
	require.NoError(t, err)
	defer device.Close()

	require.NoError(t, device.WriteJSON(dto.FixRequest{Lat: 33.4484, Lng: -112.0740}))
	require.Eventually(t, func() bool {
		agent, err := a.store.Agent("a1")
		return err == nil && agent.LastKnownPosition != nil
	}, 2*time.Second, 5*time.Millisecond)

	rec := a.do(t, http.MethodPut, "/agents/a1/status", `{"status":"offline"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.NoError(t, device.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame dto.ErrorResponse
	require.NoError(t, device.ReadJSON(&frame))
	assert.Equal(t, "tracking stopped", frame.Error)

	_, _, err = device.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
