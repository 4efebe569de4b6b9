package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pharmacy-delivery-service/internal/api/handlers"
	"pharmacy-delivery-service/internal/assignment"
	"pharmacy-delivery-service/internal/events"
	"pharmacy-delivery-service/internal/platform/metrics"
	"pharmacy-delivery-service/internal/ports"
	"pharmacy-delivery-service/internal/services"
)

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	Store    *assignment.Store
	Location *services.LocationService
	Planner  *services.RoutePlanner
	Dispatch *services.DispatchService
	Reverse  ports.ReverseGeocoder
	Broker   events.Broker
	// Readiness checks by name, e.g. "db", "broker".
	Checks map[string]handlers.Pinger
}

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// Handlers stay unaware of concrete adapters.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)
	r.Use(middleware.Recoverer)

	stops := &handlers.StopHandler{Store: d.Store, Dispatch: d.Dispatch}
	agents := &handlers.AgentHandler{Store: d.Store, Location: d.Location}
	track := &handlers.TrackHandler{Store: d.Store, Location: d.Location}
	optimize := &handlers.OptimizeHandler{Planner: d.Planner}
	geocode := &handlers.GeocodeHandler{Reverse: d.Reverse}
	live := &handlers.LiveHandler{Broker: d.Broker}
	health := &handlers.HealthHandler{Checks: d.Checks}

	r.Get("/health", handlers.Live)
	r.Get("/ready", health.Ready)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	r.Route("/stops", func(r chi.Router) {
		r.Post("/", stops.Create)
		r.Get("/pending", stops.ListPending)
		r.Put("/pending/order", stops.ReorderPending)
		r.Get("/{id}", stops.Get)
		r.Post("/{id}/assign", stops.Assign)
		r.Post("/{id}/unassign", stops.Unassign)
		r.Post("/{id}/complete", stops.Complete)
	})

	r.Route("/agents", func(r chi.Router) {
		r.Post("/", agents.Create)
		r.Get("/", agents.List)
		r.Get("/{id}", agents.Get)
		r.Put("/{id}/status", agents.SetStatus)
		r.Get("/{id}/stops", agents.Stops)
		r.Put("/{id}/stops/order", agents.ReorderStops)
		r.Post("/{id}/fixes", agents.PushFix)
		r.Get("/{id}/track", track.Serve)
		r.Post("/{id}/optimize", optimize.Agent)
	})

	r.Post("/optimize/pending", optimize.Pending)
	r.Get("/geocode/reverse", geocode.ReverseGeocode)
	r.Get("/live", live.Serve)

	return r
}
