package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry served at /metrics.
	Registry = prometheus.NewRegistry()

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// OperationDuration is fed by obs.Time for store and upstream calls.
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "operation_duration_seconds", Help: "Duration of internal operations in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"op", "outcome"},
	)

	LocationEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "location_events_total", Help: "Location events by outcome."},
		[]string{"outcome"},
	)

	// ProximityNotifications counts nearby notifications by delivery outcome,
	// plus stops skipped for missing coordinates.
	ProximityNotifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "proximity_notifications_total", Help: "Proximity notifications by outcome."},
		[]string{"outcome"},
	)
)

var regOnce sync.Once

// RegisterDefault registers all collectors on Registry. Safe to call more than once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(OperationDuration)
		Registry.MustRegister(LocationEvents)
		Registry.MustRegister(ProximityNotifications)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}
