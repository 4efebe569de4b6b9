package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger is anything the readiness check can reach: the database, the broker.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	Checks map[string]Pinger
}

// Live is a minimal liveness check.
func Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready pings every dependency and reports the ones that failed.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	res := map[string]string{"status": "ok"}
	status := http.StatusOK
	for name, p := range h.Checks {
		if err := p.PingContext(ctx); err != nil {
			res[name] = err.Error()
			res["status"] = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		res[name] = "ok"
	}
	writeJSON(w, r, status, res)
}

// PingFunc adapts a plain ping function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }
