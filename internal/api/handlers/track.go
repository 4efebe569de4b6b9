package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"pharmacy-delivery-service/internal/api/dto"
	"pharmacy-delivery-service/internal/assignment"
	"pharmacy-delivery-service/internal/domain"
	"pharmacy-delivery-service/internal/platform/obs"
	"pharmacy-delivery-service/internal/services"
	"pharmacy-delivery-service/internal/tracking"
)

// TrackHandler accepts a device's fix stream over a WebSocket. Each text
// frame is one dto.FixRequest. The stream ends with an error frame when the
// device stops delivering fixes or the agent leaves its route.
type TrackHandler struct {
	Store    *assignment.Store
	Location *services.LocationService
}

func (h *TrackHandler) Serve(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")
	if _, err := h.Store.Agent(agentID); err != nil {
		writeDomainError(w, r, "track.Serve", err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("req_id=%s op=track.Serve agent_id=%s upgrade failed: %v", obs.RequestID(r.Context()), agentID, err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	fixes := make(chan tracking.Fix)
	errs := make(chan error, 1)
	keepAlive(conn)
	go readFixes(ctx, conn, fixes, errs)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ping(conn); err != nil {
					return
				}
			}
		}
	}()

	err = h.Location.Track(ctx, agentID, tracking.ChanSource{Fixes: fixes, Errs: errs})
	cancel()
	wg.Wait()

	log.Printf("req_id=%s op=track.Serve agent_id=%s stream ended: %v", obs.RequestID(r.Context()), agentID, err)
	switch {
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		return
	case errors.Is(err, context.Canceled):
		closeWith(conn, websocket.CloseNormalClosure, dto.ErrorResponse{Error: "tracking stopped"}, "tracking stopped")
	case errors.Is(err, domain.ErrLocationUnavailable):
		closeWith(conn, websocket.CloseNormalClosure, dto.ErrorResponse{Error: err.Error()}, "location unavailable")
	case errors.Is(err, domain.ErrAgentNotActive):
		closeWith(conn, websocket.ClosePolicyViolation, dto.ErrorResponse{Error: err.Error()}, "agent not in route")
	default:
		closeWith(conn, websocket.CloseInternalServerErr, dto.ErrorResponse{Error: "internal server error"}, "")
	}
}

// readFixes decodes frames until the connection fails. Malformed frames are
// skipped; the read error itself ends the subscription.
func readFixes(ctx context.Context, conn *websocket.Conn, fixes chan<- tracking.Fix, errs chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			errs <- err
			return
		}

		var req dto.FixRequest
		if err := json.Unmarshal(data, &req); err != nil {
			log.Printf("op=track.readFixes skipping malformed frame: %v", err)
			continue
		}

		select {
		case fixes <- req.ToFix():
		case <-ctx.Done():
			return
		}
	}
}
