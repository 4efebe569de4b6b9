package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"pharmacy-delivery-service/internal/events"
	"pharmacy-delivery-service/internal/platform/obs"
)

// LiveHandler relays broker events to a map client. ?agent= narrows the
// feed to one agent.
type LiveHandler struct {
	Broker events.Broker
}

func (h *LiveHandler) Serve(w http.ResponseWriter, r *http.Request) {
	topic := events.TopicMap
	if agentID := r.URL.Query().Get("agent"); agentID != "" {
		topic = events.AgentTopic(agentID)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch, err := h.Broker.Subscribe(ctx, topic)
	if err != nil {
		writeDomainError(w, r, "live.Serve", err)
		return
	}
	defer h.Broker.Unsubscribe(topic, ch)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("req_id=%s op=live.Serve upgrade failed: %v", obs.RequestID(r.Context()), err)
		return
	}
	defer conn.Close()

	keepAlive(conn)
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("req_id=%s op=live.Serve read failed: %v", obs.RequestID(r.Context()), err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				closeWith(conn, websocket.CloseGoingAway, nil, "feed closed")
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			if err := ping(conn); err != nil {
				return
			}
		}
	}
}
