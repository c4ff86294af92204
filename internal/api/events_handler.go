package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/artivo/restyle-api/internal/api/shared"
	"github.com/artivo/restyle-api/internal/events"
	"github.com/artivo/restyle-api/internal/platform/logger"
)

// EventsHandler streams pipeline events to clients over Server-Sent
// Events. Each connection holds one bus subscription for its lifetime.
type EventsHandler struct {
	bus       *events.Bus
	heartbeat time.Duration
}

// NewEventsHandler creates a new EventsHandler. A non-positive heartbeat
// falls back to 30 seconds.
func NewEventsHandler(bus *events.Bus, heartbeat time.Duration) *EventsHandler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &EventsHandler{bus: bus, heartbeat: heartbeat}
}

// StreamEvents handles GET /api/events requests. The optional `events`
// query parameter is a comma-separated list of event names to subscribe
// to; absence subscribes to all of them. Only events scoped to the
// caller's owner (or unscoped events) are delivered.
func (h *EventsHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := getOwnerIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Owner ID not found or invalid")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	var names []string
	if raw := r.URL.Query().Get("events"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
	}

	sub := h.bus.Subscribe(names...)
	defer h.bus.Unsubscribe(sub)

	log := logger.FromContext(r.Context())
	log.Debug("sse stream opened", "owner_id", ownerID, "filter", names)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Debug("sse stream closed", "owner_id", ownerID)
			return

		case <-heartbeat.C:
			// Comment line keeps idle connections alive through proxies.
			fmt.Fprintf(w, ": heartbeat %d\n\n", time.Now().UnixMilli())
			flusher.Flush()

		case event, open := <-sub.Events():
			if !open {
				return
			}
			if event.OwnerID != uuid.Nil && event.OwnerID != ownerID {
				continue
			}

			data, err := json.Marshal(event)
			if err != nil {
				log.Error("failed to encode sse event", "event", event.Name, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Name, data)
			flusher.Flush()
		}
	}
}
