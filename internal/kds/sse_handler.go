package kds

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/kds/pkg/event"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const keepaliveInterval = 30 * time.Second

// SSEHandler is the realtime channel for display clients. A client joins
// exactly one group per connection (?station=<id>, or ?scope=all for the
// privileged operator view), immediately receives a full board snapshot,
// then incremental events until it disconnects. The gateway keeps no
// per-client history: reconnecting clients simply get a fresh snapshot.
type SSEHandler struct {
	gateway *Gateway
	board   *Board
	logger  apt.Logger
}

func NewSSEHandler(gateway *Gateway, board *Board, logger apt.Logger) *SSEHandler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &SSEHandler{
		gateway: gateway,
		board:   board,
		logger:  logger,
	}
}

func (h *SSEHandler) RegisterRoutes(r chi.Router) {
	r.Get("/events/stream", h.ServeHTTP)
}

// ServeHTTP implements http.Handler for the SSE endpoint.
func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	group, filter, ok := h.resolveGroup(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	subscriberID := uuid.New().String()
	h.logger.Info("new SSE connection", "subscriber_id", subscriberID, "group", group)

	// Subscribe before snapshotting so mutations racing the snapshot land
	// in the buffered channel instead of getting lost.
	eventChan := h.gateway.Subscribe(group, subscriberID)
	defer h.gateway.Unsubscribe(group, subscriberID)

	fmt.Fprintf(w, ": connected\n\n")
	fmt.Fprintf(w, "retry: 2000\n\n")

	snapshot := h.board.ListTickets(filter, time.Now().UTC())
	h.sendJSON(w, event.KindSnapshot, snapshot)

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("SSE client disconnected", "subscriber_id", subscriberID)
			return

		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}

		case evt, ok := <-eventChan:
			if !ok {
				h.logger.Info("event channel closed", "subscriber_id", subscriberID)
				return
			}
			h.sendJSON(w, evt.Kind, evt)
		}
	}
}

func (h *SSEHandler) resolveGroup(w http.ResponseWriter, r *http.Request) (string, BoardFilter, bool) {
	if r.URL.Query().Get("scope") == OperatorGroup {
		return OperatorGroup, BoardFilter{}, true
	}

	stationIDStr := r.URL.Query().Get("station")
	if stationIDStr == "" {
		apt.RespondError(w, http.StatusBadRequest, "Missing station parameter")
		return "", BoardFilter{}, false
	}
	stationID, err := uuid.Parse(stationIDStr)
	if err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid station ID")
		return "", BoardFilter{}, false
	}

	return stationID.String(), BoardFilter{StationID: &stationID}, true
}

func (h *SSEHandler) sendJSON(w http.ResponseWriter, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal SSE payload", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", data)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
