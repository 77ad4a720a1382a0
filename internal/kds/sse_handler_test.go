package kds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
)

func newTestSSEHandler(items ...*ItemInstance) (*SSEHandler, *Gateway) {
	set := NewWorkingSet(nil, nil, apt.NewNoopLogger())
	for _, item := range items {
		set.Insert(item.Clone())
	}
	gateway := NewGateway(apt.NewNoopLogger())
	return NewSSEHandler(gateway, NewBoard(set), apt.NewNoopLogger()), gateway
}

func TestSSEHandlerRequiresStation(t *testing.T) {
	h, _ := newTestSSEHandler()

	tests := []struct {
		name           string
		target         string
		expectedStatus int
	}{
		{"missingStation", "/events/stream", http.StatusBadRequest},
		{"invalidStation", "/events/stream?station=not-a-uuid", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			w := httptest.NewRecorder()

			h.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("ServeHTTP() status = %d, want %d", w.Code, tt.expectedStatus)
			}
		})
	}
}

func TestSSEHandlerSendsSnapshotOnConnect(t *testing.T) {
	stationID := uuid.New()
	item := newTestItem("pending")
	item.StationID = stationID

	h, _ := newTestSSEHandler(item)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/events/stream?station="+stationID.String(), nil).WithContext(ctx)
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, ": connected") {
		t.Error("response missing connection comment")
	}
	if !strings.Contains(body, "event: snapshot") {
		t.Errorf("response missing snapshot event: %s", body)
	}
	if !strings.Contains(body, item.ID.String()) {
		t.Error("snapshot does not contain the station's item")
	}
	if w.Header().Get("Content-Type") != "text/event-stream" {
		t.Errorf("Content-Type = %s, want text/event-stream", w.Header().Get("Content-Type"))
	}
}

func TestSSEHandlerOperatorScopeSnapshotsEverything(t *testing.T) {
	grillItem := newTestItem("pending")
	barItem := newTestItem("in_progress")

	h, gateway := newTestSSEHandler(grillItem, barItem)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/events/stream?scope=all", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, grillItem.ID.String()) || !strings.Contains(body, barItem.ID.String()) {
		t.Error("operator snapshot does not contain items from every station")
	}

	// The connection cleaned up after itself.
	if gateway.GroupSize(OperatorGroup) != 0 {
		t.Error("operator group still has subscribers after disconnect")
	}
}

func TestSSEHandlerStationSnapshotScoped(t *testing.T) {
	stationID := uuid.New()
	mine := newTestItem("pending")
	mine.StationID = stationID
	foreign := newTestItem("pending")

	h, _ := newTestSSEHandler(mine, foreign)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/events/stream?station="+stationID.String(), nil).WithContext(ctx)
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, mine.ID.String()) {
		t.Error("snapshot missing the station's own item")
	}
	if strings.Contains(body, foreign.ID.String()) {
		t.Error("snapshot leaked a foreign station's item")
	}
}
