package kds

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/telemetry"
	"github.com/appetiteclub/kds/pkg/enums/itemstate"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const MaxBodyBytes = 1 << 20

// HandlerDeps bundles the collaborators of the command surface.
type HandlerDeps struct {
	Lifecycle *Lifecycle
	Board     *Board
	Stats     *Stats
	Set       *WorkingSet
}

// Handler exposes the operator/display command surface: board reads, item
// transitions, priority and attention mutators, the bulk order-ready
// operation, and statistics. Callers are already authenticated upstream;
// the preparer identity arrives as an opaque id.
type Handler struct {
	deps   HandlerDeps
	logger apt.Logger
	config *apt.Config
	tlm    *telemetry.HTTP
}

func NewHandler(deps HandlerDeps, config *apt.Config, logger apt.Logger) *Handler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Handler{
		deps:   deps,
		logger: logger,
		config: config,
		tlm:    telemetry.NewHTTP(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/board", h.ListTickets)
	r.Get("/stats", h.GetStatistics)

	r.Route("/items", func(r chi.Router) {
		r.Get("/{id}", h.GetItem)
		r.Patch("/{id}/start", h.StartItem)
		r.Patch("/{id}/ready", h.ReadyItem)
		r.Patch("/{id}/serve", h.ServeItem)
		r.Patch("/{id}/cancel", h.CancelItem)
		r.Patch("/{id}/priority", h.SetPriority)
		r.Patch("/{id}/attention", h.SetAttention)
	})

	r.Post("/orders/{orderID}/ready", h.MarkOrderReady)
}

func (h *Handler) log(r *http.Request) apt.Logger {
	return h.logger.With("request_id", apt.RequestIDFrom(r.Context()))
}

func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListTickets")
	defer finish()

	filter := BoardFilter{}
	q := r.URL.Query()

	if stationIDStr := q.Get("station"); stationIDStr != "" {
		stationID, err := uuid.Parse(stationIDStr)
		if err != nil {
			apt.RespondError(w, http.StatusBadRequest, "Invalid station ID")
			return
		}
		filter.StationID = &stationID
	}

	if stateStr := q.Get("state"); stateStr != "" {
		if itemstate.ByName(stateStr) == nil {
			apt.RespondError(w, http.StatusBadRequest, "Unknown state")
			return
		}
		filter.State = &stateStr
	}

	if minPriorityStr := q.Get("min_priority"); minPriorityStr != "" {
		minPriority, err := strconv.Atoi(minPriorityStr)
		if err != nil {
			apt.RespondError(w, http.StatusBadRequest, "Invalid min_priority")
			return
		}
		filter.MinPriority = minPriority
	}

	filter.TableNumber = q.Get("table")

	if minWaitStr := q.Get("min_wait"); minWaitStr != "" {
		minWait, err := strconv.Atoi(minWaitStr)
		if err != nil {
			apt.RespondError(w, http.StatusBadRequest, "Invalid min_wait")
			return
		}
		filter.MinWaitMinutes = minWait
	}

	snapshot := h.deps.Board.ListTickets(filter, time.Now().UTC())
	apt.RespondSuccess(w, snapshot)
}

func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetItem")
	defer finish()

	id, ok := h.parseIDParam(w, r)
	if !ok {
		return
	}

	item := h.deps.Set.Get(id)
	if item == nil {
		apt.RespondError(w, http.StatusNotFound, "Item not found")
		return
	}

	apt.RespondSuccess(w, item)
}

func (h *Handler) StartItem(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.StartItem")
	defer finish()
	log := h.log(r)

	id, ok := h.parseIDParam(w, r)
	if !ok {
		return
	}

	var payload struct {
		PreparerID string `json:"preparer_id"`
	}
	if !h.decodeOptionalBody(w, r, &payload) {
		return
	}

	var preparerID *uuid.UUID
	if payload.PreparerID != "" {
		parsed, err := uuid.Parse(payload.PreparerID)
		if err != nil {
			apt.RespondError(w, http.StatusBadRequest, "Invalid preparer ID")
			return
		}
		preparerID = &parsed
	}

	item, err := h.deps.Lifecycle.Transition(r.Context(), id, itemstate.States.InProgress.Name, preparerID)
	if err != nil {
		h.respondMutationError(w, log, err)
		return
	}

	apt.RespondSuccess(w, item)
}

func (h *Handler) ReadyItem(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Handler.ReadyItem", itemstate.States.Ready.Name)
}

func (h *Handler) ServeItem(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Handler.ServeItem", itemstate.States.Served.Name)
}

func (h *Handler) CancelItem(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Handler.CancelItem", itemstate.States.Cancelled.Name)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, span, target string) {
	w, r, finish := h.tlm.Start(w, r, span)
	defer finish()
	log := h.log(r)

	id, ok := h.parseIDParam(w, r)
	if !ok {
		return
	}

	item, err := h.deps.Lifecycle.Transition(r.Context(), id, target, nil)
	if err != nil {
		h.respondMutationError(w, log, err)
		return
	}

	apt.RespondSuccess(w, item)
}

func (h *Handler) SetPriority(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SetPriority")
	defer finish()
	log := h.log(r)

	id, ok := h.parseIDParam(w, r)
	if !ok {
		return
	}

	var payload struct {
		Priority *int `json:"priority"`
	}
	if !h.decodeOptionalBody(w, r, &payload) {
		return
	}
	if payload.Priority == nil || *payload.Priority < 1 {
		apt.RespondError(w, http.StatusBadRequest, "Priority must be a positive integer")
		return
	}

	item, err := h.deps.Lifecycle.SetPriority(r.Context(), id, *payload.Priority)
	if err != nil {
		h.respondMutationError(w, log, err)
		return
	}

	apt.RespondSuccess(w, item)
}

func (h *Handler) SetAttention(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SetAttention")
	defer finish()
	log := h.log(r)

	id, ok := h.parseIDParam(w, r)
	if !ok {
		return
	}

	var payload struct {
		RequiresAttention *bool `json:"requires_attention"`
	}
	if !h.decodeOptionalBody(w, r, &payload) {
		return
	}
	if payload.RequiresAttention == nil {
		apt.RespondError(w, http.StatusBadRequest, "Missing requires_attention")
		return
	}

	item, err := h.deps.Lifecycle.SetRequiresAttention(r.Context(), id, *payload.RequiresAttention)
	if err != nil {
		h.respondMutationError(w, log, err)
		return
	}

	apt.RespondSuccess(w, item)
}

func (h *Handler) MarkOrderReady(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.MarkOrderReady")
	defer finish()
	log := h.log(r)

	orderIDStr := chi.URLParam(r, "orderID")
	orderID, err := uuid.Parse(orderIDStr)
	if err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	items, err := h.deps.Lifecycle.MarkOrderReady(r.Context(), orderID)
	if err != nil {
		h.respondMutationError(w, log, err)
		return
	}

	apt.RespondSuccess(w, map[string]interface{}{
		"order_id": orderID,
		"items":    items,
	})
}

func (h *Handler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetStatistics")
	defer finish()

	var stationID *StationID
	if stationIDStr := r.URL.Query().Get("station"); stationIDStr != "" {
		parsed, err := uuid.Parse(stationIDStr)
		if err != nil {
			apt.RespondError(w, http.StatusBadRequest, "Invalid station ID")
			return
		}
		stationID = &parsed
	}

	snapshot := h.deps.Stats.Snapshot(stationID, time.Now().UTC())
	apt.RespondSuccess(w, snapshot)
}

func (h *Handler) parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid item ID")
		return uuid.Nil, false
	}
	return id, true
}

// decodeOptionalBody tolerates an empty body; malformed JSON is rejected.
func (h *Handler) decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Could not read request body")
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid JSON payload")
		return false
	}
	return true
}

// respondMutationError maps the domain error taxonomy onto HTTP statuses.
// InvalidTransition is an expected race (UI double-taps), answered with the
// conflicting states so the client can reconcile its view.
func (h *Handler) respondMutationError(w http.ResponseWriter, log apt.Logger, err error) {
	var invalid *InvalidTransitionError
	switch {
	case errors.Is(err, ErrNotFound):
		apt.RespondError(w, http.StatusNotFound, "Item not found")
	case errors.As(err, &invalid):
		apt.RespondError(w, http.StatusConflict, invalid.Error())
	case errors.Is(err, ErrNoEligibleItems):
		apt.RespondError(w, http.StatusUnprocessableEntity, "No eligible items")
	default:
		log.Error("cannot apply item mutation", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not update item")
	}
}
