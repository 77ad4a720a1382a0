package kds

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// StationHandler is the privileged configuration surface for stations.
// Uniqueness of names is left to the surrounding system.
type StationHandler struct {
	repo   StationRepository
	logger apt.Logger
	config *apt.Config
	tlm    *telemetry.HTTP
}

func NewStationHandler(repo StationRepository, config *apt.Config, logger apt.Logger) *StationHandler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &StationHandler{
		repo:   repo,
		logger: logger,
		config: config,
		tlm:    telemetry.NewHTTP(),
	}
}

func (h *StationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/stations", func(r chi.Router) {
		r.Post("/", h.CreateStation)
		r.Get("/", h.ListStations)
		r.Get("/{id}", h.GetStation)
		r.Put("/{id}", h.UpdateStation)
		r.Patch("/{id}/disable", h.DisableStation)
	})
}

func (h *StationHandler) log(r *http.Request) apt.Logger {
	return h.logger.With("request_id", apt.RequestIDFrom(r.Context()))
}

func (h *StationHandler) CreateStation(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "StationHandler.CreateStation")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	station, ok := h.decodeStationPayload(w, r)
	if !ok {
		return
	}

	station.EnsureID()
	station.BeforeCreate()

	if err := h.repo.Create(ctx, station); err != nil {
		log.Error("cannot create station", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not create station")
		return
	}

	w.WriteHeader(http.StatusCreated)
	apt.RespondSuccess(w, station)
}

func (h *StationHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "StationHandler.ListStations")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	activeOnly := r.URL.Query().Get("active") == "true"

	stations, err := h.repo.List(ctx, activeOnly)
	if err != nil {
		log.Error("cannot list stations", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not list stations")
		return
	}

	apt.RespondCollection(w, stations, "station")
}

func (h *StationHandler) GetStation(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "StationHandler.GetStation")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	id, ok := h.parseIDParam(w, r)
	if !ok {
		return
	}

	station, err := h.repo.FindByID(ctx, id)
	if err != nil {
		log.Error("cannot find station", "error", err, "id", id.String())
		apt.RespondError(w, http.StatusNotFound, "Station not found")
		return
	}

	apt.RespondSuccess(w, station)
}

func (h *StationHandler) UpdateStation(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "StationHandler.UpdateStation")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	id, ok := h.parseIDParam(w, r)
	if !ok {
		return
	}

	existing, err := h.repo.FindByID(ctx, id)
	if err != nil {
		apt.RespondError(w, http.StatusNotFound, "Station not found")
		return
	}

	station, ok := h.decodeStationPayload(w, r)
	if !ok {
		return
	}

	station.ID = existing.ID
	station.CreatedAt = existing.CreatedAt
	station.CreatedBy = existing.CreatedBy
	station.SchemaVersion = existing.SchemaVersion
	station.BeforeUpdate()

	if err := h.repo.Update(ctx, station); err != nil {
		log.Error("cannot update station", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not update station")
		return
	}

	apt.RespondSuccess(w, station)
}

// DisableStation soft-disables a station: it stops receiving routes but
// keeps its history. The category coverage check is advisory only, since
// overlapping stations are legitimate; an uncovered category is logged and
// never blocks the disable.
func (h *StationHandler) DisableStation(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "StationHandler.DisableStation")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	id, ok := h.parseIDParam(w, r)
	if !ok {
		return
	}

	station, err := h.repo.FindByID(ctx, id)
	if err != nil {
		apt.RespondError(w, http.StatusNotFound, "Station not found")
		return
	}

	h.warnUncoveredCategories(ctx, log, station)

	station.Active = false
	station.BeforeUpdate()

	if err := h.repo.Update(ctx, station); err != nil {
		log.Error("cannot disable station", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not disable station")
		return
	}

	apt.RespondSuccess(w, station)
}

// warnUncoveredCategories logs every category of the disabling station's
// filter that no other active station would still cover.
func (h *StationHandler) warnUncoveredCategories(ctx context.Context, log apt.Logger, station *Station) {
	if !station.FilterEnabled || len(station.CategoryFilter) == 0 {
		return
	}

	others, err := h.repo.List(ctx, true)
	if err != nil {
		log.Error("cannot run coverage check", "error", err)
		return
	}

	for _, categoryID := range station.CategoryFilter {
		covered := false
		for i := range others {
			if others[i].ID == station.ID {
				continue
			}
			if others[i].CoversCategory(categoryID) {
				covered = true
				break
			}
		}
		if !covered {
			log.Info("disabling station leaves category uncovered",
				"station_id", station.ID.String(),
				"category_id", categoryID.String(),
			)
		}
	}
}

func (h *StationHandler) parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid station ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *StationHandler) decodeStationPayload(w http.ResponseWriter, r *http.Request) (*Station, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Could not read request body")
		return nil, false
	}

	var station Station
	if err := json.Unmarshal(body, &station); err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid JSON payload")
		return nil, false
	}

	if station.Name == "" {
		apt.RespondError(w, http.StatusBadRequest, "Station name is required")
		return nil, false
	}

	return &station, true
}
