package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"roadcast/internal/core"
	"roadcast/internal/trips"
	"roadcast/internal/types"
)

// TripService is the trip session contract used by TripHandler.
// *trips.Service satisfies it.
type TripService interface {
	Create(ctx context.Context, params types.RoutePlanParams, departure time.Time) (*trips.View, error)
	Get(id string) (*trips.View, error)
	SetDeparture(ctx context.Context, id string, departure time.Time) (*trips.View, error)
	Scrub(id string, offsetHours float64) (*trips.View, bool, error)
	AddWaypoint(ctx context.Context, id string, p types.Place) (*trips.View, error)
	Delete(id string) error
}

var _ TripService = (*trips.Service)(nil)

// TripHandler serves the trip session endpoints.
type TripHandler struct {
	service         TripService
	validator       *core.Validator
	defaultInterval int
	logger          *slog.Logger
}

// NewTripHandler creates a TripHandler. A zero defaultInterval means 60
// minutes.
func NewTripHandler(svc TripService, v *core.Validator, defaultInterval int, logger *slog.Logger) *TripHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultInterval == 0 {
		defaultInterval = 60
	}
	return &TripHandler{
		service:         svc,
		validator:       v,
		defaultInterval: defaultInterval,
		logger:          logger,
	}
}

// RegisterRoutes mounts the trip endpoints under /trips.
func (h *TripHandler) RegisterRoutes(r chi.Router) {
	r.Route("/trips", func(r chi.Router) {
		r.Post("/", h.Create)

		r.Route("/{tripID}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Delete("/", h.Delete)
			r.Put("/departure", h.SetDeparture)
			r.Post("/scrub", h.Scrub)
			r.Post("/waypoints", h.AddWaypoint)
		})
	})
}

// Create handles POST /v1/trips. It answers once the first enrichment has
// settled.
func (h *TripHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTripRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	departure, err := parseDeparture(req.DepartureTime)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	v, err := h.service.Create(r.Context(), types.RoutePlanParams{
		Origin:                req.Origin.Place(),
		Destination:           req.Destination.Place(),
		SampleIntervalMinutes: withDefault(req.SampleIntervalMinutes, h.defaultInterval),
	}, departure)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	w.Header().Set("Location", "/v1/trips/"+v.ID)
	core.Data(w, r, http.StatusCreated, newTripResponse(v))
}

// Get handles GET /v1/trips/{tripID}.
func (h *TripHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.Get(chi.URLParam(r, "tripID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, newTripResponse(v))
}

// SetDeparture handles PUT /v1/trips/{tripID}/departure.
func (h *TripHandler) SetDeparture(w http.ResponseWriter, r *http.Request) {
	var req SetDepartureRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	departure, err := parseDeparture(req.DepartureTime)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	v, err := h.service.SetDeparture(r.Context(), chi.URLParam(r, "tripID"), departure)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, newTripResponse(v))
}

// Scrub handles POST /v1/trips/{tripID}/scrub. The refresh it triggers is
// debounced, so it answers 202 with the state as of the call.
func (h *TripHandler) Scrub(w http.ResponseWriter, r *http.Request) {
	var req ScrubRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	v, scheduled, err := h.service.Scrub(chi.URLParam(r, "tripID"), *req.OffsetHours)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusAccepted, ScrubResponse{
		Trip:      newTripResponse(v),
		Scheduled: scheduled,
	})
}

// AddWaypoint handles POST /v1/trips/{tripID}/waypoints.
func (h *TripHandler) AddWaypoint(w http.ResponseWriter, r *http.Request) {
	var req AddWaypointRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	id := chi.URLParam(r, "tripID")
	v, err := h.service.AddWaypoint(r.Context(), id, req.Place.Place())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "waypoint added",
		"trip_id", id,
		"place", req.Place.ShortName,
		"steps", len(v.Route),
	)
	core.Data(w, r, http.StatusOK, newTripResponse(v))
}

// Delete handles DELETE /v1/trips/{tripID}.
func (h *TripHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(chi.URLParam(r, "tripID")); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
