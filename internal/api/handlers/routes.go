package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"roadcast/internal/core"
	"roadcast/internal/types"
)

// RoutePlanner turns endpoints into an ordered, un-enriched route.
type RoutePlanner interface {
	Plan(ctx context.Context, params types.RoutePlanParams) ([]types.RouteStep, error)
}

// RouteEnricher attaches arrival times, weather and alerts to a route.
type RouteEnricher interface {
	Enrich(ctx context.Context, steps []types.RouteStep, departure time.Time) ([]types.RouteStep, error)
}

// RouteHandlerConfig holds the optional settings of a RouteHandler.
type RouteHandlerConfig struct {
	// DefaultIntervalMinutes applies when a request omits the interval.
	DefaultIntervalMinutes int
	Clock                  types.Clock
	Logger                 *slog.Logger
}

// RouteHandler serves stateless planning and enrichment.
type RouteHandler struct {
	planner         RoutePlanner
	enricher        RouteEnricher
	validator       *core.Validator
	defaultInterval int
	clock           types.Clock
	logger          *slog.Logger
}

// NewRouteHandler creates a RouteHandler.
func NewRouteHandler(planner RoutePlanner, enricher RouteEnricher, v *core.Validator, cfg RouteHandlerConfig) *RouteHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.DefaultIntervalMinutes == 0 {
		cfg.DefaultIntervalMinutes = 60
	}
	return &RouteHandler{
		planner:         planner,
		enricher:        enricher,
		validator:       v,
		defaultInterval: cfg.DefaultIntervalMinutes,
		clock:           cfg.Clock,
		logger:          cfg.Logger,
	}
}

// RegisterRoutes mounts the route endpoints under /routes.
func (h *RouteHandler) RegisterRoutes(r chi.Router) {
	r.Route("/routes", func(r chi.Router) {
		r.Post("/plan", h.Plan)
		r.Post("/enrich", h.Enrich)
	})
}

// Plan handles POST /v1/routes/plan.
func (h *RouteHandler) Plan(w http.ResponseWriter, r *http.Request) {
	var req PlanRouteRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	params := types.RoutePlanParams{
		Origin:                req.Origin.Place(),
		Destination:           req.Destination.Place(),
		SampleIntervalMinutes: withDefault(req.SampleIntervalMinutes, h.defaultInterval),
	}
	steps, err := h.planner.Plan(r.Context(), params)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "route planned",
		"origin", params.Origin.ShortName,
		"destination", params.Destination.ShortName,
		"steps", len(steps),
	)
	core.Data(w, r, http.StatusOK, RouteResponse{Steps: newStepResponses(steps)})
}

// Enrich handles POST /v1/routes/enrich.
func (h *RouteHandler) Enrich(w http.ResponseWriter, r *http.Request) {
	var req EnrichRouteRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := validateOffsets(req.Steps); err != nil {
		core.Error(w, r, err)
		return
	}
	departure, err := parseDeparture(req.DepartureTime)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if departure.IsZero() {
		departure = h.clock.Now()
	}

	steps := make([]types.RouteStep, len(req.Steps))
	for i, s := range req.Steps {
		steps[i] = types.RouteStep{
			Place:            s.Place.Place(),
			TimeOffsetHours:  s.TimeOffsetHours,
			IsManualWaypoint: s.IsManualWaypoint,
		}
	}

	enriched, err := h.enricher.Enrich(r.Context(), steps, departure)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, RouteResponse{
		Steps:         newStepResponses(enriched),
		DepartureTime: &departure,
	})
}

func withDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
