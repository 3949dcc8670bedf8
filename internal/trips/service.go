// Package trips manages live trip sessions. A trip pairs a planned route
// with a refresh.Coordinator so the HTTP layer can scrub the departure time
// or insert stops and always read back a consistent, enriched route.
package trips

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"roadcast/internal/refresh"
	"roadcast/internal/types"
)

// Planner turns endpoints into an ordered, un-enriched route.
type Planner interface {
	Plan(ctx context.Context, params types.RoutePlanParams) ([]types.RouteStep, error)
}

// WaypointInserter splices a manual stop into a route.
type WaypointInserter interface {
	Insert(ctx context.Context, route []types.RouteStep, origin, p types.Place) ([]types.RouteStep, error)
}

// ServiceConfig holds the configuration for creating a Service.
type ServiceConfig struct {
	Store   *Store
	Refresh refresh.Config
	Clock   types.Clock
	// NewID generates trip IDs; nil uses random UUIDs.
	NewID  func() string
	Logger *slog.Logger
}

// Service is the trip session API consumed by the HTTP handlers.
type Service struct {
	planner  Planner
	inserter WaypointInserter
	enricher refresh.Enricher
	store    *Store
	refresh  refresh.Config
	clock    types.Clock
	newID    func() string
	logger   *slog.Logger
}

// NewService creates a Service.
func NewService(planner Planner, inserter WaypointInserter, enricher refresh.Enricher, cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.NewString() }
	}
	if cfg.Store == nil {
		cfg.Store = NewStore(StoreConfig{Logger: cfg.Logger})
	}
	return &Service{
		planner:  planner,
		inserter: inserter,
		enricher: enricher,
		store:    cfg.Store,
		refresh:  cfg.Refresh,
		clock:    cfg.Clock,
		newID:    cfg.NewID,
		logger:   cfg.Logger,
	}
}

// View is what callers see of a trip: its identity plus a consistent copy of
// the coordinator state.
type View struct {
	ID                    string
	Origin                types.Place
	Destination           types.Place
	SampleIntervalMinutes int
	CreatedAt             time.Time
	refresh.Snapshot
}

// Create plans a route, starts a session for it and waits for the first
// enrichment to settle. A zero departure means now.
func (s *Service) Create(ctx context.Context, params types.RoutePlanParams, departure time.Time) (*View, error) {
	route, err := s.planner.Plan(ctx, params)
	if err != nil {
		return nil, err
	}
	if departure.IsZero() {
		departure = s.clock.Now()
	}

	id := s.newID()
	cfg := s.refresh
	cfg.Logger = s.logger.With("trip_id", id)
	cfg.BaseContext = types.WithTripID(context.Background(), id)

	trip := &Trip{
		ID:                    id,
		Origin:                params.Origin,
		Destination:           params.Destination,
		SampleIntervalMinutes: params.SampleIntervalMinutes,
		CreatedAt:             s.clock.Now(),
		coord:                 refresh.NewCoordinator(s.enricher, cfg),
	}
	if err := s.store.Add(trip); err != nil {
		trip.coord.Close()
		return nil, err
	}
	if err := trip.coord.Load(route, departure); err != nil {
		_ = s.store.Remove(id)
		return nil, s.coordErr(id, err)
	}

	v, err := s.settle(ctx, trip)
	if err != nil {
		// The caller never learns the ID, so the trip must not hold a slot.
		_ = s.store.Remove(id)
		return nil, err
	}
	s.logger.InfoContext(ctx, "trip created",
		"trip_id", id,
		"steps", len(route),
		"departure", departure,
	)
	return v, nil
}

// Get returns the current state of a trip without waiting.
func (s *Service) Get(id string) (*View, error) {
	trip, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	return view(trip), nil
}

// SetDeparture moves the base departure time and waits for re-enrichment.
func (s *Service) SetDeparture(ctx context.Context, id string, departure time.Time) (*View, error) {
	trip, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	if err := trip.coord.SetDeparture(departure); err != nil {
		return nil, s.coordErr(id, err)
	}
	return s.settle(ctx, trip)
}

// Scrub records a departure offset in hours. It does not wait: the refresh,
// if any, is debounced. The returned flag reports whether one is scheduled.
func (s *Service) Scrub(id string, offsetHours float64) (*View, bool, error) {
	trip, err := s.store.Get(id)
	if err != nil {
		return nil, false, err
	}
	scheduled, err := trip.coord.Scrub(offsetHours)
	if err != nil {
		return nil, false, s.coordErr(id, err)
	}
	return view(trip), scheduled, nil
}

// AddWaypoint inserts a manual stop into the trip's route and waits for the
// edited route to be re-enriched.
func (s *Service) AddWaypoint(ctx context.Context, id string, p types.Place) (*View, error) {
	trip, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}

	trip.edit.Lock()
	defer trip.edit.Unlock()

	route, err := s.inserter.Insert(ctx, trip.coord.Snapshot().Route, trip.Origin, p)
	if err != nil {
		return nil, err
	}
	if err := trip.coord.ReplaceRoute(route); err != nil {
		return nil, s.coordErr(id, err)
	}
	return s.settle(ctx, trip)
}

// Delete ends a trip session.
func (s *Service) Delete(id string) error {
	if err := s.store.Remove(id); err != nil {
		return err
	}
	s.logger.Info("trip deleted", "trip_id", id)
	return nil
}

// Close ends every session.
func (s *Service) Close() {
	s.store.Close()
}

func (s *Service) settle(ctx context.Context, trip *Trip) (*View, error) {
	if err := trip.coord.Wait(ctx); err != nil {
		return nil, err
	}
	return view(trip), nil
}

// coordErr maps a coordinator closed by a concurrent delete or expiry to
// not_found_trip.
func (s *Service) coordErr(id string, err error) error {
	if errors.Is(err, refresh.ErrClosed) {
		return notFound(id)
	}
	return err
}

func view(t *Trip) *View {
	return &View{
		ID:                    t.ID,
		Origin:                t.Origin,
		Destination:           t.Destination,
		SampleIntervalMinutes: t.SampleIntervalMinutes,
		CreatedAt:             t.CreatedAt,
		Snapshot:              t.coord.Snapshot(),
	}
}
