package trips

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bluele/gcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadcast/internal/refresh"
	"roadcast/internal/types"
)

// --- Fakes ---

type fakePlanner struct {
	route []types.RouteStep
	err   error
}

func (f *fakePlanner) Plan(context.Context, types.RoutePlanParams) ([]types.RouteStep, error) {
	return types.CloneSteps(f.route), f.err
}

type fakeInserter struct {
	offset float64
	err    error
	origin types.Place
}

func (f *fakeInserter) Insert(_ context.Context, route []types.RouteStep, origin, p types.Place) ([]types.RouteStep, error) {
	f.origin = origin
	if f.err != nil {
		return nil, f.err
	}
	out := make([]types.RouteStep, 0, len(route)+1)
	for _, s := range route {
		out = append(out, s.Bare())
	}
	out = append(out, types.RouteStep{Place: p, TimeOffsetHours: f.offset, IsManualWaypoint: true})
	return out, nil
}

// arrivalEnricher sets arrival times only, which is enough to see which
// departure a route was enriched for.
type arrivalEnricher struct {
	calls atomic.Int32
}

func (e *arrivalEnricher) Enrich(_ context.Context, steps []types.RouteStep, departure time.Time) ([]types.RouteStep, error) {
	e.calls.Add(1)
	out := make([]types.RouteStep, len(steps))
	for i, s := range steps {
		out[i] = s.Bare()
		arrival := s.Arrival(departure)
		out[i].ArrivalTime = &arrival
	}
	return out, nil
}

// blockingEnricher never finishes until its context ends.
type blockingEnricher struct{}

func (blockingEnricher) Enrich(ctx context.Context, _ []types.RouteStep, _ time.Time) ([]types.RouteStep, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

var (
	now    = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	denver = types.Place{ShortName: "Denver", DisplayName: "Denver, CO", Coordinates: types.Coordinates{Lat: 39.74, Lng: -104.99}}
	moab   = types.Place{ShortName: "Moab", DisplayName: "Moab, UT", Coordinates: types.Coordinates{Lat: 38.57, Lng: -109.55}}
	vail   = types.Place{ShortName: "Vail", DisplayName: "Vail, CO", Coordinates: types.Coordinates{Lat: 39.64, Lng: -106.37}}
)

func plannedRoute() []types.RouteStep {
	return []types.RouteStep{
		{Place: denver, TimeOffsetHours: 0},
		{Place: moab, TimeOffsetHours: 5.5},
	}
}

func tripParams() types.RoutePlanParams {
	return types.RoutePlanParams{Origin: denver, Destination: moab, SampleIntervalMinutes: 60}
}

func sequentialIDs() func() string {
	var n atomic.Int32
	return func() string { return fmt.Sprintf("trip-%d", n.Add(1)) }
}

func newTestService(t *testing.T, planner Planner, inserter WaypointInserter, enricher refresh.Enricher, store *Store) *Service {
	t.Helper()
	if store == nil {
		store = NewStore(StoreConfig{MaxSessions: 10, SessionTTL: time.Hour})
	}
	svc := NewService(planner, inserter, enricher, ServiceConfig{
		Store:   store,
		Refresh: refresh.Config{DebounceWindow: 5 * time.Millisecond},
		Clock:   types.FixedClock{T: now},
		NewID:   sequentialIDs(),
	})
	t.Cleanup(svc.Close)
	return svc
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func requireCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
}

// --- Tests ---

func TestCreate_PlansAndEnriches(t *testing.T) {
	enricher := &arrivalEnricher{}
	svc := newTestService(t, &fakePlanner{route: plannedRoute()}, &fakeInserter{}, enricher, nil)

	departure := now.Add(2 * time.Hour)
	v, err := svc.Create(testCtx(t), tripParams(), departure)
	require.NoError(t, err)

	assert.Equal(t, "trip-1", v.ID)
	assert.Equal(t, moab, v.Destination)
	assert.Equal(t, refresh.StateIdle, v.State)
	require.Len(t, v.Route, 2)
	require.NotNil(t, v.Route[1].ArrivalTime)
	assert.Equal(t, departure.Add(5*time.Hour+30*time.Minute), *v.Route[1].ArrivalTime)
	assert.Equal(t, int32(1), enricher.calls.Load())
}

func TestCreate_ZeroDepartureMeansNow(t *testing.T) {
	svc := newTestService(t, &fakePlanner{route: plannedRoute()}, &fakeInserter{}, &arrivalEnricher{}, nil)

	v, err := svc.Create(testCtx(t), tripParams(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, now, v.Departure)
}

func TestCreate_PlanErrorPropagates(t *testing.T) {
	planErr := types.NewAppError(types.ErrCodeRouteUnavailable, "no route", nil)
	store := NewStore(StoreConfig{MaxSessions: 10, SessionTTL: time.Hour})
	svc := newTestService(t, &fakePlanner{err: planErr}, &fakeInserter{}, &arrivalEnricher{}, store)

	_, err := svc.Create(testCtx(t), tripParams(), now)
	requireCode(t, err, types.ErrCodeRouteUnavailable)
	assert.Equal(t, 0, store.Len())
}

func TestCreate_LimitExceeded(t *testing.T) {
	store := NewStore(StoreConfig{MaxSessions: 1, SessionTTL: time.Hour})
	svc := newTestService(t, &fakePlanner{route: plannedRoute()}, &fakeInserter{}, &arrivalEnricher{}, store)

	_, err := svc.Create(testCtx(t), tripParams(), now)
	require.NoError(t, err)

	_, err = svc.Create(testCtx(t), tripParams(), now)
	requireCode(t, err, types.ErrCodeLimitTrips)
}

func TestCreate_AbandonedWaitFreesSlot(t *testing.T) {
	store := NewStore(StoreConfig{MaxSessions: 1, SessionTTL: time.Hour})
	svc := newTestService(t, &fakePlanner{route: plannedRoute()}, &fakeInserter{}, blockingEnricher{}, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Create(ctx, tripParams(), now)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, store.Len())

	_, err = svc.Get("trip-1")
	requireCode(t, err, types.ErrCodeNotFoundTrip)
}

func TestGet_UnknownTrip(t *testing.T) {
	svc := newTestService(t, &fakePlanner{}, &fakeInserter{}, &arrivalEnricher{}, nil)

	_, err := svc.Get("nope")
	requireCode(t, err, types.ErrCodeNotFoundTrip)
}

func TestSetDeparture_ReEnriches(t *testing.T) {
	svc := newTestService(t, &fakePlanner{route: plannedRoute()}, &fakeInserter{}, &arrivalEnricher{}, nil)
	v, err := svc.Create(testCtx(t), tripParams(), now)
	require.NoError(t, err)

	later := now.Add(24 * time.Hour)
	v, err = svc.SetDeparture(testCtx(t), v.ID, later)
	require.NoError(t, err)

	assert.Equal(t, later, v.EffectiveDeparture)
	assert.Equal(t, later.Add(5*time.Hour+30*time.Minute), *v.Route[1].ArrivalTime)
}

func TestScrub_DebouncesThenApplies(t *testing.T) {
	svc := newTestService(t, &fakePlanner{route: plannedRoute()}, &fakeInserter{}, &arrivalEnricher{}, nil)
	v, err := svc.Create(testCtx(t), tripParams(), now)
	require.NoError(t, err)

	_, scheduled, err := svc.Scrub(v.ID, 0.1)
	require.NoError(t, err)
	assert.False(t, scheduled, "offsets inside the threshold are ignored")

	_, scheduled, err = svc.Scrub(v.ID, 3)
	require.NoError(t, err)
	assert.True(t, scheduled)

	trip, err := svc.store.Get(v.ID)
	require.NoError(t, err)
	require.NoError(t, trip.coord.Wait(testCtx(t)))

	got, err := svc.Get(v.ID)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got.OffsetHours)
	assert.Equal(t, now.Add(3*time.Hour), got.EffectiveDeparture)
}

func TestAddWaypoint_ReplacesAndReEnriches(t *testing.T) {
	inserter := &fakeInserter{offset: 2.5}
	svc := newTestService(t, &fakePlanner{route: plannedRoute()}, inserter, &arrivalEnricher{}, nil)
	v, err := svc.Create(testCtx(t), tripParams(), now)
	require.NoError(t, err)

	v, err = svc.AddWaypoint(testCtx(t), v.ID, vail)
	require.NoError(t, err)

	assert.Equal(t, denver, inserter.origin, "directions start from the trip origin")
	require.Len(t, v.Route, 3)
	assert.True(t, v.Route[2].IsManualWaypoint)
	require.NotNil(t, v.Route[2].ArrivalTime)
	assert.Equal(t, now.Add(150*time.Minute), *v.Route[2].ArrivalTime)
}

func TestAddWaypoint_InsertErrorLeavesRoute(t *testing.T) {
	inserter := &fakeInserter{err: types.NewAppError(types.ErrCodeRouteUnavailable, "no route", nil)}
	svc := newTestService(t, &fakePlanner{route: plannedRoute()}, inserter, &arrivalEnricher{}, nil)
	v, err := svc.Create(testCtx(t), tripParams(), now)
	require.NoError(t, err)

	_, err = svc.AddWaypoint(testCtx(t), v.ID, vail)
	requireCode(t, err, types.ErrCodeRouteUnavailable)

	got, err := svc.Get(v.ID)
	require.NoError(t, err)
	assert.Len(t, got.Route, 2)
}

func TestDelete(t *testing.T) {
	svc := newTestService(t, &fakePlanner{route: plannedRoute()}, &fakeInserter{}, &arrivalEnricher{}, nil)
	v, err := svc.Create(testCtx(t), tripParams(), now)
	require.NoError(t, err)
	trip, err := svc.store.Get(v.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(v.ID))

	_, err = svc.Get(v.ID)
	requireCode(t, err, types.ErrCodeNotFoundTrip)
	requireCode(t, svc.Delete(v.ID), types.ErrCodeNotFoundTrip)

	// The removed trip's coordinator is closed.
	assert.ErrorIs(t, trip.coord.SetDeparture(now), refresh.ErrClosed)
}

func TestStore_ExpiredTripsAreClosedAndFreeCapacity(t *testing.T) {
	clock := gcache.NewFakeClock()
	store := NewStore(StoreConfig{MaxSessions: 1, SessionTTL: time.Hour, Clock: clock})
	svc := newTestService(t, &fakePlanner{route: plannedRoute()}, &fakeInserter{}, &arrivalEnricher{}, store)

	first, err := svc.Create(testCtx(t), tripParams(), now)
	require.NoError(t, err)
	trip, err := store.Get(first.ID)
	require.NoError(t, err)

	clock.Advance(90 * time.Minute)

	second, err := svc.Create(testCtx(t), tripParams(), now)
	require.NoError(t, err, "an expired trip must not count toward the limit")
	assert.NotEqual(t, first.ID, second.ID)

	_, err = svc.Get(first.ID)
	requireCode(t, err, types.ErrCodeNotFoundTrip)
	assert.ErrorIs(t, trip.coord.Load(plannedRoute(), now), refresh.ErrClosed)
}
