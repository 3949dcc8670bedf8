package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadcast/internal/external"
	"roadcast/internal/types"
)

// --- Fakes ---

type fakeDirections struct {
	result *types.DirectionsResult
	err    error
	calls  []types.Coordinates
	mu     sync.Mutex
}

func (f *fakeDirections) Directions(_ context.Context, from, to types.Coordinates) (*types.DirectionsResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, from, to)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// meridianRoute runs due north from the equator so latitude grows linearly
// with distance, which makes every sample's latitude equal its offset.
func meridianRoute(hours float64) *types.DirectionsResult {
	return &types.DirectionsResult{
		Path: []types.Coordinates{
			{Lat: 0, Lng: 10},
			{Lat: hours / 2, Lng: 10},
			{Lat: hours, Lng: 10},
		},
		DurationSeconds: hours * 3600,
		DistanceMeters:  hours * 111_000,
	}
}

type fakeGeocoder struct {
	name func(types.Coordinates) (string, error)
	mu   sync.Mutex
	seen int
}

func (f *fakeGeocoder) ReverseGeocode(_ context.Context, c types.Coordinates) (*types.Place, error) {
	f.mu.Lock()
	f.seen++
	f.mu.Unlock()
	name, err := f.name(c)
	if err != nil {
		return nil, err
	}
	return &types.Place{ShortName: name, DisplayName: name + ", Test", Coordinates: c}, nil
}

func townByLatitude(c types.Coordinates) (string, error) {
	return fmt.Sprintf("Town %.0f", c.Lat), nil
}

type countingMetrics struct {
	mu      sync.Mutex
	reasons []string
}

func (m *countingMetrics) RecordResolutionSkipped(_ context.Context, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reasons = append(m.reasons, reason)
}

var (
	origin      = types.Place{ShortName: "Origin", DisplayName: "Origin, Test", Coordinates: types.Coordinates{Lat: 0, Lng: 10}}
	destination = types.Place{ShortName: "Destination", DisplayName: "Destination, Test", Coordinates: types.Coordinates{Lat: 2.5, Lng: 10}}
)

func params(interval int) types.RoutePlanParams {
	return types.RoutePlanParams{Origin: origin, Destination: destination, SampleIntervalMinutes: interval}
}

func offsets(steps []types.RouteStep) []float64 {
	out := make([]float64, len(steps))
	for i, s := range steps {
		out[i] = s.TimeOffsetHours
	}
	return out
}

// --- Tests ---

func TestPlan_150MinuteTripHourlySamples(t *testing.T) {
	dirs := &fakeDirections{result: meridianRoute(2.5)}
	p := NewPlanner(dirs, &fakeGeocoder{name: townByLatitude}, PlannerConfig{})

	steps, err := p.Plan(context.Background(), params(60))
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 1, 2, 2.5}, offsets(steps))
	assert.Equal(t, "Origin", steps[0].Place.ShortName)
	assert.Equal(t, "Town 1", steps[1].Place.ShortName)
	assert.Equal(t, "Town 2", steps[2].Place.ShortName)
	assert.Equal(t, destination, steps[3].Place)

	// Interior places carry the sampled point, not a centroid.
	assert.InDelta(t, 1.0, steps[1].Place.Coordinates.Lat, 1e-6)
	for _, s := range steps {
		assert.False(t, s.IsManualWaypoint)
		assert.Nil(t, s.Weather)
		assert.Nil(t, s.Alerts)
	}
}

func TestPlan_ShortTripYieldsOriginAndDestination(t *testing.T) {
	dirs := &fakeDirections{result: meridianRoute(0.3)}
	geocoder := &fakeGeocoder{name: townByLatitude}
	p := NewPlanner(dirs, geocoder, PlannerConfig{})

	steps, err := p.Plan(context.Background(), params(60))
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 0.3}, offsets(steps))
	assert.Zero(t, geocoder.seen)
}

func TestPlan_OffsetsNonDecreasingAcrossIntervals(t *testing.T) {
	for _, interval := range []int{15, 25, 45, 60, 90, 480} {
		for _, hours := range []float64{0.1, 0.99, 1, 2.04, 7.3, 13} {
			t.Run(fmt.Sprintf("%dm/%.2fh", interval, hours), func(t *testing.T) {
				dirs := &fakeDirections{result: meridianRoute(hours)}
				p := NewPlanner(dirs, &fakeGeocoder{name: func(c types.Coordinates) (string, error) {
					return fmt.Sprintf("P%.4f", c.Lat), nil
				}}, PlannerConfig{GeocodeConcurrency: 3})

				steps, err := p.Plan(context.Background(), params(interval))
				require.NoError(t, err)
				require.GreaterOrEqual(t, len(steps), 2)

				assert.Equal(t, 0.0, steps[0].TimeOffsetHours)
				assert.Equal(t, destination, steps[len(steps)-1].Place)
				for i := 1; i < len(steps); i++ {
					assert.GreaterOrEqual(t, steps[i].TimeOffsetHours, steps[i-1].TimeOffsetHours)
				}
				for _, s := range steps[1 : len(steps)-1] {
					assert.Less(t, s.TimeOffsetHours, hours)
				}
			})
		}
	}
}

func TestPlan_DestinationNeverBeforePreviousStep(t *testing.T) {
	// At 61-minute sampling the last interior step of a 2.04h trip sits at
	// 2.033h, past round(2.04, 1) = 2.0.
	dirs := &fakeDirections{result: meridianRoute(2.04)}
	p := NewPlanner(dirs, &fakeGeocoder{name: townByLatitude}, PlannerConfig{})

	steps, err := p.Plan(context.Background(), params(61))
	require.NoError(t, err)
	require.Len(t, steps, 4)

	last := steps[len(steps)-1]
	prev := steps[len(steps)-2]
	assert.InDelta(t, 2*61.0/60, prev.TimeOffsetHours, 1e-9)
	assert.Equal(t, prev.TimeOffsetHours, last.TimeOffsetHours)
}

func TestPlan_DuplicateShortNamesCollapse(t *testing.T) {
	dirs := &fakeDirections{result: meridianRoute(5)}
	names := map[int]string{1: "Alpha", 2: "Alpha", 3: "Beta", 4: "Alpha"}
	metrics := &countingMetrics{}
	p := NewPlanner(dirs, &fakeGeocoder{name: func(c types.Coordinates) (string, error) {
		return names[int(math.Round(c.Lat))], nil
	}}, PlannerConfig{Metrics: metrics})

	steps, err := p.Plan(context.Background(), params(60))
	require.NoError(t, err)

	var got []string
	for _, s := range steps {
		got = append(got, s.Place.ShortName)
	}
	// Only consecutive repeats are dropped; Alpha may reappear after Beta.
	assert.Equal(t, []string{"Origin", "Alpha", "Beta", "Alpha", "Destination"}, got)
	assert.Equal(t, []float64{0, 1, 3, 4, 5}, offsets(steps))
	assert.Equal(t, []string{SkipReasonDuplicate}, metrics.reasons)
}

func TestPlan_FinalSampleNamedLikeDestinationIsDropped(t *testing.T) {
	dirs := &fakeDirections{result: meridianRoute(2.5)}
	metrics := &countingMetrics{}
	p := NewPlanner(dirs, &fakeGeocoder{name: func(types.Coordinates) (string, error) {
		return "Destination", nil
	}}, PlannerConfig{Metrics: metrics})

	steps, err := p.Plan(context.Background(), params(60))
	require.NoError(t, err)

	require.Len(t, steps, 2)
	assert.Equal(t, "Origin", steps[0].Place.ShortName)
	assert.Equal(t, destination, steps[1].Place)
	assert.Equal(t, []float64{0, 2.5}, offsets(steps))
	for i := 1; i < len(steps); i++ {
		assert.NotEqual(t, steps[i-1].Place.ShortName, steps[i].Place.ShortName, "steps %d,%d", i-1, i)
	}
	assert.Equal(t, []string{SkipReasonDuplicate, SkipReasonDuplicate}, metrics.reasons)
}

func TestPlan_FailedAndMissingPlacesAreSkipped(t *testing.T) {
	dirs := &fakeDirections{result: meridianRoute(4)}
	metrics := &countingMetrics{}
	p := NewPlanner(dirs, &fakeGeocoder{name: func(c types.Coordinates) (string, error) {
		switch int(math.Round(c.Lat)) {
		case 1:
			return "", external.ErrPlaceNotFound
		case 2:
			return "", errors.New("timeout")
		default:
			return "Gamma", nil
		}
	}}, PlannerConfig{Metrics: metrics})

	steps, err := p.Plan(context.Background(), params(60))
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 3, 4}, offsets(steps))
	assert.ElementsMatch(t, []string{SkipReasonNotFound, SkipReasonFailed}, metrics.reasons)
}

func TestPlan_NoRoute(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"no route", external.ErrNoRoute},
		{"provider failure", types.NewAppError(types.ErrCodeUpstreamUnavailable, "down", nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPlanner(&fakeDirections{err: tt.err}, &fakeGeocoder{name: townByLatitude}, PlannerConfig{})

			steps, err := p.Plan(context.Background(), params(60))
			assert.Nil(t, steps)

			var appErr *types.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, types.ErrCodeRouteUnavailable, appErr.Code)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestPlan_InvalidInterval(t *testing.T) {
	dirs := &fakeDirections{result: meridianRoute(1)}
	p := NewPlanner(dirs, &fakeGeocoder{name: townByLatitude}, PlannerConfig{})

	_, err := p.Plan(context.Background(), params(5))

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationInvalidInterval, appErr.Code)
	assert.Empty(t, dirs.calls)
}

func TestPlan_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPlanner(&fakeDirections{err: context.Canceled}, &fakeGeocoder{name: townByLatitude}, PlannerConfig{})
	_, err := p.Plan(ctx, params(60))
	assert.ErrorIs(t, err, context.Canceled)
}
