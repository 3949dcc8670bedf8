package external

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"roadcast/internal/geo"
	"roadcast/internal/types"
)

// ---------------------------------------------------------------------------
// Stub Implementations
//
// Offline providers that let the service and CLI run without vendor
// credentials (DIRECTIONS_BACKEND=stub). Output is deterministic for a given
// input so local runs are reproducible.
// ---------------------------------------------------------------------------

// stubSpeedKmh is the constant driving speed assumed by StubDirections.
const stubSpeedKmh = 80.0

// StubDirections returns a straight-line path between the two points.
type StubDirections struct {
	logger *slog.Logger
}

// NewStubDirections creates a new StubDirections.
func NewStubDirections(logger *slog.Logger) *StubDirections {
	return &StubDirections{logger: logger}
}

// Directions implements DirectionsProvider.
func (s *StubDirections) Directions(ctx context.Context, from, to types.Coordinates) (*types.DirectionsResult, error) {
	km := geo.Haversine(from, to)
	if km == 0 {
		return nil, ErrNoRoute
	}

	const vertices = 32
	path := make([]types.Coordinates, vertices+1)
	for i := 0; i <= vertices; i++ {
		f := float64(i) / vertices
		path[i] = types.Coordinates{
			Lat: from.Lat + (to.Lat-from.Lat)*f,
			Lng: from.Lng + (to.Lng-from.Lng)*f,
		}
	}
	path[vertices] = to

	s.logger.DebugContext(ctx, "stub: Directions called", "km", math.Round(km))
	return &types.DirectionsResult{
		Path:            path,
		DurationSeconds: km / stubSpeedKmh * 3600,
		DistanceMeters:  km * 1000,
	}, nil
}

// StubGeocoder names every point after its coordinate rounded to a tenth
// of a degree, so nearby samples collapse onto the same name.
type StubGeocoder struct {
	logger *slog.Logger
}

// NewStubGeocoder creates a new StubGeocoder.
func NewStubGeocoder(logger *slog.Logger) *StubGeocoder {
	return &StubGeocoder{logger: logger}
}

// ReverseGeocode implements ReverseGeocoder.
func (s *StubGeocoder) ReverseGeocode(_ context.Context, c types.Coordinates) (*types.Place, error) {
	name := fmt.Sprintf("Grid %s", CoordKey(c, 1))
	return &types.Place{
		ShortName:   name,
		DisplayName: name + ", Stubland",
		Coordinates: c,
	}, nil
}

// StubForecast synthesizes a smooth diurnal series. Points colder than the
// snow threshold get snowfall instead of rain.
type StubForecast struct {
	clock  types.Clock
	logger *slog.Logger
}

// NewStubForecast creates a new StubForecast.
func NewStubForecast(clock types.Clock, logger *slog.Logger) *StubForecast {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &StubForecast{clock: clock, logger: logger}
}

// HourlyForecast implements ForecastProvider.
func (s *StubForecast) HourlyForecast(_ context.Context, c types.Coordinates) (*types.HourlySeries, error) {
	start := s.clock.Now().UTC().Truncate(time.Hour).Add(-time.Duration(openMeteoPastDays) * 24 * time.Hour)
	n := (openMeteoPastDays + 16) * 24

	h := &types.HourlySeries{
		Times:                    make([]time.Time, n),
		TemperatureC:             make([]float64, n),
		WeatherCode:              make([]int, n),
		PrecipitationProbability: make([]float64, n),
		RainMM:                   make([]float64, n),
		SnowfallCM:               make([]float64, n),
		WindSpeedKmh:             make([]float64, n),
		ElevationM:               math.Round(math.Abs(c.Lat*c.Lng)) / 2,
	}
	for i := 0; i < n; i++ {
		t := start.Add(time.Duration(i) * time.Hour)
		phase := 2 * math.Pi * float64(t.Hour()) / 24
		h.Times[i] = t
		h.TemperatureC[i] = math.Round((25-0.5*math.Abs(c.Lat)+6*math.Sin(phase))*10) / 10
		h.WindSpeedKmh[i] = math.Round((12+8*math.Cos(phase))*10) / 10

		prob := math.Max(0, 60*math.Sin(phase+c.Lng))
		h.PrecipitationProbability[i] = math.Round(prob)
		switch {
		case prob < 20:
			h.WeatherCode[i] = 1
		case h.TemperatureC[i] <= 0:
			h.WeatherCode[i] = 73
			h.SnowfallCM[i] = math.Round(prob/40*10) / 10
		default:
			h.WeatherCode[i] = 61
			h.RainMM[i] = math.Round(prob/30*10) / 10
		}
	}
	return h, nil
}

// StubAlerts reports no active alerts.
type StubAlerts struct{}

// ActiveAlerts implements AlertProvider.
func (StubAlerts) ActiveAlerts(context.Context, types.Coordinates) ([]types.Alert, error) {
	return []types.Alert{}, nil
}
