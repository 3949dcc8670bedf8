// Package weather attaches arrival-time forecasts and hazard alerts to route
// steps.
package weather

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"roadcast/internal/external"
	"roadcast/internal/types"
)

// Defaults applied when AttributorConfig leaves a field zero.
const (
	DefaultConcurrency     = 6
	DefaultProviderTimeout = 8 * time.Second
)

// AttributorMetrics records enrichment timings.
type AttributorMetrics interface {
	RecordEnrichDuration(ctx context.Context, steps int, elapsed time.Duration)
}

// AttributorConfig holds the configuration for creating an Attributor.
type AttributorConfig struct {
	Concurrency     int
	ProviderTimeout time.Duration
	SnowThresholdC  *float64      // nil uses DefaultSnowThresholdC
	Coverage        []BoundingBox // nil uses AlertCoverage
	Clock           types.Clock
	Metrics         AttributorMetrics // optional
	Logger          *slog.Logger
}

// Attributor enriches route steps with weather snapshots and alerts.
type Attributor struct {
	forecast      external.ForecastProvider
	alerts        external.AlertProvider
	concurrency   int
	timeout       time.Duration
	snowThreshold float64
	coverage      []BoundingBox
	clock         types.Clock
	metrics       AttributorMetrics
	logger        *slog.Logger
}

// NewAttributor creates an Attributor.
func NewAttributor(forecast external.ForecastProvider, alerts external.AlertProvider, cfg AttributorConfig) *Attributor {
	a := &Attributor{
		forecast:      forecast,
		alerts:        alerts,
		concurrency:   cfg.Concurrency,
		timeout:       cfg.ProviderTimeout,
		snowThreshold: DefaultSnowThresholdC,
		coverage:      cfg.Coverage,
		clock:         cfg.Clock,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
	}
	if a.concurrency <= 0 {
		a.concurrency = DefaultConcurrency
	}
	if a.timeout <= 0 {
		a.timeout = DefaultProviderTimeout
	}
	if cfg.SnowThresholdC != nil {
		a.snowThreshold = *cfg.SnowThresholdC
	}
	if a.coverage == nil {
		a.coverage = AlertCoverage
	}
	if a.clock == nil {
		a.clock = types.RealClock{}
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Enrich returns a copy of steps with ArrivalTime, Weather and Alerts set for
// the given departure. Any enrichment already present on the input is
// replaced.
//
// A step whose forecast or alerts cannot be fetched keeps that field unset;
// such failures are logged and never fail the batch. The only error returned
// is the context's.
func (a *Attributor) Enrich(ctx context.Context, steps []types.RouteStep, departure time.Time) ([]types.RouteStep, error) {
	start := time.Now()
	departure = departure.UTC()
	out := make([]types.RouteStep, len(steps))

	var g errgroup.Group
	g.SetLimit(a.concurrency)

	for i, step := range steps {
		arrival := step.Arrival(departure)
		out[i] = step.Bare()
		out[i].ArrivalTime = &arrival

		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			c := step.Place.Coordinates
			out[i].Weather = a.snapshot(ctx, c, arrival)
			out[i].Alerts = a.activeAlerts(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if a.metrics != nil {
		a.metrics.RecordEnrichDuration(ctx, len(steps), time.Since(start))
	}
	return out, nil
}

func (a *Attributor) snapshot(ctx context.Context, c types.Coordinates, arrival time.Time) *types.WeatherSnapshot {
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	series, err := a.forecast.HourlyForecast(cctx, c)
	if err != nil {
		if ctx.Err() == nil {
			a.logger.WarnContext(ctx, "forecast unavailable",
				"trip_id", types.GetTripID(ctx),
				"lat", c.Lat,
				"lng", c.Lng,
				"error", err,
			)
		}
		return nil
	}

	s, ok := BuildSnapshot(series, arrival, a.snowThreshold)
	if !ok {
		a.logger.DebugContext(ctx, "arrival beyond forecast horizon",
			"lat", c.Lat,
			"lng", c.Lng,
			"arrival", arrival,
		)
		return nil
	}
	return s
}

// activeAlerts returns nil when the provider fails and a non-nil slice
// otherwise.
func (a *Attributor) activeAlerts(ctx context.Context, c types.Coordinates) []types.Alert {
	if !Covered(a.coverage, c) {
		return []types.Alert{}
	}

	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	raw, err := a.alerts.ActiveAlerts(cctx, c)
	if err != nil {
		if ctx.Err() == nil {
			a.logger.WarnContext(ctx, "alerts unavailable",
				"trip_id", types.GetTripID(ctx),
				"lat", c.Lat,
				"lng", c.Lng,
				"error", err,
			)
		}
		return nil
	}
	return FilterAndRank(raw, a.clock.Now())
}

// FilterAndRank drops alerts that have expired by now and orders the rest
// from most to least severe, keeping provider order within a severity. The
// input is not modified.
func FilterAndRank(alerts []types.Alert, now time.Time) []types.Alert {
	out := make([]types.Alert, 0, len(alerts))
	for _, al := range alerts {
		if al.ExpiresAt.After(now) {
			out = append(out, al)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Rank() < out[j].Severity.Rank()
	})
	return out
}
