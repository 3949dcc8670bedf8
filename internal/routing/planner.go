// Package routing turns a driving route into an ordered list of named route
// steps sampled at even time intervals, and splices manual stops into an
// existing list.
package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"roadcast/internal/external"
	"roadcast/internal/geo"
	"roadcast/internal/types"
)

// DefaultGeocodeConcurrency bounds concurrent reverse-geocoding calls per plan.
const DefaultGeocodeConcurrency = 4

// Reasons reported with a skipped sample.
const (
	SkipReasonNoGeometry = "no_geometry"
	SkipReasonNotFound   = "not_found"
	SkipReasonFailed     = "failed"
	SkipReasonDuplicate  = "duplicate"
)

// PlannerMetrics records planner outcomes that are recovered locally.
type PlannerMetrics interface {
	RecordResolutionSkipped(ctx context.Context, reason string)
}

// PlannerConfig holds the configuration for creating a Planner.
type PlannerConfig struct {
	GeocodeConcurrency int
	Metrics            PlannerMetrics // optional
	Logger             *slog.Logger
}

// Planner builds route steps from a directions path and reverse geocoding.
type Planner struct {
	directions  external.DirectionsProvider
	geocoder    external.ReverseGeocoder
	concurrency int
	metrics     PlannerMetrics
	logger      *slog.Logger
}

// NewPlanner creates a Planner.
func NewPlanner(directions external.DirectionsProvider, geocoder external.ReverseGeocoder, cfg PlannerConfig) *Planner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.GeocodeConcurrency
	if concurrency <= 0 {
		concurrency = DefaultGeocodeConcurrency
	}
	return &Planner{
		directions:  directions,
		geocoder:    geocoder,
		concurrency: concurrency,
		metrics:     cfg.Metrics,
		logger:      logger,
	}
}

// candidate is an interior sample awaiting reverse geocoding.
type candidate struct {
	offset float64
	coord  types.Coordinates
	ok     bool
	place  *types.Place
	err    error
}

// Plan requests a route from origin to destination and samples it every
// SampleIntervalMinutes of driving time.
//
// The result always starts with the origin at offset 0 and ends with the
// destination. Interior samples that cannot be named, or that resolve to the
// same short name as the preceding step or as a destination they would
// precede, are dropped. A missing route fails
// the whole plan with route_unavailable.
func (p *Planner) Plan(ctx context.Context, params types.RoutePlanParams) ([]types.RouteStep, error) {
	if err := types.ValidateSampleInterval(params.SampleIntervalMinutes); err != nil {
		return nil, err
	}

	res, err := p.directions.Directions(ctx, params.Origin.Coordinates, params.Destination.Coordinates)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, routeUnavailable(params.Origin, params.Destination, err)
	}

	totalHours := res.DurationHours()
	intervalHours := params.SampleIntervalHours()
	stepCount := max(2, int(math.Ceil(totalHours/intervalHours))+1)

	var candidates []*candidate
	for i := 1; i <= stepCount-2; i++ {
		offset := float64(i) * intervalHours
		if offset >= totalHours {
			break
		}
		coord, ok := geo.Interpolate(res.Path, offset/totalHours)
		candidates = append(candidates, &candidate{offset: offset, coord: coord, ok: ok})
	}

	p.resolve(ctx, candidates)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	steps := make([]types.RouteStep, 0, len(candidates)+2)
	steps = append(steps, types.RouteStep{Place: params.Origin, TimeOffsetHours: 0})

	var lastKept *candidate
	for _, c := range candidates {
		prev := steps[len(steps)-1]
		switch {
		case !c.ok:
			p.skip(ctx, c, SkipReasonNoGeometry)
		case errors.Is(c.err, external.ErrPlaceNotFound):
			p.skip(ctx, c, SkipReasonNotFound)
		case c.err != nil:
			p.skip(ctx, c, SkipReasonFailed)
		case c.place.ShortName == prev.Place.ShortName:
			p.skip(ctx, c, SkipReasonDuplicate)
		default:
			steps = append(steps, types.RouteStep{Place: *c.place, TimeOffsetHours: c.offset})
			lastKept = c
		}
	}

	// The destination always ends the route, so a final sample that shares
	// its name gives way to it.
	if lastKept != nil && steps[len(steps)-1].Place.ShortName == params.Destination.ShortName {
		steps = steps[:len(steps)-1]
		p.skip(ctx, lastKept, SkipReasonDuplicate)
	}

	destOffset := math.Max(round1(totalHours), steps[len(steps)-1].TimeOffsetHours)
	steps = append(steps, types.RouteStep{Place: params.Destination, TimeOffsetHours: destOffset})

	p.logger.DebugContext(ctx, "route planned",
		"duration_hours", totalHours,
		"distance_km", res.DistanceMeters/1000,
		"candidates", len(candidates),
		"steps", len(steps),
	)
	return steps, nil
}

// resolve reverse-geocodes every candidate concurrently. Results are written
// by index; workers never fail the group so one bad sample cannot cancel
// its siblings.
func (p *Planner) resolve(ctx context.Context, candidates []*candidate) {
	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for _, c := range candidates {
		if !c.ok {
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				c.err = ctx.Err()
				return nil
			}
			c.place, c.err = p.geocoder.ReverseGeocode(ctx, c.coord)
			if c.err == nil && c.place == nil {
				c.err = external.ErrPlaceNotFound
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Planner) skip(ctx context.Context, c *candidate, reason string) {
	attrs := []any{
		"offset_hours", c.offset,
		"lat", c.coord.Lat,
		"lng", c.coord.Lng,
		"reason", reason,
	}
	if c.err != nil && reason != SkipReasonNotFound {
		attrs = append(attrs, "error", c.err)
	}
	p.logger.DebugContext(ctx, "sample skipped", attrs...)
	if p.metrics != nil {
		p.metrics.RecordResolutionSkipped(ctx, reason)
	}
}

func routeUnavailable(from, to types.Place, err error) *types.AppError {
	msg := fmt.Sprintf("no drivable route from %s to %s", from.ShortName, to.ShortName)
	if !errors.Is(err, external.ErrNoRoute) {
		msg = fmt.Sprintf("directions unavailable from %s to %s", from.ShortName, to.ShortName)
	}
	return types.NewAppError(types.ErrCodeRouteUnavailable, msg, err)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
