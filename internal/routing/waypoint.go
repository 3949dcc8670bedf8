package routing

import (
	"context"
	"log/slog"
	"sort"

	"roadcast/internal/external"
	"roadcast/internal/types"
)

// Inserter splices a manually chosen stop into an existing route.
type Inserter struct {
	directions external.DirectionsProvider
	logger     *slog.Logger
}

// NewInserter creates an Inserter.
func NewInserter(directions external.DirectionsProvider, logger *slog.Logger) *Inserter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inserter{directions: directions, logger: logger}
}

// Insert places p on route at its driving time from origin.
//
// The returned slice is new; route is not modified. The inserted step has no
// weather or alerts attached. Steps with an equal offset keep their position
// ahead of the new stop.
func (in *Inserter) Insert(ctx context.Context, route []types.RouteStep, origin, p types.Place) ([]types.RouteStep, error) {
	res, err := in.directions.Directions(ctx, origin.Coordinates, p.Coordinates)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, routeUnavailable(origin, p, err)
	}

	step := types.RouteStep{
		Place:            p,
		TimeOffsetHours:  res.DurationHours(),
		IsManualWaypoint: true,
	}

	out := append(types.CloneSteps(route), step)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TimeOffsetHours < out[j].TimeOffsetHours
	})

	in.logger.DebugContext(ctx, "waypoint inserted",
		"place", p.ShortName,
		"offset_hours", step.TimeOffsetHours,
		"steps", len(out),
	)
	return out, nil
}
