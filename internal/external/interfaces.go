package external

import (
	"context"
	"errors"

	"roadcast/internal/types"
)

var (
	// ErrNoRoute is returned by a DirectionsProvider when no drivable path
	// exists between the two coordinates.
	ErrNoRoute = errors.New("no drivable route")

	// ErrPlaceNotFound is returned by a ReverseGeocoder when there is no
	// named place near the coordinate.
	ErrPlaceNotFound = errors.New("no place found")
)

// DirectionsProvider computes a driving path between two coordinates.
type DirectionsProvider interface {
	Directions(ctx context.Context, from, to types.Coordinates) (*types.DirectionsResult, error)
}

// ReverseGeocoder resolves a coordinate to the nearest named place. The
// returned Place carries the queried coordinate, not the place centroid.
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, c types.Coordinates) (*types.Place, error)
}

// ForecastProvider returns an hourly forecast series for a coordinate.
// The series covers at least 16 days ahead.
type ForecastProvider interface {
	HourlyForecast(ctx context.Context, c types.Coordinates) (*types.HourlySeries, error)
}

// AlertProvider returns the active hazard alerts for a coordinate as
// reported by the vendor, unfiltered and unsorted.
type AlertProvider interface {
	ActiveAlerts(ctx context.Context, c types.Coordinates) ([]types.Alert, error)
}

// PlaceStore is a persistent cache of reverse-geocoding results keyed by a
// rounded coordinate. Get returns (nil, nil) on a miss.
type PlaceStore interface {
	GetPlace(ctx context.Context, key string) (*types.Place, error)
	PutPlace(ctx context.Context, key string, p types.Place) error
}
