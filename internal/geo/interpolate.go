// Package geo implements the great-circle math used to sample a route path
// at an arbitrary fraction of its length.
package geo

import (
	"math"

	"roadcast/internal/types"
)

// EarthRadiusKm is the mean Earth radius used for haversine distances.
const EarthRadiusKm = 6371.0

// Haversine returns the great-circle distance between a and b in kilometres.
func Haversine(a, b types.Coordinates) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// CumulativeDistances returns the running haversine distance at each vertex.
// The first entry is always 0.
func CumulativeDistances(path []types.Coordinates) []float64 {
	if len(path) == 0 {
		return nil
	}
	cum := make([]float64, len(path))
	for i := 1; i < len(path); i++ {
		cum[i] = cum[i-1] + Haversine(path[i-1], path[i])
	}
	return cum
}

// Interpolate returns the point at fraction f of the path's great-circle
// length. f is clamped to [0, 1]. Within the enclosing segment the point is
// linearly interpolated in coordinate space. ok is false only for an empty path.
func Interpolate(path []types.Coordinates, f float64) (types.Coordinates, bool) {
	if len(path) == 0 {
		return types.Coordinates{}, false
	}
	if f <= 0 || len(path) == 1 {
		return path[0], true
	}
	if f >= 1 {
		return path[len(path)-1], true
	}

	cum := CumulativeDistances(path)
	total := cum[len(cum)-1]
	if total == 0 {
		return path[0], true
	}

	target := f * total
	for i := 1; i < len(cum); i++ {
		if cum[i] < target {
			continue
		}
		segment := cum[i] - cum[i-1]
		frac := 0.0
		if segment > 0 {
			frac = (target - cum[i-1]) / segment
		}
		a, b := path[i-1], path[i]
		return types.Coordinates{
			Lat: a.Lat + (b.Lat-a.Lat)*frac,
			Lng: a.Lng + (b.Lng-a.Lng)*frac,
		}, true
	}
	return path[len(path)-1], true
}
