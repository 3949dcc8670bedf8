package weather

import "roadcast/internal/types"

// BoundingBox is an inclusive latitude/longitude rectangle.
type BoundingBox struct {
	Name   string
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// Contains reports whether c lies inside the box, edges included.
func (b BoundingBox) Contains(c types.Coordinates) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat && c.Lng >= b.MinLng && c.Lng <= b.MaxLng
}

// AlertCoverage approximates the area served by the NWS alerts API.
var AlertCoverage = []BoundingBox{
	{Name: "conus", MinLat: 24, MaxLat: 49, MinLng: -125, MaxLng: -66},
	{Name: "alaska", MinLat: 51, MaxLat: 72, MinLng: -180, MaxLng: -130},
	{Name: "hawaii", MinLat: 18, MaxLat: 23, MinLng: -161, MaxLng: -154},
}

// Covered reports whether any box contains c.
func Covered(boxes []BoundingBox, c types.Coordinates) bool {
	for _, b := range boxes {
		if b.Contains(c) {
			return true
		}
	}
	return false
}
