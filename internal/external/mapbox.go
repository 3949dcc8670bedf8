package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"roadcast/internal/types"
)

// mapboxAPIBase is the default Mapbox API base URL.
const mapboxAPIBase = "https://api.mapbox.com"

// MapboxClientConfig holds the configuration for creating a MapboxClient.
type MapboxClientConfig struct {
	Token   types.SecretString
	BaseURL string // Override for testing; defaults to mapboxAPIBase
	Logger  *slog.Logger
}

type mapboxDirectionsResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Duration float64 `json:"duration"`
		Distance float64 `json:"distance"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

type mapboxGeocodeResponse struct {
	Features []struct {
		Text      string `json:"text"`
		PlaceName string `json:"place_name"`
	} `json:"features"`
}

// MapboxClient implements DirectionsProvider and ReverseGeocoder against the
// Mapbox Directions v5 and Geocoding v5 APIs.
type MapboxClient struct {
	base    *BaseClient
	token   types.SecretString
	baseURL string
	logger  *slog.Logger
}

// NewMapboxClient creates a MapboxClient on top of base.
func NewMapboxClient(base *BaseClient, cfg MapboxClientConfig) *MapboxClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = mapboxAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MapboxClient{
		base:    base,
		token:   cfg.Token,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Directions requests a driving route with full GeoJSON geometry.
func (c *MapboxClient) Directions(ctx context.Context, from, to types.Coordinates) (*types.DirectionsResult, error) {
	q := url.Values{}
	q.Set("geometries", "geojson")
	q.Set("overview", "full")
	q.Set("access_token", c.token.Unmask())

	endpoint := fmt.Sprintf("%s/directions/v5/mapbox/driving/%s;%s?%s",
		c.baseURL, lngLat(from), lngLat(to), q.Encode())

	var resp mapboxDirectionsResponse
	if err := c.base.GetJSON(ctx, "directions", endpoint, nil, &resp); err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			// Unroutable inputs come back as 4xx with a vendor code.
			var body mapboxDirectionsResponse
			if json.Unmarshal(se.Body, &body) == nil && isMapboxNoRoute(body.Code) {
				return nil, ErrNoRoute
			}
		}
		return nil, fmt.Errorf("mapbox directions: %w", err)
	}

	if resp.Code != "Ok" || len(resp.Routes) == 0 {
		c.logger.DebugContext(ctx, "mapbox returned no route",
			"code", resp.Code,
			"message", resp.Message,
		)
		return nil, ErrNoRoute
	}

	route := resp.Routes[0]
	path := make([]types.Coordinates, 0, len(route.Geometry.Coordinates))
	for _, pt := range route.Geometry.Coordinates {
		if len(pt) < 2 {
			continue
		}
		// GeoJSON positions are [lng, lat].
		path = append(path, types.Coordinates{Lat: pt[1], Lng: pt[0]})
	}
	if len(path) == 0 {
		path = []types.Coordinates{from, to}
	}

	return &types.DirectionsResult{
		Path:            path,
		DurationSeconds: route.Duration,
		DistanceMeters:  route.Distance,
	}, nil
}

// ReverseGeocode resolves c to the nearest place, locality or neighborhood.
func (c *MapboxClient) ReverseGeocode(ctx context.Context, coord types.Coordinates) (*types.Place, error) {
	q := url.Values{}
	q.Set("types", "place,locality,neighborhood")
	q.Set("limit", "1")
	q.Set("language", "en")
	q.Set("access_token", c.token.Unmask())

	endpoint := fmt.Sprintf("%s/geocoding/v5/mapbox.places/%s.json?%s",
		c.baseURL, lngLat(coord), q.Encode())

	var resp mapboxGeocodeResponse
	if err := c.base.GetJSON(ctx, "reverse_geocode", endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("mapbox reverse geocode: %w", err)
	}
	if len(resp.Features) == 0 || resp.Features[0].Text == "" {
		return nil, ErrPlaceNotFound
	}

	f := resp.Features[0]
	display := f.PlaceName
	if display == "" {
		display = f.Text
	}
	return &types.Place{
		ShortName:   f.Text,
		DisplayName: display,
		Coordinates: coord,
	}, nil
}

func isMapboxNoRoute(code string) bool {
	switch code {
	case "NoRoute", "NoSegment", "InvalidInput":
		return true
	}
	return false
}

func lngLat(c types.Coordinates) string {
	return strconv.FormatFloat(c.Lng, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lat, 'f', -1, 64)
}
