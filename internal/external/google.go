package external

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"roadcast/internal/types"

	"googlemaps.github.io/maps"
)

// GoogleMapsClientConfig holds the configuration for creating a GoogleMapsClient.
type GoogleMapsClientConfig struct {
	APIKey     types.SecretString
	BaseURL    string // Override for testing; empty uses the library default
	HTTPClient *http.Client
	Observer   CallObserver
	Logger     *slog.Logger
}

// GoogleMapsClient implements DirectionsProvider and ReverseGeocoder using
// the Google Maps Platform client library.
type GoogleMapsClient struct {
	client   *maps.Client
	observer CallObserver
	logger   *slog.Logger
}

// NewGoogleMapsClient creates a GoogleMapsClient. It fails only when the
// library rejects the options (e.g. an empty API key).
func NewGoogleMapsClient(cfg GoogleMapsClientConfig) (*GoogleMapsClient, error) {
	opts := []maps.ClientOption{maps.WithAPIKey(cfg.APIKey.Unmask())}
	if cfg.HTTPClient != nil {
		opts = append(opts, maps.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, maps.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")))
	}

	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating google maps client: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GoogleMapsClient{client: client, observer: cfg.Observer, logger: logger}, nil
}

// Directions requests a driving route and decodes its overview polyline.
func (c *GoogleMapsClient) Directions(ctx context.Context, from, to types.Coordinates) (res *types.DirectionsResult, err error) {
	defer c.observe(ctx, "directions", time.Now(), &err)

	routes, _, err := c.client.Directions(ctx, &maps.DirectionsRequest{
		Origin:      latLng(from),
		Destination: latLng(to),
		Mode:        maps.TravelModeDriving,
	})
	if err != nil {
		if isGoogleNoResults(err) {
			return nil, ErrNoRoute
		}
		return nil, types.NewAppError(types.ErrCodeUpstreamDirections, "google directions request failed", err)
	}
	if len(routes) == 0 {
		return nil, ErrNoRoute
	}

	route := routes[0]
	var seconds, meters float64
	for _, leg := range route.Legs {
		seconds += leg.Duration.Seconds()
		meters += float64(leg.Distance.Meters)
	}

	decoded, decErr := route.OverviewPolyline.Decode()
	if decErr != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamDirections, "google returned an undecodable polyline", decErr)
	}
	path := make([]types.Coordinates, 0, len(decoded))
	for _, ll := range decoded {
		path = append(path, types.Coordinates{Lat: ll.Lat, Lng: ll.Lng})
	}
	if len(path) == 0 {
		path = []types.Coordinates{from, to}
	}

	return &types.DirectionsResult{
		Path:            path,
		DurationSeconds: seconds,
		DistanceMeters:  meters,
	}, nil
}

// ReverseGeocode resolves c to the locality containing it.
func (c *GoogleMapsClient) ReverseGeocode(ctx context.Context, coord types.Coordinates) (p *types.Place, err error) {
	defer c.observe(ctx, "reverse_geocode", time.Now(), &err)

	results, err := c.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng:     &maps.LatLng{Lat: coord.Lat, Lng: coord.Lng},
		ResultType: []string{"locality"},
		Language:   "en",
	})
	if err != nil {
		if isGoogleNoResults(err) {
			return nil, ErrPlaceNotFound
		}
		return nil, types.NewAppError(types.ErrCodeUpstreamGeocoding, "google reverse geocode failed", err)
	}

	for _, r := range results {
		for _, comp := range r.AddressComponents {
			if hasType(comp.Types, "locality") && comp.LongName != "" {
				return &types.Place{
					ShortName:   comp.LongName,
					DisplayName: r.FormattedAddress,
					Coordinates: coord,
				}, nil
			}
		}
	}
	return nil, ErrPlaceNotFound
}

func (c *GoogleMapsClient) observe(ctx context.Context, op string, start time.Time, err *error) {
	if c.observer != nil {
		c.observer.ObserveCall(ctx, types.ProviderGoogle, op, time.Since(start), *err)
	}
}

// googleNotFoundPrefix starts the library's error for a NOT_FOUND status.
// The error is built with fmt.Errorf from the response status, so the text
// is the only signal. ZERO_RESULTS is not an error; it arrives as an empty
// result list.
const googleNotFoundPrefix = "maps: NOT_FOUND "

// isGoogleNoResults reports whether err is the status error for an
// origin, destination or point Google could not resolve.
func isGoogleNoResults(err error) bool {
	return strings.HasPrefix(err.Error(), googleNotFoundPrefix)
}

func hasType(ts []string, want string) bool {
	for _, t := range ts {
		if t == want {
			return true
		}
	}
	return false
}

func latLng(c types.Coordinates) string {
	return fmt.Sprintf("%f,%f", c.Lat, c.Lng)
}
