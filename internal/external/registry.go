package external

import (
	"fmt"
	"log/slog"
	"net/http"

	"roadcast/internal/config"
	"roadcast/internal/types"
)

// ProviderRegistry holds every vendor client the core consumes. It is the
// single place where configuration picks implementations and stacks the
// caching decorators.
type ProviderRegistry struct {
	Directions DirectionsProvider
	Geocoder   ReverseGeocoder
	Forecast   ForecastProvider
	Alerts     AlertProvider
}

// RegistryOption is a functional option for configuring a ProviderRegistry.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	placeStore PlaceStore
	observer   CallObserver
	httpClient *http.Client
	clock      types.Clock
}

// WithPlaceStore backs the reverse-geocoding cache with persistent storage.
func WithPlaceStore(s PlaceStore) RegistryOption {
	return func(rc *registryConfig) { rc.placeStore = s }
}

// WithCallObserver reports provider call latency and failures.
func WithCallObserver(o CallObserver) RegistryOption {
	return func(rc *registryConfig) { rc.observer = o }
}

// WithHTTPClient overrides the HTTP client shared by all providers.
func WithHTTPClient(c *http.Client) RegistryOption {
	return func(rc *registryConfig) { rc.httpClient = c }
}

// WithClock overrides the clock used by stub providers.
func WithClock(c types.Clock) RegistryOption {
	return func(rc *registryConfig) { rc.clock = c }
}

// NewProviderRegistry builds the providers selected by cfg.Providers.
func NewProviderRegistry(cfg *config.Config, logger *slog.Logger, opts ...RegistryOption) (*ProviderRegistry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rc := &registryConfig{clock: types.RealClock{}}
	for _, opt := range opts {
		opt(rc)
	}
	if rc.httpClient == nil {
		rc.httpClient = &http.Client{Timeout: cfg.Providers.HTTPTimeout}
	}

	p := cfg.Providers
	policy := DefaultRetryPolicy()
	policy.MaxRetries = p.MaxRetries

	newBase := func(provider, userAgent string) *BaseClient {
		var bopts []BaseClientOption
		if rc.observer != nil {
			bopts = append(bopts, WithObserver(rc.observer))
		}
		return NewBaseClient(rc.httpClient, provider, policy, userAgent, bopts...)
	}
	userAgent := fmt.Sprintf("%s/%s", cfg.Service, cfg.Build.Version)

	reg := &ProviderRegistry{}
	var geocoder ReverseGeocoder

	switch p.DirectionsBackend {
	case "stub":
		stubLogger := logger.With("mode", "stub")
		logger.Info("initializing providers in STUB mode")
		reg.Directions = NewStubDirections(stubLogger)
		geocoder = NewStubGeocoder(stubLogger)
		reg.Forecast = NewStubForecast(rc.clock, stubLogger)
		reg.Alerts = StubAlerts{}
		reg.Geocoder = geocoder
		return reg, nil

	case "google":
		gm, err := NewGoogleMapsClient(GoogleMapsClientConfig{
			APIKey:     p.GoogleMapsAPIKey,
			BaseURL:    p.GoogleBaseURL,
			HTTPClient: rc.httpClient,
			Observer:   rc.observer,
			Logger:     logger.With("client", types.ProviderGoogle),
		})
		if err != nil {
			return nil, err
		}
		reg.Directions = gm
		geocoder = gm

	default:
		mb := NewMapboxClient(newBase(types.ProviderMapbox, userAgent), MapboxClientConfig{
			Token:   p.MapboxToken,
			BaseURL: p.MapboxBaseURL,
			Logger:  logger.With("client", types.ProviderMapbox),
		})
		reg.Directions = mb
		geocoder = mb
	}

	reg.Geocoder = NewCachedReverseGeocoder(geocoder, rc.placeStore, cfg.Weather.PlaceCacheSize,
		logger.With("component", "place_cache"))

	forecast := NewOpenMeteoClient(newBase(types.ProviderOpenMeteo, userAgent), OpenMeteoClientConfig{
		BaseURL: p.OpenMeteoBaseURL,
		Logger:  logger.With("client", types.ProviderOpenMeteo),
	})
	reg.Forecast = NewCachedForecastProvider(forecast, cfg.Weather.ForecastCacheSize,
		cfg.Weather.ForecastCacheTTL, p.ProviderTimeout)

	alerts := NewNWSClient(newBase(types.ProviderNWS, p.NWSUserAgent), NWSClientConfig{
		BaseURL: p.NWSBaseURL,
		Logger:  logger.With("client", types.ProviderNWS),
	})
	reg.Alerts = NewCachedAlertProvider(alerts, cfg.Weather.ForecastCacheSize,
		cfg.Weather.AlertCacheTTL, p.ProviderTimeout)

	logger.Info("initialized providers",
		"directions", p.DirectionsBackend,
		"place_store", rc.placeStore != nil,
	)
	return reg, nil
}
