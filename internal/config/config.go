// Package config defines the configuration structure for the roadcast service.
// Configuration is loaded once at process start and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> struct defaults (Lowest)
//
// Any invalid value causes startup to fail.
package config

import (
	"time"

	"roadcast/internal/types"
)

// SecretString is an alias for types.SecretString so provider credentials are
// never logged.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the roadcast service.
// Sub-components receive only the config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"roadcast-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Domain Configurations
	Server        ServerConfig
	Providers     ProvidersConfig
	Planning      PlanningConfig
	Weather       WeatherConfig
	Refresh       RefreshConfig
	Trips         TripsConfig
	Database      DatabaseConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"45s" validate:"gt=0"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ProvidersConfig selects and configures the directions, geocoding, forecast
// and alert vendors.
type ProvidersConfig struct {
	// Directions and reverse geocoding are served by the same vendor.
	// "stub" runs fully offline with synthetic data.
	DirectionsBackend string `envconfig:"DIRECTIONS_BACKEND" default:"mapbox" validate:"oneof=mapbox google stub"`

	MapboxToken      SecretString `envconfig:"MAPBOX_TOKEN" validate:"required_if=DirectionsBackend mapbox"`
	MapboxBaseURL    string       `envconfig:"MAPBOX_BASE_URL" default:"https://api.mapbox.com" validate:"url"`
	GoogleMapsAPIKey SecretString `envconfig:"GOOGLE_MAPS_API_KEY" validate:"required_if=DirectionsBackend google"`
	GoogleBaseURL    string       `envconfig:"GOOGLE_MAPS_BASE_URL"`

	OpenMeteoBaseURL string `envconfig:"OPEN_METEO_BASE_URL" default:"https://api.open-meteo.com" validate:"url"`
	NWSBaseURL       string `envconfig:"NWS_BASE_URL" default:"https://api.weather.gov" validate:"url"`
	// The NWS API rejects requests without an identifying User-Agent.
	NWSUserAgent string `envconfig:"NWS_USER_AGENT" default:"roadcast/1.0 (ops@roadcast.local)" validate:"required"`

	HTTPTimeout     time.Duration `envconfig:"PROVIDER_HTTP_TIMEOUT" default:"10s" validate:"gt=0"`
	ProviderTimeout time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"8s" validate:"gt=0"`
	MaxRetries      int           `envconfig:"PROVIDER_MAX_RETRIES" default:"2" validate:"min=0,max=5"`
}

// PlanningConfig holds route step planner settings.
type PlanningConfig struct {
	DefaultIntervalMinutes int `envconfig:"DEFAULT_SAMPLE_INTERVAL_MINUTES" default:"60" validate:"min=15,max=480"`
	GeocodeConcurrency     int `envconfig:"GEOCODE_CONCURRENCY" default:"4" validate:"min=1,max=32"`
}

// WeatherConfig holds attributor and provider cache settings.
type WeatherConfig struct {
	SnowThresholdC    float64       `envconfig:"SNOW_THRESHOLD_C" default:"2"`
	EnrichConcurrency int           `envconfig:"ENRICH_CONCURRENCY" default:"6" validate:"min=1,max=64"`
	ForecastCacheTTL  time.Duration `envconfig:"FORECAST_CACHE_TTL" default:"15m"`
	AlertCacheTTL     time.Duration `envconfig:"ALERT_CACHE_TTL" default:"5m"`
	PlaceCacheSize    int           `envconfig:"PLACE_CACHE_SIZE" default:"4096" validate:"min=1"`
	ForecastCacheSize int           `envconfig:"FORECAST_CACHE_SIZE" default:"1024" validate:"min=1"`
}

// RefreshConfig holds the refresh coordinator's debounce tuning.
type RefreshConfig struct {
	ScrubThresholdHours float64       `envconfig:"SCRUB_THRESHOLD_HOURS" default:"0.25" validate:"gt=0"`
	DebounceWindow      time.Duration `envconfig:"SCRUB_DEBOUNCE" default:"150ms" validate:"gt=0"`
	MaxScrubHours       float64       `envconfig:"MAX_SCRUB_HOURS" default:"36" validate:"gt=0"`
}

// TripsConfig holds in-memory trip session limits.
type TripsConfig struct {
	SessionTTL  time.Duration `envconfig:"TRIP_SESSION_TTL" default:"2h" validate:"gt=0"`
	MaxSessions int           `envconfig:"TRIP_MAX_SESSIONS" default:"1000" validate:"min=1"`
}

// DatabaseConfig holds the optional Postgres place cache connection.
// When URL is empty the place cache is memory-only.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"omitempty,url"`

	// Tuning Parameters
	MaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int32         `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Roadcast"`
	AWSRegion       string `envconfig:"AWS_REGION" default:"us-east-1"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrDotenv indicates an explicitly requested .env file could not be read.
	ErrDotenv ConfigErrorType = "DOTENV_FAILED"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
