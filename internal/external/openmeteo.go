package external

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"roadcast/internal/types"
)

// openMeteoAPIBase is the default Open-Meteo API base URL.
const openMeteoAPIBase = "https://api.open-meteo.com"

const openMeteoHourlyVars = "temperature_2m,weather_code,precipitation_probability,rain,snowfall,wind_speed_10m"

// openMeteoPastDays pulls history so trailing accumulation windows and
// backwards scrubs near "now" still have data.
const openMeteoPastDays = 2

// OpenMeteoClientConfig holds the configuration for creating an OpenMeteoClient.
type OpenMeteoClientConfig struct {
	BaseURL string // Override for testing; defaults to openMeteoAPIBase
	Logger  *slog.Logger
}

// Null entries are legal in Open-Meteo series; they decode as nil.
type openMeteoResponse struct {
	Elevation float64 `json:"elevation"`
	Hourly    struct {
		Time                     []int64    `json:"time"`
		Temperature2m            []*float64 `json:"temperature_2m"`
		WeatherCode              []*float64 `json:"weather_code"`
		PrecipitationProbability []*float64 `json:"precipitation_probability"`
		Rain                     []*float64 `json:"rain"`
		Snowfall                 []*float64 `json:"snowfall"`
		WindSpeed10m             []*float64 `json:"wind_speed_10m"`
	} `json:"hourly"`
}

// OpenMeteoClient implements ForecastProvider against the Open-Meteo
// /v1/forecast endpoint.
type OpenMeteoClient struct {
	base    *BaseClient
	baseURL string
	logger  *slog.Logger
}

// NewOpenMeteoClient creates an OpenMeteoClient on top of base.
func NewOpenMeteoClient(base *BaseClient, cfg OpenMeteoClientConfig) *OpenMeteoClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openMeteoAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenMeteoClient{
		base:    base,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// HourlyForecast fetches 16 days of hourly data for c. Timestamps are UTC.
func (c *OpenMeteoClient) HourlyForecast(ctx context.Context, coord types.Coordinates) (*types.HourlySeries, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(coord.Lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(coord.Lng, 'f', -1, 64))
	q.Set("hourly", openMeteoHourlyVars)
	q.Set("forecast_days", "16")
	q.Set("past_days", strconv.Itoa(openMeteoPastDays))
	q.Set("timeformat", "unixtime")
	q.Set("timezone", "GMT")

	var resp openMeteoResponse
	if err := c.base.GetJSON(ctx, "hourly_forecast", c.baseURL+"/v1/forecast?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("open-meteo forecast: %w", err)
	}

	h := resp.Hourly
	n := len(h.Time)
	if n == 0 {
		c.logger.WarnContext(ctx, "open-meteo returned no hourly points",
			"lat", coord.Lat,
			"lng", coord.Lng,
		)
		return nil, types.NewAppError(types.ErrCodeUpstreamForecast, "open-meteo returned an empty series", nil)
	}

	series := &types.HourlySeries{
		Times:                    make([]time.Time, n),
		TemperatureC:             floats(h.Temperature2m, n),
		PrecipitationProbability: floats(h.PrecipitationProbability, n),
		RainMM:                   floats(h.Rain, n),
		SnowfallCM:               floats(h.Snowfall, n),
		WindSpeedKmh:             floats(h.WindSpeed10m, n),
		WeatherCode:              make([]int, n),
		ElevationM:               resp.Elevation,
	}
	for i, ts := range h.Time {
		series.Times[i] = time.Unix(ts, 0).UTC()
	}
	for i, v := range floats(h.WeatherCode, n) {
		series.WeatherCode[i] = int(v)
	}
	return series, nil
}

// floats flattens a nullable series to length n; nulls and missing tail
// entries become 0.
func floats(in []*float64, n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n && i < len(in); i++ {
		if in[i] != nil {
			out[i] = *in[i]
		}
	}
	return out
}
