package types

import "time"

// WeatherSnapshot is the multi-horizon weather profile attached to a route
// step, anchored to the step's arrival time. All values are metric.
type WeatherSnapshot struct {
	ForecastTime    time.Time            `json:"forecast_time"`
	TemperatureC    float64              `json:"temperature_c"`
	WeatherCode     int                  `json:"weather_code"`
	Condition       Condition            `json:"condition"`
	Description     string               `json:"description"`
	RainProbability int                  `json:"rain_probability"`
	SnowProbability int                  `json:"snow_probability"`
	WindSpeedKmh    float64              `json:"wind_speed_kmh"`
	ElevationM      float64              `json:"elevation_m"`
	Accumulations   []PrecipAccumulation `json:"accumulations"`
	Before          []PrecipOutlook      `json:"before"`
	After           []PrecipOutlook      `json:"after"`
}

// PrecipAccumulation is the precipitation summed over a trailing window
// ending at the arrival hour.
type PrecipAccumulation struct {
	WindowHours int     `json:"window_hours"`
	RainMM      float64 `json:"rain_mm"`
	SnowfallCM  float64 `json:"snowfall_cm"`
}

// PrecipOutlook holds the rain/snow probability split at a fixed offset from
// the arrival hour. Negative offsets are before arrival.
type PrecipOutlook struct {
	OffsetHours     int `json:"offset_hours"`
	RainProbability int `json:"rain_probability"`
	SnowProbability int `json:"snow_probability"`
}

// HourlySeries is an hourly forecast aligned by index. Every slice has the
// same length as Times.
type HourlySeries struct {
	Times                    []time.Time
	TemperatureC             []float64
	WeatherCode              []int
	PrecipitationProbability []float64
	RainMM                   []float64
	SnowfallCM               []float64
	WindSpeedKmh             []float64
	ElevationM               float64
}

// Len returns the number of hourly points usable across all series.
func (h *HourlySeries) Len() int {
	n := len(h.Times)
	for _, l := range []int{
		len(h.TemperatureC),
		len(h.WeatherCode),
		len(h.PrecipitationProbability),
		len(h.RainMM),
		len(h.SnowfallCM),
		len(h.WindSpeedKmh),
	} {
		if l < n {
			n = l
		}
	}
	return n
}
