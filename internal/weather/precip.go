package weather

import (
	"math"

	"roadcast/internal/types"
)

// DefaultSnowThresholdC is the temperature at or below which precipitation
// with no modelled amount is attributed to snow.
const DefaultSnowThresholdC = 2.0

// Trailing accumulation windows, in hours before arrival.
var AccumulationWindows = []int{1, 2, 4, 12}

// Outlook offsets, in hours either side of arrival.
var OutlookOffsets = []int{4, 8, 12}

// SplitPrecip divides a precipitation probability between rain and snow.
//
// Amounts decide the split when present: a single kind takes the whole
// probability and a mix is split proportionally, each side rounded. With a
// probability but no modelled amount, temp decides.
func SplitPrecip(prob, rainMM, snowCM, tempC, snowThresholdC float64) (rainProb, snowProb int) {
	if prob <= 0 {
		return 0, 0
	}
	p := int(math.Round(prob))

	switch {
	case snowCM > 0 && rainMM <= 0:
		return 0, p
	case rainMM > 0 && snowCM <= 0:
		return p, 0
	case rainMM > 0 && snowCM > 0:
		total := rainMM + snowCM
		return int(math.Round(prob * rainMM / total)), int(math.Round(prob * snowCM / total))
	case tempC <= snowThresholdC:
		return 0, p
	default:
		return p, 0
	}
}

// splitAt applies SplitPrecip at series index i. Out-of-range indices yield
// (0, 0).
func splitAt(h *types.HourlySeries, i int, snowThresholdC float64) (int, int) {
	if i < 0 || i >= h.Len() {
		return 0, 0
	}
	return SplitPrecip(h.PrecipitationProbability[i], h.RainMM[i], h.SnowfallCM[i], h.TemperatureC[i], snowThresholdC)
}

// accumulate sums rain and snowfall over [idx-window, idx), clamped at the
// start of the series.
func accumulate(h *types.HourlySeries, idx, window int) types.PrecipAccumulation {
	var rain, snow float64
	for i := max(0, idx-window); i < idx && i < h.Len(); i++ {
		rain += h.RainMM[i]
		snow += h.SnowfallCM[i]
	}
	return types.PrecipAccumulation{
		WindowHours: window,
		RainMM:      round1(rain),
		SnowfallCM:  round1(snow),
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
