package weather

import (
	"sort"
	"time"

	"roadcast/internal/types"
)

// ArrivalIndex returns the first series index whose timestamp is at or after
// arrival truncated to the hour, or -1 when the series ends before it.
func ArrivalIndex(h *types.HourlySeries, arrival time.Time) int {
	n := h.Len()
	target := arrival.UTC().Truncate(time.Hour)
	i := sort.Search(n, func(i int) bool { return !h.Times[i].Before(target) })
	if i == n {
		return -1
	}
	return i
}

// BuildSnapshot reshapes the series into the multi-horizon profile anchored
// at arrival. It reports false when the series does not reach arrival.
func BuildSnapshot(h *types.HourlySeries, arrival time.Time, snowThresholdC float64) (*types.WeatherSnapshot, bool) {
	idx := ArrivalIndex(h, arrival)
	if idx < 0 {
		return nil, false
	}

	rain, snow := splitAt(h, idx, snowThresholdC)
	code := h.WeatherCode[idx]
	s := &types.WeatherSnapshot{
		ForecastTime:    h.Times[idx],
		TemperatureC:    h.TemperatureC[idx],
		WeatherCode:     code,
		Condition:       types.ConditionFromWMO(code),
		Description:     types.DescribeWMO(code),
		RainProbability: rain,
		SnowProbability: snow,
		WindSpeedKmh:    h.WindSpeedKmh[idx],
		ElevationM:      h.ElevationM,
		Accumulations:   make([]types.PrecipAccumulation, 0, len(AccumulationWindows)),
		Before:          make([]types.PrecipOutlook, 0, len(OutlookOffsets)),
		After:           make([]types.PrecipOutlook, 0, len(OutlookOffsets)),
	}

	for _, w := range AccumulationWindows {
		s.Accumulations = append(s.Accumulations, accumulate(h, idx, w))
	}
	for _, k := range OutlookOffsets {
		r, sn := splitAt(h, idx-k, snowThresholdC)
		s.Before = append(s.Before, types.PrecipOutlook{OffsetHours: -k, RainProbability: r, SnowProbability: sn})
	}
	for _, k := range OutlookOffsets {
		r, sn := splitAt(h, idx+k, snowThresholdC)
		s.After = append(s.After, types.PrecipOutlook{OffsetHours: k, RainProbability: r, SnowProbability: sn})
	}
	return s, true
}
