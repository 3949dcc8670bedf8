package weather

import (
	"testing"
	"time"

	"roadcast/internal/types"
)

var seriesStart = time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)

func TestArrivalIndex(t *testing.T) {
	h := hourlySeries(seriesStart, 48, 0, 0)

	tests := []struct {
		name    string
		arrival time.Time
		want    int
	}{
		{"on the hour", seriesStart.Add(5 * time.Hour), 5},
		{"mid hour truncates", seriesStart.Add(5*time.Hour + 40*time.Minute), 5},
		{"before series", seriesStart.Add(-3 * time.Hour), 0},
		{"last point", seriesStart.Add(47*time.Hour + 59*time.Minute), 47},
		{"beyond horizon", seriesStart.Add(48 * time.Hour), -1},
		{"non-UTC arrival", seriesStart.Add(5 * time.Hour).In(time.FixedZone("MST", -7*3600)), 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ArrivalIndex(h, tt.arrival); got != tt.want {
				t.Errorf("ArrivalIndex = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBuildSnapshot(t *testing.T) {
	h := hourlySeries(seriesStart, 48, 0, 0)
	h.ElevationM = 2750
	idx := 20
	h.TemperatureC[idx] = -3.5
	h.WeatherCode[idx] = 73
	h.PrecipitationProbability[idx] = 80
	h.RainMM[idx] = 3
	h.SnowfallCM[idx] = 1
	h.WindSpeedKmh[idx] = 22
	h.PrecipitationProbability[idx-8] = 40 // warm, no amounts: rain
	h.PrecipitationProbability[idx+12] = 90
	h.SnowfallCM[idx+12] = 2

	s, ok := BuildSnapshot(h, seriesStart.Add(20*time.Hour+15*time.Minute), DefaultSnowThresholdC)
	if !ok {
		t.Fatal("expected a snapshot")
	}

	if !s.ForecastTime.Equal(h.Times[idx]) {
		t.Errorf("forecast time = %v", s.ForecastTime)
	}
	if s.TemperatureC != -3.5 || s.WindSpeedKmh != 22 || s.ElevationM != 2750 {
		t.Errorf("instantaneous values = %+v", s)
	}
	if s.Condition != types.ConditionSnow || s.Description != "Moderate snow" {
		t.Errorf("condition = %q %q", s.Condition, s.Description)
	}
	if s.RainProbability != 60 || s.SnowProbability != 20 {
		t.Errorf("split = %d/%d, want 60/20", s.RainProbability, s.SnowProbability)
	}

	wantBefore := []types.PrecipOutlook{{OffsetHours: -4, RainProbability: 0, SnowProbability: 0}, {OffsetHours: -8, RainProbability: 40, SnowProbability: 0}, {OffsetHours: -12, RainProbability: 0, SnowProbability: 0}}
	wantAfter := []types.PrecipOutlook{{OffsetHours: 4, RainProbability: 0, SnowProbability: 0}, {OffsetHours: 8, RainProbability: 0, SnowProbability: 0}, {OffsetHours: 12, RainProbability: 0, SnowProbability: 90}}
	for i := range wantBefore {
		if s.Before[i] != wantBefore[i] {
			t.Errorf("Before[%d] = %+v, want %+v", i, s.Before[i], wantBefore[i])
		}
		if s.After[i] != wantAfter[i] {
			t.Errorf("After[%d] = %+v, want %+v", i, s.After[i], wantAfter[i])
		}
	}

	if len(s.Accumulations) != len(AccumulationWindows) {
		t.Fatalf("accumulations = %+v", s.Accumulations)
	}
	for i, acc := range s.Accumulations {
		if acc.WindowHours != AccumulationWindows[i] {
			t.Errorf("window[%d] = %d", i, acc.WindowHours)
		}
		// The arrival hour itself is excluded from every window.
		if acc.RainMM != 0 || acc.SnowfallCM != 0 {
			t.Errorf("window %dh = %+v, want zero", acc.WindowHours, acc)
		}
	}
}

func TestBuildSnapshot_OutlooksOutOfRange(t *testing.T) {
	h := hourlySeries(seriesStart, 6, 0, 0)
	for i := range h.PrecipitationProbability {
		h.PrecipitationProbability[i] = 50
	}

	s, ok := BuildSnapshot(h, seriesStart.Add(2*time.Hour), DefaultSnowThresholdC)
	if !ok {
		t.Fatal("expected a snapshot")
	}
	for _, o := range append(s.Before, s.After...) {
		if o.RainProbability != 0 || o.SnowProbability != 0 {
			t.Errorf("out-of-range outlook %+v should be zero", o)
		}
	}
}

func TestBuildSnapshot_BeyondHorizon(t *testing.T) {
	h := hourlySeries(seriesStart, 6, 0, 0)
	if s, ok := BuildSnapshot(h, seriesStart.Add(7*time.Hour), DefaultSnowThresholdC); ok || s != nil {
		t.Errorf("expected no snapshot, got %+v", s)
	}
}
