package types

import (
	"time"
)

// Coordinates is a geographic point in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}

// Place is a named location. Places are produced by geocoding or reverse
// geocoding and are never modified after creation.
type Place struct {
	ShortName   string      `json:"short_name" validate:"required,max=200"`
	DisplayName string      `json:"display_name" validate:"required,max=500"`
	Coordinates Coordinates `json:"coordinates" validate:"required"`
}

// RouteStep is one waypoint of a planned journey.
//
// Alerts distinguishes "not fetched" (nil) from "fetched, none active"
// (non-nil, empty). Weather is nil when no forecast covers the arrival time
// or the forecast provider failed for this step.
type RouteStep struct {
	Place            Place            `json:"place"`
	TimeOffsetHours  float64          `json:"time_offset_hours"`
	ArrivalTime      *time.Time       `json:"arrival_time,omitempty"`
	Weather          *WeatherSnapshot `json:"weather,omitempty"`
	Alerts           []Alert          `json:"alerts,omitempty"`
	IsManualWaypoint bool             `json:"is_manual_waypoint"`
}

// Arrival returns the arrival time for the step given a departure time.
func (s RouteStep) Arrival(departure time.Time) time.Time {
	return departure.Add(time.Duration(s.TimeOffsetHours * float64(time.Hour)))
}

// Bare returns a copy of the step with all enrichment stripped.
func (s RouteStep) Bare() RouteStep {
	return RouteStep{
		Place:            s.Place,
		TimeOffsetHours:  s.TimeOffsetHours,
		IsManualWaypoint: s.IsManualWaypoint,
	}
}

// CloneSteps returns a copy of steps that shares no slices with the input.
// Snapshots and alerts are treated as immutable values once attached, so
// their pointers are shared.
func CloneSteps(steps []RouteStep) []RouteStep {
	if steps == nil {
		return nil
	}
	out := make([]RouteStep, len(steps))
	for i, s := range steps {
		out[i] = s
		if s.Alerts != nil {
			out[i].Alerts = append(make([]Alert, 0, len(s.Alerts)), s.Alerts...)
		}
	}
	return out
}

// RoutePlanParams is the input contract of the route step planner.
type RoutePlanParams struct {
	Origin                Place `json:"origin" validate:"required"`
	Destination           Place `json:"destination" validate:"required"`
	SampleIntervalMinutes int   `json:"sample_interval_minutes" validate:"min=15,max=480"`
}

// SampleIntervalHours returns the sampling interval in hours.
func (p RoutePlanParams) SampleIntervalHours() float64 {
	return float64(p.SampleIntervalMinutes) / 60.0
}

// Alert is an active hazard record for a location.
type Alert struct {
	ID          string    `json:"id"`
	Event       string    `json:"event"`
	Severity    Severity  `json:"severity"`
	Urgency     string    `json:"urgency"`
	Headline    string    `json:"headline"`
	Description string    `json:"description,omitempty"`
	Instruction string    `json:"instruction,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// RelevantAt reports whether the alert is still in force at t.
func (a Alert) RelevantAt(t time.Time) bool {
	return a.ExpiresAt.After(t)
}

// RelevantAlerts returns the alerts still in force at arrival, preserving order.
// It is evaluated on every call so a changed arrival time is always honored.
func RelevantAlerts(alerts []Alert, arrival time.Time) []Alert {
	out := make([]Alert, 0, len(alerts))
	for _, a := range alerts {
		if a.RelevantAt(arrival) {
			out = append(out, a)
		}
	}
	return out
}

// DirectionsResult is a driving path returned by a directions provider.
type DirectionsResult struct {
	Path            []Coordinates
	DurationSeconds float64
	DistanceMeters  float64
}

// DurationHours returns the driving duration in hours.
func (d DirectionsResult) DurationHours() float64 {
	return d.DurationSeconds / 3600.0
}
