// Package handlers contains the HTTP handlers of the roadcast API.
//
// Request bodies are decoded with core.DecodeJSON and validated with
// core.Validator. Responses use the core.APIResponse envelope; route steps
// are rendered through StepResponse so alerts are always filtered against
// the step's current arrival time.
package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"roadcast/internal/trips"
	"roadcast/internal/types"
)

// PlaceInput accepts a place either as a JSON object or as a
// "lat,lng|name|full name" token string.
type PlaceInput types.Place

// UnmarshalJSON implements json.Unmarshaler.
func (p *PlaceInput) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var token string
		if err := json.Unmarshal(b, &token); err != nil {
			return err
		}
		place, err := types.ParsePlaceToken(token)
		if err != nil {
			return err
		}
		*p = PlaceInput(place)
		return nil
	}
	var place types.Place
	if err := json.Unmarshal(b, &place); err != nil {
		return err
	}
	*p = PlaceInput(place)
	return nil
}

// Place returns the decoded place.
func (p PlaceInput) Place() types.Place { return types.Place(p) }

// PlanRouteRequest is the body of POST /v1/routes/plan.
type PlanRouteRequest struct {
	Origin      PlaceInput `json:"origin" validate:"required"`
	Destination PlaceInput `json:"destination" validate:"required"`
	// Zero uses the configured default interval.
	SampleIntervalMinutes int `json:"sample_interval_minutes" validate:"omitempty,min=15,max=480"`
}

// StepInput is a route step supplied by the client for enrichment.
type StepInput struct {
	Place            PlaceInput `json:"place" validate:"required"`
	TimeOffsetHours  float64    `json:"time_offset_hours" validate:"gte=0"`
	IsManualWaypoint bool       `json:"is_manual_waypoint"`
}

// EnrichRouteRequest is the body of POST /v1/routes/enrich.
type EnrichRouteRequest struct {
	Steps []StepInput `json:"steps" validate:"required,min=1,max=500,dive"`
	// RFC 3339; empty means now.
	DepartureTime string `json:"departure_time"`
}

// CreateTripRequest is the body of POST /v1/trips.
type CreateTripRequest struct {
	Origin                PlaceInput `json:"origin" validate:"required"`
	Destination           PlaceInput `json:"destination" validate:"required"`
	SampleIntervalMinutes int        `json:"sample_interval_minutes" validate:"omitempty,min=15,max=480"`
	DepartureTime         string     `json:"departure_time"`
}

// SetDepartureRequest is the body of PUT /v1/trips/{tripID}/departure.
type SetDepartureRequest struct {
	DepartureTime string `json:"departure_time" validate:"required"`
}

// ScrubRequest is the body of POST /v1/trips/{tripID}/scrub.
type ScrubRequest struct {
	OffsetHours *float64 `json:"offset_hours" validate:"required"`
}

// AddWaypointRequest is the body of POST /v1/trips/{tripID}/waypoints.
type AddWaypointRequest struct {
	Place PlaceInput `json:"place" validate:"required"`
}

// StepResponse is the presentation of one route step.
type StepResponse struct {
	Place           types.Place            `json:"place"`
	TimeOffsetHours float64                `json:"time_offset_hours"`
	Offset          string                 `json:"offset"`
	ArrivalTime     *time.Time             `json:"arrival_time,omitempty"`
	Weather         *types.WeatherSnapshot `json:"weather,omitempty"`
	// AlertsAtArrival is null when alerts were not fetched for this step.
	AlertsAtArrival  []types.Alert `json:"alerts_at_arrival"`
	IsManualWaypoint bool          `json:"is_manual_waypoint"`
}

// RouteResponse wraps rendered steps.
type RouteResponse struct {
	Steps         []StepResponse `json:"steps"`
	DepartureTime *time.Time     `json:"departure_time,omitempty"`
}

// TripResponse is the presentation of a trip session.
type TripResponse struct {
	ID                    string      `json:"id"`
	Origin                types.Place `json:"origin"`
	Destination           types.Place `json:"destination"`
	SampleIntervalMinutes int         `json:"sample_interval_minutes"`
	CreatedAt             time.Time   `json:"created_at"`
	DepartureTime         time.Time   `json:"departure_time"`
	OffsetHours           float64     `json:"offset_hours"`
	// EffectiveDeparture is the departure the steps were enriched for.
	EffectiveDeparture *time.Time     `json:"effective_departure,omitempty"`
	State              string         `json:"state"`
	Steps              []StepResponse `json:"steps"`
}

// ScrubResponse is returned by the scrub endpoint.
type ScrubResponse struct {
	Trip      TripResponse `json:"trip"`
	Scheduled bool         `json:"refresh_scheduled"`
}

func newStepResponse(s types.RouteStep) StepResponse {
	out := StepResponse{
		Place:            s.Place,
		TimeOffsetHours:  s.TimeOffsetHours,
		Offset:           types.FormatOffset(s.TimeOffsetHours),
		ArrivalTime:      s.ArrivalTime,
		Weather:          s.Weather,
		IsManualWaypoint: s.IsManualWaypoint,
	}
	if s.Alerts != nil {
		if s.ArrivalTime != nil {
			out.AlertsAtArrival = types.RelevantAlerts(s.Alerts, *s.ArrivalTime)
		} else {
			out.AlertsAtArrival = append([]types.Alert{}, s.Alerts...)
		}
	}
	return out
}

func newStepResponses(steps []types.RouteStep) []StepResponse {
	out := make([]StepResponse, len(steps))
	for i, s := range steps {
		out[i] = newStepResponse(s)
	}
	return out
}

func newTripResponse(v *trips.View) TripResponse {
	out := TripResponse{
		ID:                    v.ID,
		Origin:                v.Origin,
		Destination:           v.Destination,
		SampleIntervalMinutes: v.SampleIntervalMinutes,
		CreatedAt:             v.CreatedAt,
		DepartureTime:         v.Departure,
		OffsetHours:           v.OffsetHours,
		State:                 string(v.State),
		Steps:                 newStepResponses(v.Route),
	}
	if !v.EffectiveDeparture.IsZero() {
		eff := v.EffectiveDeparture
		out.EffectiveDeparture = &eff
	}
	return out
}

// parseDeparture parses an RFC 3339 departure. Empty input returns the zero
// time.
func parseDeparture(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidTime,
			"departure_time must be an RFC 3339 timestamp", err,
			map[string]any{"got": s})
	}
	return t.UTC(), nil
}

// validateOffsets enforces the route shape: the first step is the origin at
// offset 0 and offsets never decrease.
func validateOffsets(steps []StepInput) error {
	if steps[0].TimeOffsetHours != 0 {
		return types.NewAppError(types.ErrCodeValidationInvalidBody, "the first step must have time_offset_hours 0", nil)
	}
	for i := 1; i < len(steps); i++ {
		if steps[i].TimeOffsetHours < steps[i-1].TimeOffsetHours {
			return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidBody,
				fmt.Sprintf("steps[%d] is earlier than the step before it", i), nil,
				map[string]any{"index": i})
		}
	}
	return nil
}
