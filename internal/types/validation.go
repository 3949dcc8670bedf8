package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Validation constraint constants.
const (
	MinLat                   = -90.0
	MaxLat                   = 90.0
	MinLon                   = -180.0
	MaxLon                   = 180.0
	MaxNameLength            = 200
	MinSampleIntervalMinutes = 15
	MaxSampleIntervalMinutes = 480
)

// ValidateCoordinates checks that the point is a valid latitude/longitude pair.
func ValidateCoordinates(c Coordinates) error {
	if c.Lat < MinLat || c.Lat > MaxLat {
		return NewAppError(ErrCodeValidationInvalidLat,
			fmt.Sprintf("latitude %.6f outside [%.0f, %.0f]", c.Lat, MinLat, MaxLat), nil)
	}
	if c.Lng < MinLon || c.Lng > MaxLon {
		return NewAppError(ErrCodeValidationInvalidLon,
			fmt.Sprintf("longitude %.6f outside [%.0f, %.0f]", c.Lng, MinLon, MaxLon), nil)
	}
	return nil
}

// ValidateSampleInterval checks the sampling interval bounds in minutes.
func ValidateSampleInterval(minutes int) error {
	if minutes < MinSampleIntervalMinutes || minutes > MaxSampleIntervalMinutes {
		return NewAppErrorWithDetails(ErrCodeValidationInvalidInterval,
			"sample interval out of range", nil,
			map[string]any{"min": MinSampleIntervalMinutes, "max": MaxSampleIntervalMinutes, "got": minutes})
	}
	return nil
}

// Token serializes the place as "lat,lng|short|display".
func (p Place) Token() string {
	return fmt.Sprintf("%s,%s|%s|%s",
		strconv.FormatFloat(p.Coordinates.Lat, 'f', -1, 64),
		strconv.FormatFloat(p.Coordinates.Lng, 'f', -1, 64),
		p.ShortName, p.DisplayName)
}

// ParsePlaceToken parses a "lat,lng|short|display" token. The display name
// may contain '|'; only the first two separators are significant.
func ParsePlaceToken(token string) (Place, error) {
	parts := strings.SplitN(token, "|", 3)
	if len(parts) != 3 {
		return Place{}, NewAppError(ErrCodeValidationInvalidPlace, "place token must be lat,lng|name|full name", nil)
	}
	latLng := strings.Split(parts[0], ",")
	if len(latLng) != 2 {
		return Place{}, NewAppError(ErrCodeValidationInvalidPlace, "place token coordinates must be lat,lng", nil)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latLng[0]), 64)
	if err != nil {
		return Place{}, NewAppError(ErrCodeValidationInvalidPlace, "invalid latitude in place token", err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(latLng[1]), 64)
	if err != nil {
		return Place{}, NewAppError(ErrCodeValidationInvalidPlace, "invalid longitude in place token", err)
	}
	p := Place{
		ShortName:   parts[1],
		DisplayName: parts[2],
		Coordinates: Coordinates{Lat: lat, Lng: lng},
	}
	if p.ShortName == "" {
		return Place{}, NewAppError(ErrCodeValidationInvalidPlace, "place token name is empty", nil)
	}
	if p.DisplayName == "" {
		p.DisplayName = p.ShortName
	}
	if len(p.ShortName) > MaxNameLength {
		return Place{}, NewAppErrorWithDetails(ErrCodeValidationInvalidPlace, "place token name is too long", nil,
			map[string]any{"max": MaxNameLength})
	}
	if err := ValidateCoordinates(p.Coordinates); err != nil {
		return Place{}, err
	}
	return p, nil
}
