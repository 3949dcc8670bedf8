package types

import (
	"context"
)

// Context Keys
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	tripIDKey    contextKey = "trip_id"
)

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithTripID stores the trip session ID in the context so that background
// enrichment logs can be correlated with the owning trip.
func WithTripID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, tripIDKey, id)
}

// GetTripID retrieves the trip session ID from the context.
func GetTripID(ctx context.Context) string {
	id, _ := ctx.Value(tripIDKey).(string)
	return id
}
