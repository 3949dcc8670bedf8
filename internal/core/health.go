package core

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// healthCheckTimeout bounds the whole probe run.
const healthCheckTimeout = 2 * time.Second

// HealthProbe defines the interface for a subsystem health check.
type HealthProbe interface {
	// Name identifies the probe in the response, e.g. "database".
	Name() string

	// Check returns an error if the subsystem is unhealthy. It must respect
	// the context deadline.
	Check(ctx context.Context) error
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingProbe adapts a Pinger, such as the place cache pool, to HealthProbe.
type PingProbe struct {
	ProbeName string
	Target    Pinger
}

// Name implements HealthProbe.
func (p PingProbe) Name() string { return p.ProbeName }

// Check implements HealthProbe.
func (p PingProbe) Check(ctx context.Context) error { return p.Target.Ping(ctx) }

// componentStatus represents the health state of a single subsystem.
type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthResponse is the JSON response body for the health check endpoint.
type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs every registered probe concurrently under a 2-second
// deadline. It answers 200 when all report healthy and 503 when any fails,
// panics or misses the deadline. Mounted at GET /health.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	probes := s.HealthProbes
	if len(probes) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy", Version: s.version()})
		return
	}

	type probeResult struct {
		index int
		err   error
	}

	// Buffered so probes that outlive the deadline never block.
	results := make(chan probeResult, len(probes))
	for i, probe := range probes {
		go func() {
			results <- probeResult{index: i, err: runProbe(ctx, probe)}
		}()
	}

	errs := make([]error, len(probes))
	reported := make([]bool, len(probes))
collect:
	for range probes {
		select {
		case res := <-results:
			errs[res.index] = res.err
			reported[res.index] = true
		case <-ctx.Done():
			break collect
		}
	}

	components := make(map[string]componentStatus, len(probes))
	allHealthy := true
	for i, probe := range probes {
		status := componentStatus{Status: "healthy"}
		switch {
		case !reported[i]:
			status = componentStatus{Status: "unhealthy", Message: "health check timed out"}
		case errs[i] != nil:
			status = componentStatus{Status: "unhealthy", Message: errs[i].Error()}
		}
		if status.Status != "healthy" {
			allHealthy = false
		}
		components[probe.Name()] = status
	}

	resp := healthResponse{
		Version:    s.version(),
		Components: components,
	}

	if !allHealthy {
		resp.Status = "unhealthy"
		JSON(w, r, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Status = "healthy"
	JSON(w, r, http.StatusOK, resp)
}

// runProbe converts a probe panic into an error.
func runProbe(ctx context.Context, p HealthProbe) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	return p.Check(ctx)
}

func (s *Server) version() string {
	if s.Config == nil {
		return ""
	}
	return s.Config.Build.Version
}
