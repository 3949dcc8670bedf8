package external

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"roadcast/internal/types"
)

// nwsAPIBase is the default National Weather Service API base URL.
const nwsAPIBase = "https://api.weather.gov"

// NWSClientConfig holds the configuration for creating an NWSClient.
type NWSClientConfig struct {
	BaseURL string // Override for testing; defaults to nwsAPIBase
	Logger  *slog.Logger
}

type nwsAlertsResponse struct {
	Features []struct {
		ID         string `json:"id"`
		Properties struct {
			ID          string  `json:"id"`
			Event       string  `json:"event"`
			Severity    string  `json:"severity"`
			Urgency     string  `json:"urgency"`
			Headline    string  `json:"headline"`
			Description string  `json:"description"`
			Instruction *string `json:"instruction"`
			Expires     string  `json:"expires"`
			Ends        *string `json:"ends"`
		} `json:"properties"`
	} `json:"features"`
}

// NWSClient implements AlertProvider against the NWS /alerts/active endpoint.
// The NWS API requires an identifying User-Agent, which BaseClient sets.
type NWSClient struct {
	base    *BaseClient
	baseURL string
	logger  *slog.Logger
}

// NewNWSClient creates an NWSClient on top of base.
func NewNWSClient(base *BaseClient, cfg NWSClientConfig) *NWSClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = nwsAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &NWSClient{
		base:    base,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// ActiveAlerts returns every active alert whose area contains c.
func (c *NWSClient) ActiveAlerts(ctx context.Context, coord types.Coordinates) ([]types.Alert, error) {
	endpoint := fmt.Sprintf("%s/alerts/active?point=%.4f,%.4f", c.baseURL, coord.Lat, coord.Lng)
	header := http.Header{}
	header.Set("Accept", "application/geo+json")

	var resp nwsAlertsResponse
	if err := c.base.GetJSON(ctx, "active_alerts", endpoint, header, &resp); err != nil {
		return nil, fmt.Errorf("nws alerts: %w", err)
	}
	if resp.Features == nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamAlerts, "nws response has no features array", nil)
	}

	alerts := make([]types.Alert, 0, len(resp.Features))
	for _, f := range resp.Features {
		p := f.Properties
		expires, err := parseNWSTime(p.Expires)
		if err != nil && p.Ends != nil {
			expires, err = parseNWSTime(*p.Ends)
		}
		if err != nil {
			c.logger.DebugContext(ctx, "dropping alert without usable expiry",
				"alert_id", f.ID,
				"expires", p.Expires,
			)
			continue
		}

		id := f.ID
		if id == "" {
			id = p.ID
		}
		instruction := ""
		if p.Instruction != nil {
			instruction = *p.Instruction
		}
		alerts = append(alerts, types.Alert{
			ID:          id,
			Event:       p.Event,
			Severity:    types.ParseSeverity(p.Severity),
			Urgency:     p.Urgency,
			Headline:    p.Headline,
			Description: p.Description,
			Instruction: instruction,
			ExpiresAt:   expires,
		})
	}
	return alerts, nil
}

func parseNWSTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
