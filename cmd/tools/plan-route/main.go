// Package main implements the plan-route CLI: plan one route, enrich it for
// a departure time and print the result.
//
// Usage:
//
//	go run ./cmd/tools/plan-route \
//	    --origin="39.74,-104.99|Denver|Denver, CO" \
//	    --destination="38.57,-109.55|Moab|Moab, UT" \
//	    --departure=2026-10-14T09:00:00Z --format=pretty
//
// Provider settings come from the same environment variables as the API
// server; DIRECTIONS_BACKEND=stub runs offline.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/kr/pretty"

	"roadcast/internal/config"
	"roadcast/internal/external"
	"roadcast/internal/routing"
	"roadcast/internal/types"
	"roadcast/internal/weather"
)

const (
	formatText   = "text"
	formatJSON   = "json"
	formatPretty = "pretty"
)

type options struct {
	origin      string
	destination string
	interval    int
	departure   string
	format      string
	planOnly    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.origin, "origin", "", `Origin place token "lat,lng|name|full name"`)
	flag.StringVar(&opts.destination, "destination", "", "Destination place token")
	flag.IntVar(&opts.interval, "interval", 0, "Sample interval in minutes (default from DEFAULT_SAMPLE_INTERVAL_MINUTES)")
	flag.StringVar(&opts.departure, "departure", "", "Departure time (RFC3339); defaults to now")
	flag.StringVar(&opts.format, "format", formatText, "Output format: text, json or pretty")
	flag.BoolVar(&opts.planOnly, "plan-only", false, "Skip weather and alert enrichment")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: plan-route --origin=TOKEN --destination=TOKEN [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	switch opts.format {
	case formatText, formatJSON, formatPretty:
	default:
		return fmt.Errorf("unknown --format %q", opts.format)
	}
	if opts.origin == "" || opts.destination == "" {
		return errors.New("--origin and --destination are required")
	}
	origin, err := types.ParsePlaceToken(opts.origin)
	if err != nil {
		return fmt.Errorf("--origin: %w", err)
	}
	destination, err := types.ParsePlaceToken(opts.destination)
	if err != nil {
		return fmt.Errorf("--destination: %w", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	departure := time.Now().UTC()
	if opts.departure != "" {
		departure, err = time.Parse(time.RFC3339, opts.departure)
		if err != nil {
			return fmt.Errorf("invalid --departure %q: expected RFC3339, e.g. 2026-10-14T09:00:00Z", opts.departure)
		}
	}
	interval := opts.interval
	if interval == 0 {
		interval = cfg.Planning.DefaultIntervalMinutes
	}

	reg, err := external.NewProviderRegistry(cfg, logger)
	if err != nil {
		return fmt.Errorf("building provider registry: %w", err)
	}
	planner := routing.NewPlanner(reg.Directions, reg.Geocoder, routing.PlannerConfig{
		GeocodeConcurrency: cfg.Planning.GeocodeConcurrency,
		Logger:             logger,
	})

	steps, err := planner.Plan(ctx, types.RoutePlanParams{
		Origin:                origin,
		Destination:           destination,
		SampleIntervalMinutes: interval,
	})
	if err != nil {
		return err
	}

	if !opts.planOnly {
		snowThreshold := cfg.Weather.SnowThresholdC
		attributor := weather.NewAttributor(reg.Forecast, reg.Alerts, weather.AttributorConfig{
			Concurrency:     cfg.Weather.EnrichConcurrency,
			ProviderTimeout: cfg.Providers.ProviderTimeout,
			SnowThresholdC:  &snowThreshold,
			Logger:          logger,
		})
		if steps, err = attributor.Enrich(ctx, steps, departure); err != nil {
			return err
		}
	}

	return render(out, opts.format, steps)
}

// render writes steps in the requested format.
func render(w io.Writer, format string, steps []types.RouteStep) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(steps)
	case formatPretty:
		_, err := pretty.Fprintf(w, "%# v\n", steps)
		return err
	default:
		return renderText(w, steps)
	}
}

func renderText(w io.Writer, steps []types.RouteStep) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OFFSET\tPLACE\tARRIVAL\tWEATHER\tALERTS")
	for _, s := range steps {
		name := s.Place.ShortName
		if s.IsManualWaypoint {
			name += " *"
		}
		arrival, conditions, alerts := "-", "-", "-"
		if s.ArrivalTime != nil {
			arrival = s.ArrivalTime.Format("Mon 15:04")
		}
		if s.Weather != nil {
			conditions = fmt.Sprintf("%.0f°C %s, rain %d%% snow %d%%",
				s.Weather.TemperatureC, s.Weather.Description,
				s.Weather.RainProbability, s.Weather.SnowProbability)
		}
		if s.Alerts != nil {
			active := s.Alerts
			if s.ArrivalTime != nil {
				active = types.RelevantAlerts(s.Alerts, *s.ArrivalTime)
			}
			alerts = "none"
			if len(active) > 0 {
				alerts = fmt.Sprintf("%d (%s)", len(active), active[0].Event)
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", types.FormatOffset(s.TimeOffsetHours), name, arrival, conditions, alerts)
	}
	return tw.Flush()
}
