// Package refresh keeps an enriched route consistent with the chosen
// departure time while the user scrubs the time or edits the route.
//
// Every enrichment the Coordinator issues gets a sequence number. A result is
// applied only if its sequence is still the newest issued, so a slow response
// for an old departure can never overwrite a newer one. Continuous scrub
// input is collapsed into a single pending offset behind a debounce timer.
package refresh

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"roadcast/internal/types"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultScrubThresholdHours = 0.25
	DefaultDebounceWindow      = 150 * time.Millisecond
	DefaultMaxScrubHours       = 36.0
)

// ErrClosed is returned by operations on a closed Coordinator.
var ErrClosed = errors.New("refresh: coordinator closed")

// State is the coordinator's request lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StatePending State = "pending"
)

// Enricher attaches weather and alerts to route steps for a departure time.
type Enricher interface {
	Enrich(ctx context.Context, steps []types.RouteStep, departure time.Time) ([]types.RouteStep, error)
}

// Timer is the part of *time.Timer the coordinator needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d, like time.AfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

// CoordinatorMetrics records discarded enrichment results.
type CoordinatorMetrics interface {
	RecordStaleResult(ctx context.Context)
}

// Config holds the configuration for creating a Coordinator.
type Config struct {
	ScrubThresholdHours float64
	DebounceWindow      time.Duration
	MaxScrubHours       float64
	AfterFunc           AfterFunc          // nil uses time.AfterFunc
	Metrics             CoordinatorMetrics // optional
	Logger              *slog.Logger
	// BaseContext is the parent of every enrichment context. Values such as
	// the trip ID flow from it into provider logs. Defaults to Background.
	BaseContext context.Context
}

// Snapshot is a consistent copy of the coordinator's state.
type Snapshot struct {
	Route []types.RouteStep
	// Departure is the base departure time; OffsetHours is the scrub offset
	// of the most recently issued enrichment relative to it.
	Departure   time.Time
	OffsetHours float64
	// EffectiveDeparture is the departure that Route was enriched for. It is
	// zero until the first enrichment is applied.
	EffectiveDeparture time.Time
	State              State
	RequestID          uint64 // newest issued sequence
	AppliedID          uint64 // sequence that produced Route
}

// Coordinator owns one trip's route and serializes its refreshes.
type Coordinator struct {
	enricher  Enricher
	threshold float64
	window    time.Duration
	maxScrub  float64
	afterFunc AfterFunc
	metrics   CoordinatorMetrics
	logger    *slog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu           sync.Mutex
	route        []types.RouteStep
	departure    time.Time
	issuedOffset float64
	effective    time.Time
	seq          uint64
	applied      uint64
	inFlight     bool
	cancel       context.CancelFunc
	timer        Timer
	timerGen     uint64
	pending      *float64
	changed      chan struct{}
	closed       bool
}

// NewCoordinator creates an idle Coordinator with an empty route.
func NewCoordinator(enricher Enricher, cfg Config) *Coordinator {
	c := &Coordinator{
		enricher:  enricher,
		threshold: cfg.ScrubThresholdHours,
		window:    cfg.DebounceWindow,
		maxScrub:  cfg.MaxScrubHours,
		afterFunc: cfg.AfterFunc,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		changed:   make(chan struct{}),
	}
	if c.threshold <= 0 {
		c.threshold = DefaultScrubThresholdHours
	}
	if c.window <= 0 {
		c.window = DefaultDebounceWindow
	}
	if c.maxScrub <= 0 {
		c.maxScrub = DefaultMaxScrubHours
	}
	if c.afterFunc == nil {
		c.afterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	base := cfg.BaseContext
	if base == nil {
		base = context.Background()
	}
	c.baseCtx, c.baseCancel = context.WithCancel(base)
	return c
}

// Load replaces the route and departure after a new plan and enriches
// immediately. The scrub offset resets to zero.
func (c *Coordinator) Load(route []types.RouteStep, departure time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.route = types.CloneSteps(route)
	c.departure = departure.UTC()
	c.issuedOffset = 0
	c.issueLocked()
	return nil
}

// SetDeparture changes the base departure time and enriches immediately.
// The scrub offset resets to zero.
func (c *Coordinator) SetDeparture(departure time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.departure = departure.UTC()
	c.issuedOffset = 0
	c.issueLocked()
	return nil
}

// ReplaceRoute swaps in an edited route, such as one with an inserted
// waypoint, and enriches immediately at the current offset. A scrub still
// waiting on its debounce window becomes the current offset first.
func (c *Coordinator) ReplaceRoute(route []types.RouteStep) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.route = types.CloneSteps(route)
	if c.pending != nil {
		c.issuedOffset = *c.pending
	}
	c.issueLocked()
	return nil
}

// Scrub records a continuous change of the departure offset, in hours,
// clamped to ±MaxScrubHours.
//
// Offsets within the scrub threshold of the last issued offset issue
// nothing and drop any pending scrub. Otherwise the offset replaces the
// pending one and the debounce timer restarts. It reports whether a refresh
// is now scheduled.
func (c *Coordinator) Scrub(offsetHours float64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClosed
	}

	offset := math.Max(-c.maxScrub, math.Min(c.maxScrub, offsetHours))
	if math.Abs(offset-c.issuedOffset) < c.threshold {
		c.stopTimerLocked()
		c.pending = nil
		c.notifyLocked()
		return false, nil
	}

	c.pending = &offset
	c.stopTimerLocked()
	c.timerGen++
	gen := c.timerGen
	c.timer = c.afterFunc(c.window, func() { c.fire(gen) })
	c.notifyLocked()
	return true, nil
}

// fire issues the pending scrub when the debounce timer of generation gen
// expires. Timers superseded by a later Scrub are ignored.
func (c *Coordinator) fire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.timerGen || c.timer == nil {
		return
	}
	c.timer = nil
	if c.pending == nil {
		c.notifyLocked()
		return
	}
	c.issuedOffset = *c.pending
	c.pending = nil
	c.issueLocked()
}

// Snapshot returns a copy of the authoritative state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := StateIdle
	if c.inFlight || c.timer != nil {
		state = StatePending
	}
	return Snapshot{
		Route:              types.CloneSteps(c.route),
		Departure:          c.departure,
		OffsetHours:        c.issuedOffset,
		EffectiveDeparture: c.effective,
		State:              state,
		RequestID:          c.seq,
		AppliedID:          c.applied,
	}
}

// Wait blocks until no debounce timer and no enrichment is outstanding, or
// ctx ends.
func (c *Coordinator) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		idle := !c.inFlight && c.timer == nil
		ch := c.changed
		c.mu.Unlock()

		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Close cancels the pending timer and any in-flight enrichment. It is safe
// to call more than once.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.stopTimerLocked()
	c.pending = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.inFlight = false
	c.baseCancel()
	c.notifyLocked()
}

// issueLocked cancels any in-flight enrichment and starts a new one for the
// current route and departure. Discrete changes also drop the debounce.
func (c *Coordinator) issueLocked() {
	c.stopTimerLocked()
	c.pending = nil
	if c.cancel != nil {
		c.cancel()
	}

	c.seq++
	seq := c.seq
	ctx, cancel := context.WithCancel(c.baseCtx)
	c.cancel = cancel
	c.inFlight = true

	steps := types.CloneSteps(c.route)
	departure := c.departure.Add(time.Duration(c.issuedOffset * float64(time.Hour)))

	c.logger.Debug("refresh issued",
		"request_id", seq,
		"departure", departure,
		"offset_hours", c.issuedOffset,
		"steps", len(steps),
	)
	go c.run(ctx, cancel, seq, steps, departure)
	c.notifyLocked()
}

func (c *Coordinator) run(ctx context.Context, cancel context.CancelFunc, seq uint64, steps []types.RouteStep, departure time.Time) {
	defer cancel()
	enriched, err := c.enricher.Enrich(ctx, steps, departure)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if seq != c.seq {
		c.logger.Debug("stale refresh discarded",
			"request_id", seq,
			"newest_id", c.seq,
		)
		if c.metrics != nil {
			c.metrics.RecordStaleResult(c.baseCtx)
		}
		return
	}

	c.inFlight = false
	c.cancel = nil
	if err != nil {
		c.logger.Warn("refresh failed", "request_id", seq, "error", err)
	} else {
		c.route = enriched
		c.effective = departure
		c.applied = seq
	}
	c.notifyLocked()
}

func (c *Coordinator) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// notifyLocked wakes every Wait by closing the current change channel.
func (c *Coordinator) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}
