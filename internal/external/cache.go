package external

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"roadcast/internal/types"

	"github.com/bluele/gcache"
	"golang.org/x/sync/singleflight"
)

// CoordKey rounds c to the given number of decimals and renders it as a
// stable cache key, e.g. "39.7392,-104.9903".
func CoordKey(c types.Coordinates, decimals int) string {
	r := roundCoord(c, decimals)
	return fmt.Sprintf("%.*f,%.*f", decimals, r.Lat, decimals, r.Lng)
}

func roundCoord(c types.Coordinates, decimals int) types.Coordinates {
	p := math.Pow(10, float64(decimals))
	return types.Coordinates{
		Lat: math.Round(c.Lat*p) / p,
		Lng: math.Round(c.Lng*p) / p,
	}
}

// sharedFetch coalesces concurrent fetches of the same key and caches the
// result. The fetch runs detached from the caller's cancellation (bounded by
// timeout) so one abandoned caller cannot fail the others sharing the call.
type sharedFetch[T any] struct {
	cache   gcache.Cache
	group   singleflight.Group
	timeout time.Duration
}

func newSharedFetch[T any](size int, ttl, timeout time.Duration) *sharedFetch[T] {
	return &sharedFetch[T]{
		cache:   gcache.New(size).LRU().Expiration(ttl).Build(),
		timeout: timeout,
	}
}

func (s *sharedFetch[T]) get(ctx context.Context, key string, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	if v, err := s.cache.Get(key); err == nil {
		return v.(T), nil
	}

	ch := s.group.DoChan(key, func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		if s.timeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(fctx, s.timeout)
			defer cancel()
		}
		v, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		_ = s.cache.Set(key, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		return r.Val.(T), nil
	}
}

// CachedForecastProvider decorates a ForecastProvider with a short-lived LRU
// cache keyed by coordinates rounded to ~100 m. Scrubbing the departure time
// re-reads the same series, so most scrubs cost no provider call.
type CachedForecastProvider struct {
	next  ForecastProvider
	fetch *sharedFetch[*types.HourlySeries]
}

// NewCachedForecastProvider wraps next. timeout bounds the shared fetch.
func NewCachedForecastProvider(next ForecastProvider, size int, ttl, timeout time.Duration) *CachedForecastProvider {
	return &CachedForecastProvider{next: next, fetch: newSharedFetch[*types.HourlySeries](size, ttl, timeout)}
}

// HourlyForecast implements ForecastProvider.
func (p *CachedForecastProvider) HourlyForecast(ctx context.Context, c types.Coordinates) (*types.HourlySeries, error) {
	rounded := roundCoord(c, 3)
	return p.fetch.get(ctx, CoordKey(rounded, 3), func(ctx context.Context) (*types.HourlySeries, error) {
		return p.next.HourlyForecast(ctx, rounded)
	})
}

// CachedAlertProvider decorates an AlertProvider the same way. Expiry
// filtering happens downstream, so cached alerts never go stale silently.
type CachedAlertProvider struct {
	next  AlertProvider
	fetch *sharedFetch[[]types.Alert]
}

// NewCachedAlertProvider wraps next.
func NewCachedAlertProvider(next AlertProvider, size int, ttl, timeout time.Duration) *CachedAlertProvider {
	return &CachedAlertProvider{next: next, fetch: newSharedFetch[[]types.Alert](size, ttl, timeout)}
}

// ActiveAlerts implements AlertProvider. The returned slice is shared and
// must not be modified.
func (p *CachedAlertProvider) ActiveAlerts(ctx context.Context, c types.Coordinates) ([]types.Alert, error) {
	return p.fetch.get(ctx, CoordKey(c, 4), func(ctx context.Context) ([]types.Alert, error) {
		return p.next.ActiveAlerts(ctx, c)
	})
}

// notFound marks a cached negative reverse-geocoding answer.
type notFound struct{}

// CachedReverseGeocoder decorates a ReverseGeocoder with an in-memory LRU in
// front of an optional persistent PlaceStore. Place names do not change, so
// memory entries never expire; negative answers are kept for negativeTTL.
type CachedReverseGeocoder struct {
	next        ReverseGeocoder
	store       PlaceStore
	cache       gcache.Cache
	negativeTTL time.Duration
	logger      *slog.Logger
}

// NewCachedReverseGeocoder wraps next. store may be nil.
func NewCachedReverseGeocoder(next ReverseGeocoder, store PlaceStore, size int, logger *slog.Logger) *CachedReverseGeocoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedReverseGeocoder{
		next:        next,
		store:       store,
		cache:       gcache.New(size).LRU().Build(),
		negativeTTL: 10 * time.Minute,
		logger:      logger,
	}
}

// ReverseGeocode implements ReverseGeocoder. The returned place always
// carries the queried coordinate, even when served from cache.
func (g *CachedReverseGeocoder) ReverseGeocode(ctx context.Context, c types.Coordinates) (*types.Place, error) {
	key := CoordKey(c, 4)

	if v, err := g.cache.Get(key); err == nil {
		if _, miss := v.(notFound); miss {
			return nil, ErrPlaceNotFound
		}
		return withCoordinates(v.(types.Place), c), nil
	}

	if g.store != nil {
		p, err := g.store.GetPlace(ctx, key)
		if err != nil {
			g.logger.WarnContext(ctx, "place store read failed", "key", key, "error", err)
		} else if p != nil {
			_ = g.cache.Set(key, *p)
			return withCoordinates(*p, c), nil
		}
	}

	p, err := g.next.ReverseGeocode(ctx, c)
	if err != nil {
		if errors.Is(err, ErrPlaceNotFound) {
			_ = g.cache.SetWithExpire(key, notFound{}, g.negativeTTL)
		}
		return nil, err
	}

	_ = g.cache.Set(key, *p)
	if g.store != nil {
		if err := g.store.PutPlace(ctx, key, *p); err != nil {
			g.logger.WarnContext(ctx, "place store write failed", "key", key, "error", err)
		}
	}
	return p, nil
}

func withCoordinates(p types.Place, c types.Coordinates) *types.Place {
	p.Coordinates = c
	return &p
}
