package trips

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bluele/gcache"

	"roadcast/internal/refresh"
	"roadcast/internal/types"
)

// Trip is one live planning session: the endpoints it was planned for plus
// the coordinator that owns its enriched route.
type Trip struct {
	ID                    string
	Origin                types.Place
	Destination           types.Place
	SampleIntervalMinutes int
	CreatedAt             time.Time

	coord *refresh.Coordinator
	// edit serializes read-modify-write changes to the route.
	edit sync.Mutex
}

// StoreConfig holds the configuration for creating a Store.
type StoreConfig struct {
	MaxSessions int
	SessionTTL  time.Duration
	// Clock drives expiry; nil uses the wall clock.
	Clock  gcache.Clock
	Logger *slog.Logger
}

// Store keeps trips in memory for a bounded time. Expired or deleted trips
// have their coordinator closed.
type Store struct {
	cache  gcache.Cache
	max    int
	logger *slog.Logger
	// mu makes the capacity check and insert atomic.
	mu sync.Mutex
}

// NewStore creates an empty Store.
func NewStore(cfg StoreConfig) *Store {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1000
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 2 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Store{max: cfg.MaxSessions, logger: cfg.Logger}

	b := gcache.New(cfg.MaxSessions).
		LRU().
		Expiration(cfg.SessionTTL).
		EvictedFunc(s.evicted).
		PurgeVisitorFunc(s.evicted)
	if cfg.Clock != nil {
		b = b.Clock(cfg.Clock)
	}
	s.cache = b.Build()
	return s
}

func (s *Store) evicted(key, value interface{}) {
	trip, ok := value.(*Trip)
	if !ok {
		return
	}
	trip.coord.Close()
	s.logger.Debug("trip closed", "trip_id", key)
}

// Add stores a trip. It fails with limit_trips_exceeded when the store is
// full of unexpired trips.
func (s *Store) Add(t *Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache.Len(false) >= s.max {
		s.sweepLocked()
	}
	if s.cache.Len(false) >= s.max {
		return types.NewAppErrorWithDetails(types.ErrCodeLimitTrips,
			"too many active trips, try again later", nil,
			map[string]any{"max_sessions": s.max})
	}
	return s.cache.Set(t.ID, t)
}

// sweepLocked drops expired trips so an insert never evicts a live one.
// Expired entries are removed by gcache on lookup.
func (s *Store) sweepLocked() {
	for _, k := range s.cache.Keys(false) {
		_, _ = s.cache.GetIFPresent(k)
	}
}

// Get returns the trip with id, or not_found_trip.
func (s *Store) Get(id string) (*Trip, error) {
	v, err := s.cache.Get(id)
	if err != nil {
		return nil, notFound(id)
	}
	return v.(*Trip), nil
}

// Remove deletes a trip and closes its coordinator.
func (s *Store) Remove(id string) error {
	if !s.cache.Remove(id) {
		return notFound(id)
	}
	return nil
}

// Len returns the number of unexpired trips.
func (s *Store) Len() int {
	return s.cache.Len(true)
}

// Close removes every trip.
func (s *Store) Close() {
	s.cache.Purge()
}

func notFound(id string) *types.AppError {
	return types.NewAppErrorWithDetails(types.ErrCodeNotFoundTrip, "trip not found", nil,
		map[string]any{"trip_id": id})
}
