package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"roadcast/internal/types"
)

// PlaceRepository persists reverse-geocoding results in the place_cache
// table. It implements external.PlaceStore.
type PlaceRepository struct {
	db DBTX
}

// NewPlaceRepository creates a new PlaceRepository backed by the given
// database connection (pool or transaction).
func NewPlaceRepository(db DBTX) *PlaceRepository {
	return &PlaceRepository{db: db}
}

const placeCacheDDL = `CREATE TABLE IF NOT EXISTS place_cache (
	coord_key    TEXT PRIMARY KEY,
	short_name   TEXT NOT NULL,
	display_name TEXT NOT NULL,
	lat          DOUBLE PRECISION NOT NULL,
	lng          DOUBLE PRECISION NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// EnsureSchema creates the place_cache table if it does not exist.
func (r *PlaceRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, placeCacheDDL); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create place cache table", err)
	}
	return nil
}

// GetPlace returns the cached place for key, or (nil, nil) on a miss.
func (r *PlaceRepository) GetPlace(ctx context.Context, key string) (*types.Place, error) {
	var p types.Place
	err := r.db.QueryRow(ctx,
		`SELECT short_name, display_name, lat, lng FROM place_cache WHERE coord_key = $1`,
		key,
	).Scan(&p.ShortName, &p.DisplayName, &p.Coordinates.Lat, &p.Coordinates.Lng)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read cached place", err)
	}
	return &p, nil
}

// PutPlace upserts the place for key.
func (r *PlaceRepository) PutPlace(ctx context.Context, key string, p types.Place) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO place_cache (coord_key, short_name, display_name, lat, lng, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 ON CONFLICT (coord_key) DO UPDATE SET
			short_name = EXCLUDED.short_name,
			display_name = EXCLUDED.display_name,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			updated_at = NOW()`,
		key, p.ShortName, p.DisplayName, p.Coordinates.Lat, p.Coordinates.Lng,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to write cached place", err)
	}
	return nil
}
