package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"roadcast/internal/core"
	"roadcast/internal/types"
)

var (
	now    = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	denver = types.Place{ShortName: "Denver", DisplayName: "Denver, CO", Coordinates: types.Coordinates{Lat: 39.74, Lng: -104.99}}
	moab   = types.Place{ShortName: "Moab", DisplayName: "Moab, UT", Coordinates: types.Coordinates{Lat: 38.57, Lng: -109.55}}
	vail   = types.Place{ShortName: "Vail", DisplayName: "Vail, CO", Coordinates: types.Coordinates{Lat: 39.64, Lng: -106.37}}
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testValidator() *core.Validator {
	return core.NewValidator(testLogger())
}

// serve mounts register under /v1 and runs one request through it.
func serve(t *testing.T, register func(chi.Router), method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/v1", register)

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

// decodeData unwraps the {"data": ...} envelope into dst.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env core.APIErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Error.Code
}
