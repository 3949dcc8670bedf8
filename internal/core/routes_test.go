package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"roadcast/internal/config"
	"roadcast/internal/types"
)

func newRoutedServer(t *testing.T, registrars ...RouteRegistrar) (*Server, *mockMetricsCollector) {
	t.Helper()
	cfg := &config.Config{
		Environment: "local",
		Server: config.ServerConfig{
			RequestTimeout:     5 * time.Second,
			CorsAllowedOrigins: []string{"*"},
		},
		Build: config.BuildInfo{Version: "1.2.3"},
	}
	srv, err := NewServer(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	mc := &mockMetricsCollector{}
	srv.Metrics = mc
	srv.V1RouteRegistrars = registrars
	srv.MountRoutes()
	return srv, mc
}

func TestMountRoutes_MiddlewareCount(t *testing.T) {
	srv, _ := newRoutedServer(t)

	if got := len(srv.Router().Middlewares()); got != 8 {
		t.Errorf("expected 8 middleware registered, got %d", got)
	}
}

func TestMountRoutes_V1RegistrarsAreMounted(t *testing.T) {
	srv, mc := newRoutedServer(t, func(r chi.Router) {
		r.Get("/trips/{tripID}", func(w http.ResponseWriter, r *http.Request) {
			JSON(w, r, http.StatusOK, map[string]string{"id": chi.URLParam(r, "tripID")})
		})
	})

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/trips/abc", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Error("expected a generated request ID")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
	if len(mc.calls) != 1 || mc.calls[0].endpoint != "/v1/trips/{tripID}" {
		t.Errorf("metrics calls = %+v, want the route pattern", mc.calls)
	}
}

func TestMountRoutes_UnknownRoute(t *testing.T) {
	srv, mc := newRoutedServer(t)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v2/nothing", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if len(mc.calls) != 1 || mc.calls[0].status != "404" {
		t.Errorf("metrics calls = %+v", mc.calls)
	}
}

func TestContextTimeoutMiddleware_SetsDeadline(t *testing.T) {
	var deadline time.Time
	var ok bool
	h := ContextTimeoutMiddleware(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}))

	start := time.Now()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !ok {
		t.Fatal("expected a deadline on the request context")
	}
	if d := deadline.Sub(start); d <= 0 || d > 2*time.Second {
		t.Errorf("deadline %v after start, want about 1s", d)
	}
}

func TestRequestIDMiddleware_PropagatesIncomingID(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-Id", "req-42")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if seen != "req-42" {
		t.Errorf("context request ID = %q", seen)
	}
	if w.Header().Get("X-Request-Id") != "req-42" {
		t.Errorf("response request ID = %q", w.Header().Get("X-Request-Id"))
	}
}

func TestRequestIDMiddleware_GeneratesUniqueIDs(t *testing.T) {
	ids := map[string]bool{}
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids[types.GetRequestID(r.Context())] = true
	}))
	for i := 0; i < 5; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background()))
	}
	if len(ids) != 5 {
		t.Errorf("expected 5 unique IDs, got %d", len(ids))
	}
}
