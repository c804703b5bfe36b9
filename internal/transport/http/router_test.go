package httptransport

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routeFunc func(r chi.Router)

func (f routeFunc) Register(r chi.Router) { f(r) }

func ok(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type latencyRecorder struct {
	endpoints []string
}

func (l *latencyRecorder) ObserveEndpointLatency(endpoint string, _ float64) {
	l.endpoints = append(l.endpoints, endpoint)
}

func newTestRouter(latency *latencyRecorder) http.Handler {
	routes := Routes{
		Health: routeFunc(func(r chi.Router) { r.Get("/health/live", ok) }),
		Verify: routeFunc(func(r chi.Router) { r.Get("/verify", ok) }),
		Mint:   routeFunc(func(r chi.Router) { r.Post("/mint", ok) }),
		Credentials: routeFunc(func(r chi.Router) {
			r.Get("/credentials/{code}", ok)
		}),
	}
	cfg := Config{AdminToken: "secret"}
	if latency != nil {
		cfg.Latency = latency
	}
	return NewRouter(routes, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRouter(t *testing.T) {
	router := newTestRouter(nil)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"verification is public", http.MethodGet, "/api/v1/verify?q=UNI-2024-ABC123", "", http.StatusOK},
		{"mint requires the admin token", http.MethodPost, "/api/v1/mint", "", http.StatusUnauthorized},
		{"wrong admin token", http.MethodPost, "/api/v1/mint", "nope", http.StatusUnauthorized},
		{"mint with admin token", http.MethodPost, "/api/v1/mint", "secret", http.StatusOK},
		{"credential reads are guarded", http.MethodGet, "/api/v1/credentials/UNI-2024-ABC123", "", http.StatusUnauthorized},
		{"credential read with token", http.MethodGet, "/api/v1/credentials/UNI-2024-ABC123", "secret", http.StatusOK},
		{"probe outside the api prefix", http.MethodGet, "/health/live", "", http.StatusOK},
		{"metrics exposed", http.MethodGet, "/metrics", "", http.StatusOK},
		{"unknown route", http.MethodGet, "/api/v1/nothing", "secret", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("X-Admin-Token", tt.token)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		})
	}
}

func TestRouterRejectsNonJSONBodies(t *testing.T) {
	router := newTestRouter(nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/mint", nil)
	req.Header.Set("X-Admin-Token", "secret")
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestRouterLabelsLatencyByPattern(t *testing.T) {
	rec := &latencyRecorder{}
	router := newTestRouter(rec)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/credentials/UNI-2024-ABC123", nil)
	req.Header.Set("X-Admin-Token", "secret")
	router.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, rec.endpoints, 1)
	assert.Equal(t, "/api/v1/credentials/{code}", rec.endpoints[0])
}
