package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.Register(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestLiveness(t *testing.T) {
	w := serve(New("test"), "/health/live")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alive")
}

func TestReadiness(t *testing.T) {
	t.Run("all checks up", func(t *testing.T) {
		h := New("test")
		h.RegisterCheck("postgres", func(context.Context) error { return nil })
		h.RegisterCheck("redis", func(context.Context) error { return nil })

		w := serve(h, "/health/ready")
		require.Equal(t, http.StatusOK, w.Code)
		var body ReadinessResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "ready", body.Status)
		assert.Equal(t, map[string]string{"postgres": "up", "redis": "up"}, body.Checks)
	})

	t.Run("one check down", func(t *testing.T) {
		h := New("test")
		h.RegisterCheck("postgres", func(context.Context) error { return nil })
		h.RegisterCheck("kafka", func(context.Context) error { return errors.New("no brokers") })

		w := serve(h, "/health/ready")
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		var body ReadinessResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "not_ready", body.Status)
		assert.Equal(t, "down: no brokers", body.Checks["kafka"])
	})

	t.Run("optional check down degrades", func(t *testing.T) {
		h := New("test")
		h.RegisterCheck("postgres", func(context.Context) error { return nil })
		h.RegisterOptionalCheck("redis", func(context.Context) error { return errors.New("connection refused") })
		h.RegisterOptionalCheck("kafka", func(context.Context) error { return errors.New("no brokers") })

		w := serve(h, "/health/ready")
		require.Equal(t, http.StatusOK, w.Code)
		var body ReadinessResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, StatusDegraded, body.Status)
		assert.Equal(t, []string{"kafka", "redis"}, body.Degraded)
		assert.Equal(t, "up", body.Checks["postgres"])
	})

	t.Run("required failure wins over degradation", func(t *testing.T) {
		h := New("test")
		h.RegisterCheck("indexer", func(context.Context) error { return errors.New("503") })
		h.RegisterOptionalCheck("redis", func(context.Context) error { return errors.New("down") })

		res := h.Evaluate(context.Background())
		assert.Equal(t, StatusNotReady, res.Status)
		assert.Equal(t, []string{"redis"}, res.Degraded)
	})

	t.Run("checks get a deadline", func(t *testing.T) {
		h := New("test")
		h.RegisterCheck("slow", func(ctx context.Context) error {
			_, ok := ctx.Deadline()
			if !ok {
				return errors.New("no deadline")
			}
			return nil
		})
		assert.Equal(t, http.StatusOK, serve(h, "/health/ready").Code)
	})
}

func TestStatus(t *testing.T) {
	w := serve(New("staging"), "/health")
	var body StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "staging", body.Environment)
}
