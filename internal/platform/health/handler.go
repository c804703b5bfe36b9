// Package health serves the liveness, readiness and status probes.
//
// Dependencies are either required or optional. A failing required check
// (the record database, the ledger indexer) makes the instance not ready. A
// failing optional check (the lookup cache, the event broker) only marks it
// degraded: verification and issuance keep working without them.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"certledger/pkg/platform/httputil"
)

// Version is set at build time via ldflags.
var Version = "dev"

// CheckFunc returns nil when the dependency is usable.
type CheckFunc func(ctx context.Context) error

// CheckTimeout bounds each readiness check.
const CheckTimeout = 2 * time.Second

// Readiness states.
const (
	StatusReady    = "ready"
	StatusDegraded = "degraded"
	StatusNotReady = "not_ready"
)

type check struct {
	fn       CheckFunc
	optional bool
}

// Handler provides health check endpoints.
type Handler struct {
	startTime   time.Time
	environment string

	mu     sync.RWMutex
	checks map[string]check
}

// New creates a health handler for the named environment.
func New(environment string) *Handler {
	return &Handler{
		startTime:   time.Now(),
		environment: environment,
		checks:      make(map[string]check),
	}
}

// RegisterCheck adds a required dependency check.
func (h *Handler) RegisterCheck(name string, fn CheckFunc) {
	h.register(name, check{fn: fn})
}

// RegisterOptionalCheck adds a dependency whose failure degrades the
// instance without taking it out of rotation.
func (h *Handler) RegisterOptionalCheck(name string, fn CheckFunc) {
	h.register(name, check{fn: fn, optional: true})
}

func (h *Handler) register(name string, c check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = c
}

// Register mounts the probe routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleStatus)
	r.Get("/health/live", h.HandleLiveness)
	r.Get("/health/ready", h.HandleReadiness)
}

// LivenessResponse is the body of the liveness probe.
type LivenessResponse struct {
	Status string `json:"status"`
}

// HandleLiveness answers 200 while the process serves requests.
func (h *Handler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, LivenessResponse{Status: "alive"})
}

// ReadinessResponse is the body of the readiness probe.
type ReadinessResponse struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks,omitempty"`
	Degraded []string          `json:"degraded,omitempty"`
}

// HandleReadiness runs every check concurrently. It answers 503 only when a
// required check fails.
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	res := h.Evaluate(r.Context())
	status := http.StatusOK
	if res.Status == StatusNotReady {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, res)
}

// Evaluate runs the registered checks and summarizes them.
func (h *Handler) Evaluate(ctx context.Context) ReadinessResponse {
	h.mu.RLock()
	checks := make(map[string]check, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	h.mu.RUnlock()

	type outcome struct {
		name string
		err  error
	}
	results := make(chan outcome, len(checks))
	for name, c := range checks {
		go func() {
			cctx, cancel := context.WithTimeout(ctx, CheckTimeout)
			defer cancel()
			results <- outcome{name: name, err: c.fn(cctx)}
		}()
	}

	resp := ReadinessResponse{Status: StatusReady, Checks: make(map[string]string, len(checks))}
	for range checks {
		res := <-results
		if res.err == nil {
			resp.Checks[res.name] = "up"
			continue
		}
		resp.Checks[res.name] = "down: " + res.err.Error()
		if checks[res.name].optional {
			resp.Degraded = append(resp.Degraded, res.name)
			if resp.Status == StatusReady {
				resp.Status = StatusDegraded
			}
			continue
		}
		resp.Status = StatusNotReady
	}
	sort.Strings(resp.Degraded)
	return resp
}

// StatusResponse is the body of the general status endpoint.
type StatusResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Environment   string `json:"environment"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Timestamp     string `json:"timestamp"`
}

// HandleStatus reports version and uptime.
func (h *Handler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{
		Status:        "healthy",
		Version:       Version,
		Environment:   h.environment,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}
