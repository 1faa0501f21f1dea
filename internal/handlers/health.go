package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/loopwear/api/internal/platform/httpx"
)

const readinessCheckTimeout = 5 * time.Second

// ReadinessCheck probes one backing dependency. A nil error means ready.
type ReadinessCheck func(ctx context.Context) error

// HealthHandlers serves the /healthz and /readyz endpoints.
type HealthHandlers struct {
	version   string
	startedAt time.Time
	clock     func() time.Time
	checks    map[string]ReadinessCheck
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// NewHealthHandlers constructs health handlers with the provided options.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock:  time.Now,
		checks: map[string]ReadinessCheck{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.startedAt.IsZero() {
		h.startedAt = h.clock()
	}
	return h
}

// WithHealthVersion reports the build version in the health payload.
func WithHealthVersion(version string) HealthOption {
	return func(h *HealthHandlers) {
		h.version = version
	}
}

// WithHealthClock overrides the time source, primarily for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithReadinessCheck registers a named dependency probe for /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) HealthOption {
	return func(h *HealthHandlers) {
		if name != "" && check != nil {
			h.checks[name] = check
		}
	}
}

// Healthz reports liveness. It never touches backing services.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	payload := map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(h.startedAt).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
	}
	if h.version != "" {
		payload["version"] = h.version
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

// Readyz runs every registered dependency probe and reports 503 when any fails.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	var details []string
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			checks[name] = "failed"
			details = append(details, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		checks[name] = "ok"
	}

	status := "ok"
	code := http.StatusOK
	if len(details) > 0 {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	payload := map[string]any{
		"status": status,
		"checks": checks,
	}
	if len(details) > 0 {
		payload["details"] = details
	}
	httpx.WriteJSON(w, code, payload)
}
