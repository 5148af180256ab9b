// Package health serves the liveness and readiness endpoints of the
// recording pipeline.
//
//   - /healthz — liveness; a process able to answer is alive. The body
//     carries the uptime for quick inspection.
//   - /readyz  — readiness; evaluates the registered checks (the recording
//     session, the batch-endpoint circuit breaker) and answers 503 with
//     status "degraded" when any of them fails.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker probes one dependency of the pipeline.
type Checker struct {
	// Name keys the check in the JSON response (e.g. "session",
	// "batch-breaker").
	Name string

	// Check returns nil while the dependency is serviceable. It must respect
	// context cancellation.
	Check func(ctx context.Context) error
}

// checkResult is the per-check section of the readiness response.
type checkResult struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
	Elapsed string `json:"elapsed"`
}

// response is the body of both endpoints.
type response struct {
	Status string                 `json:"status"`
	Uptime string                 `json:"uptime,omitempty"`
	Checks map[string]checkResult `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The check set is fixed at
// construction; evaluation happens per request, so the response always
// reflects the current session and breaker state.
type Handler struct {
	started  time.Time
	checkers []Checker
}

// New creates a Handler that evaluates the given checks, in order, on each
// readiness request.
func New(checkers ...Checker) *Handler {
	return &Handler{
		started:  time.Now(),
		checkers: append([]Checker(nil), checkers...),
	}
}

// Healthz reports liveness.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, response{
		Status: "ok",
		Uptime: time.Since(h.started).Round(time.Second).String(),
	})
}

// Readyz evaluates every check under a [checkTimeout] deadline derived from
// the request context and answers 200 only when all of them pass.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]checkResult, len(h.checkers))
	healthy := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		start := time.Now()
		err := c.Check(ctx)
		cancel()

		res := checkResult{
			Healthy: err == nil,
			Elapsed: time.Since(start).Round(time.Microsecond).String(),
		}
		if err != nil {
			res.Error = err.Error()
			healthy = false
		}
		checks[c.Name] = res
	}

	resp := response{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !healthy {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// Register adds both routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v with the given status code, falling back to a
// plain-text 500 when encoding fails.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
