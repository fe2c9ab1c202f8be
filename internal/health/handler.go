package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Checker is anything that can report the health of a dependency.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// checkTimeout bounds a single dependency check.
const checkTimeout = 5 * time.Second

// Handler serves an aggregate health endpoint over named checkers.
type Handler struct {
	checkers map[string]Checker
}

// NewHandler creates a health handler over the given named checkers.
func NewHandler(checkers map[string]Checker) *Handler {
	return &Handler{checkers: checkers}
}

// ServeHTTP reports per-dependency status. Any failing dependency turns
// the response into 503.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checkers))
	for name, checker := range h.checkers {
		if err := checker.HealthCheck(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			results[name] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(results)
}
