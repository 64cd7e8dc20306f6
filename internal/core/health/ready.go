package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

type Readiness struct {
	checks  map[string]Check
	timeout time.Duration
}

func NewReadiness(timeout time.Duration) *Readiness {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Readiness{checks: map[string]Check{}, timeout: timeout}
}

func (r *Readiness) Add(name string, c Check) {
	r.checks[name] = c
}

// Handler answers 200 when every check passes and 503 otherwise, listing
// each check's result.
func (r *Readiness) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		type resp struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks,omitempty"`
		}
		ctx, cancel := context.WithTimeout(req.Context(), r.timeout)
		defer cancel()

		out := resp{Status: "ready", Checks: map[string]string{}}
		for name, c := range r.checks {
			if err := c(ctx); err != nil {
				out.Status = "not_ready"
				out.Checks[name] = err.Error()
				continue
			}
			out.Checks[name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		if out.Status != "ready" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
