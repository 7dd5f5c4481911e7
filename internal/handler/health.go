package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Check is a dependency health check. A failing critical check makes the service
// unhealthy; any other failure only degrades it.
type Check struct {
	Name     string
	Critical bool
	Run      func(ctx context.Context) error
}

type HealthHandler struct {
	checks    []Check
	version   string
	timeout   time.Duration
	startTime time.Time
}

func NewHealthHandler(version string, checks ...Check) *HealthHandler {
	return &HealthHandler{
		checks:    checks,
		version:   version,
		timeout:   2 * time.Second,
		startTime: time.Now(),
	}
}

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	Checks        map[string]string `json:"checks"`
	UptimeSeconds int64             `json:"uptime_seconds"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status, code := "healthy", http.StatusOK
	results := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		if err := c.Run(ctx); err != nil {
			log.Warn().Err(err).Str("check", c.Name).Msg("health check failed")
			results[c.Name] = "down"
			if c.Critical {
				status, code = "unhealthy", http.StatusServiceUnavailable
			} else if status == "healthy" {
				status = "degraded"
			}
			continue
		}
		results[c.Name] = "up"
	}

	RespondJSON(w, code, HealthResponse{
		Status:        status,
		Version:       h.version,
		Checks:        results,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	})
}
