package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type readinessCheck struct {
	name string
	ping func(ctx context.Context) error
}

type HealthController struct {
	checks []readinessCheck
}

// NewHealthController checks postgres and redis on readiness. Redis holds
// the order locks and return nonces, so the service is not ready without it.
func NewHealthController(pool *pgxpool.Pool, rdb redis.Cmdable) *HealthController {
	return newHealthController(
		readinessCheck{name: "database", ping: pool.Ping},
		readinessCheck{name: "redis", ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	)
}

func newHealthController(checks ...readinessCheck) *HealthController {
	return &HealthController{checks: checks}
}

func (h *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthController) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (h *HealthController) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, c := range h.checks {
		if err := c.ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": c.name + " unavailable",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
