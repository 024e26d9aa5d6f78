package worker

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/backoffice/internal/domain/job"
	"github.com/gin-gonic/gin"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[job.Status]int, error)
}

type HealthDeps struct {
	DB      Pinger
	Counter StatusCounter
	// Breaker reports the notifier circuit state; optional.
	Breaker func() string
}

func (w *Worker) HealthHandler(deps HealthDeps) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	// liveness: process is up
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// readiness: loops are running and the database answers
	r.GET("/readyz", func(c *gin.Context) {
		if !w.Ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}

		if deps.DB != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 500*time.Millisecond)
			defer cancel()
			if err := deps.DB.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready"})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/stats", func(c *gin.Context) {
		out := gin.H{
			"workerId": w.cfg.WorkerID,
			"metrics":  w.metrics.Snapshot(),
		}

		if deps.Counter != nil {
			counts, err := deps.Counter.CountByStatus(c.Request.Context())
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"code": "internal_error", "message": "could not count jobs"})
				return
			}
			out["queue"] = counts
		}
		if deps.Breaker != nil {
			out["notifierCircuit"] = deps.Breaker()
		}

		c.JSON(http.StatusOK, out)
	})

	return r
}
