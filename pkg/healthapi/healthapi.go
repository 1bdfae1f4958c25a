// Package healthapi exposes the engine's minimal ambient HTTP surface:
// liveness and readiness probes for the orchestrator running this
// process. It is explicitly not the analyses/dashboard read API (spec
// §1 lists that as an out-of-scope external collaborator) — only
// /healthz and /readyz live here. Response shapes are grounded on the
// teacher's pkg/api HealthResponse/HealthCheck, implemented with gin
// rather than echo to match the teacher's actually-compiling
// cmd/tarsy/main.go wiring instead of its stale handler_health.go.
package healthapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pagewatch/sentinel/pkg/database"
	"github.com/pagewatch/sentinel/pkg/orchestrator"
	"github.com/pagewatch/sentinel/pkg/version"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// HealthCheck is one component's status in a HealthResponse.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the body returned by /healthz and /readyz.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}

// NewRouter builds the gin router serving /healthz and /readyz. pool may
// be nil in deployments that run the worker pool out-of-process; its
// check is simply omitted.
func NewRouter(db *sql.DB, pool *orchestrator.WorkerPool) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		// Liveness: the process is up and able to answer HTTP at all. No
		// dependency checks, so an external DB hiccup never causes the
		// orchestrator to restart this process.
		c.JSON(http.StatusOK, HealthResponse{
			Status:  statusHealthy,
			Version: version.Full(),
			Checks:  map[string]HealthCheck{},
		})
	})

	router.GET("/readyz", func(c *gin.Context) {
		reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		checks := make(map[string]HealthCheck)
		status := statusHealthy

		dbHealth, err := database.Health(reqCtx, db)
		if err != nil {
			status = statusUnhealthy
			checks["database"] = HealthCheck{Status: statusUnhealthy, Message: err.Error()}
		} else {
			checks["database"] = HealthCheck{Status: dbHealth.Status}
		}

		if pool != nil {
			ph := pool.Health()
			if ph.ActiveAnalyses >= ph.MaxConcurrent {
				if status == statusHealthy {
					status = statusDegraded
				}
				checks["worker_pool"] = HealthCheck{Status: statusDegraded, Message: "at max concurrency"}
			} else {
				checks["worker_pool"] = HealthCheck{Status: statusHealthy}
			}
		}

		httpStatus := http.StatusOK
		if status == statusUnhealthy {
			httpStatus = http.StatusServiceUnavailable
		}

		c.JSON(httpStatus, HealthResponse{Status: status, Version: version.Full(), Checks: checks})
	})

	return router
}
