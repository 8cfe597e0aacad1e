package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

// Build information - can be set at build time using ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	GoVersion = runtime.Version()
)

const serviceName = "casegraph"

// ConnectivityChecker reports whether the graph store is reachable.
type ConnectivityChecker interface {
	VerifyConnectivity(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	store   ConnectivityChecker
	started time.Time
}

// NewHealthHandler creates a new health handler. store may be nil, which makes the
// service permanently not ready.
func NewHealthHandler(store ConnectivityChecker) *HealthHandler {
	return &HealthHandler{store: store, started: time.Now()}
}

// HealthCheck handles GET /health - basic liveness check
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"service":    serviceName,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"version":    Version,
		"git_commit": GitCommit,
		"go_version": GoVersion,
	})
}

// LivenessCheck handles GET /live
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ReadinessCheck handles GET /ready. The service is ready when the graph store answers
// a connectivity check within five seconds.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	database := gin.H{"status": "healthy"}
	ready := true
	if h.store == nil {
		database = gin.H{"status": "unhealthy", "error": "graph store not initialized"}
		ready = false
	} else {
		start := time.Now()
		err := h.store.VerifyConnectivity(ctx)
		database["duration"] = time.Since(start).String()
		if err != nil {
			database["status"] = "unhealthy"
			database["error"] = err.Error()
			ready = false
		}
	}

	response := gin.H{
		"status":    "ready",
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"checks":    gin.H{"database": database},
	}
	if !ready {
		response["status"] = "not_ready"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}
