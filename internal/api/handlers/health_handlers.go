package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/solfortune/custody-service/internal/infrastructure/cache"
	"github.com/solfortune/custody-service/internal/infrastructure/database"
	"github.com/solfortune/custody-service/pkg/logger"
)

// ChainHealthChecker reports whether the RPC endpoint answers
type ChainHealthChecker interface {
	Healthy(ctx context.Context) bool
}

// HealthHandlers handles health and readiness probes
type HealthHandlers struct {
	db     *sqlx.DB
	redis  cache.RedisClient
	chain  ChainHealthChecker
	logger *logger.Logger
}

// NewHealthHandlers creates a new HealthHandlers instance
func NewHealthHandlers(db *sqlx.DB, redis cache.RedisClient, chain ChainHealthChecker, logger *logger.Logger) *HealthHandlers {
	return &HealthHandlers{db: db, redis: redis, chain: chain, logger: logger}
}

// Liveness handles GET /health
func (h *HealthHandlers) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness handles GET /health/ready. The chain check is advisory: a laggy
// RPC degrades features but the service can still answer reads.
func (h *HealthHandlers) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true

	if err := database.HealthCheck(h.db); err != nil {
		checks["database"] = "unhealthy"
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			checks["redis"] = "unhealthy"
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	if h.chain != nil {
		if h.chain.Healthy(ctx) {
			checks["chain_rpc"] = "ok"
		} else {
			checks["chain_rpc"] = "degraded"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": checks})
}
