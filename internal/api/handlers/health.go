package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/whynot231455/mmm-sol-dashboard/internal/cache"
)

var startTime = time.Now()

// HealthChecker is implemented by every optional backing service
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// CacheStatsProvider exposes the series cache counters
type CacheStatsProvider interface {
	Stats() cache.Stats
}

type HealthHandler struct {
	db      HealthChecker
	redis   HealthChecker
	cache   CacheStatsProvider
	version string
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Cache     *cache.Stats      `json:"cache,omitempty"`
}

// NewHealthHandler creates a health handler. A nil checker marks that service
// as disabled, which does not degrade the status.
func NewHealthHandler(db, redis HealthChecker, cacheStats CacheStatsProvider, version string) *HealthHandler {
	return &HealthHandler{
		db:      db,
		redis:   redis,
		cache:   cacheStats,
		version: version,
	}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	services := map[string]string{
		"database": checkService(ctx, h.db),
		"redis":    checkService(ctx, h.redis),
	}

	overallStatus := "healthy"
	for _, status := range services {
		if status != "healthy" && status != "disabled" {
			overallStatus = "degraded"
			break
		}
	}

	response := HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Services:  services,
		Version:   h.version,
		Uptime:    time.Since(startTime).String(),
	}
	if h.cache != nil {
		stats := h.cache.Stats()
		response.Cache = &stats
	}

	statusCode := http.StatusOK
	if overallStatus != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

func checkService(ctx context.Context, checker HealthChecker) string {
	if checker == nil {
		return "disabled"
	}
	if err := checker.HealthCheck(ctx); err != nil {
		return "unhealthy: " + err.Error()
	}
	return "healthy"
}
