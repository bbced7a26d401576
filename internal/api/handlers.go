package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"asset-tracker/internal/app"
	"asset-tracker/internal/db"
	"asset-tracker/internal/logging"
)

// GET /health
func HealthHandler(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(c.Request.Context(), a.DB); err != nil {
			logging.LogError(a.Logger, "health check failed", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// GET /metrics
func MetricsHandler(a *app.App) gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
}
