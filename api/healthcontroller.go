package api

import (
	"context"
	"net/http"
	"time"

	"newsbot/runstate"

	"github.com/gin-gonic/gin"
)

const healthTimeout = 2 * time.Second

// RegisterHealthRoutes registers health check endpoints.
func RegisterHealthRoutes(r *gin.Engine, deps Deps) {
	r.GET("/api/health", func(c *gin.Context) { handleHealth(c, deps) })
}

func handleHealth(c *gin.Context, deps Deps) {
	if deps.Store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		if err := runstate.Ping(ctx, deps.Store); err != nil {
			deps.Logger.Warn("health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
