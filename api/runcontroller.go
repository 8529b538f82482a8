package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"newsbot/orchestrator"

	"github.com/gin-gonic/gin"
)

type runRequest struct {
	RunDate string `json:"run_date"`
}

// RegisterRunRoutes registers the status and manual trigger endpoints.
func RegisterRunRoutes(r *gin.Engine, deps Deps) {
	g := r.Group("/api")
	g.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.Manager.GetStatus())
	})
	g.POST("/run", func(c *gin.Context) { handleRun(c, deps) })
}

// handleRun starts a run asynchronously and returns 202 Accepted immediately.
// The date comes from the JSON body or the ?date= query parameter.
func handleRun(c *gin.Context, deps Deps) {
	var req runRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.RunDate == "" {
		req.RunDate = c.Query("date")
	}
	if req.RunDate != "" {
		if _, err := time.Parse(time.DateOnly, req.RunDate); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "run_date must be YYYY-MM-DD"})
			return
		}
	}

	if deps.Manager.Busy() {
		c.JSON(http.StatusConflict, gin.H{
			"error": "run already in progress",
			"state": deps.Manager.GetState(),
		})
		return
	}

	go func() {
		_, err := deps.Runner.Run(context.Background(), req.RunDate)
		switch {
		case errors.Is(err, orchestrator.ErrBusy):
			deps.Logger.Warn("manual run skipped: a run is in progress")
		case err != nil:
			deps.Logger.Error("manual run failed", "run_date", req.RunDate, "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "started", "run_date": req.RunDate})
}
