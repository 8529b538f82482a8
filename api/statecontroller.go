package api

import (
	"errors"
	"net/http"

	"newsbot/runstate"

	"github.com/gin-gonic/gin"
)

// RegisterStateRoutes registers read-only RunState endpoints.
func RegisterStateRoutes(r *gin.Engine, deps Deps) {
	g := r.Group("/api/runs")
	g.GET("", func(c *gin.Context) { handleListRuns(c, deps) })
	g.GET("/:date", func(c *gin.Context) { handleGetRun(c, deps) })
}

func handleListRuns(c *gin.Context, deps Deps) {
	dates, err := deps.Store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs: " + err.Error()})
		return
	}
	if dates == nil {
		dates = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": dates})
}

func handleGetRun(c *gin.Context, deps Deps) {
	state, err := deps.Store.Load(c.Request.Context(), c.Param("date"))
	switch {
	case errors.Is(err, runstate.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "no run for " + c.Param("date")})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load run: " + err.Error()})
	default:
		c.JSON(http.StatusOK, state)
	}
}
