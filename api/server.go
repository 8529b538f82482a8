package api

import (
	"context"
	"log/slog"

	"newsbot/orchestrator"
	"newsbot/runstate"

	"github.com/gin-gonic/gin"
)

// RunTrigger starts a pipeline run for a date ("" for today)
type RunTrigger interface {
	Run(ctx context.Context, runDate string) (*orchestrator.Result, error)
}

// Deps are the services the handlers read from
type Deps struct {
	Runner  RunTrigger
	Manager *orchestrator.Manager
	Store   runstate.Store
	Logger  *slog.Logger
}

// NewRouter constructs a Gin engine with registered routes.
func NewRouter(deps Deps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	r := gin.New()
	// Minimal middleware: recovery; logger optional to reduce verbosity
	r.Use(gin.Recovery())

	RegisterHealthRoutes(r, deps)
	RegisterRunRoutes(r, deps)
	RegisterStateRoutes(r, deps)
	return r
}
