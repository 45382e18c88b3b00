package http

import (
	"github.com/gin-gonic/gin"

	"github.com/hikeshare/importer/internal/database"
	"github.com/hikeshare/importer/internal/progress"
)

// RouterConfig receives all router dependencies in one place, keeping
// wiring testable and the parameter count down.
type RouterConfig struct {
	DB         *database.Database
	Starter    ImportStarter
	Dispatcher RunDispatcher
	JobReader  JobReader
	Reporter   *progress.Reporter
	Version    string
}

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	healthController := NewHealthController(cfg.DB, cfg.Version)
	router.GET("/health", healthController.Status)

	importController := NewImportController(cfg.Starter, cfg.Dispatcher)
	jobsController := NewJobsController(cfg.JobReader, cfg.Reporter)

	api := router.Group("/api/import")
	{
		api.POST("/trails", importController.Trigger)
		api.POST("/bulk", importController.TriggerBulk)
		api.GET("/jobs", jobsController.ListJobs)
		api.GET("/jobs/:id", jobsController.GetJob)
		api.GET("/bulk/:id", jobsController.GetBulkJob)
	}

	return router
}
