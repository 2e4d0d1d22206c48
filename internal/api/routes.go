package api

import (
	"github.com/gin-gonic/gin"

	"github.com/whynot231455/mmm-sol-dashboard/internal/api/handlers"
	"github.com/whynot231455/mmm-sol-dashboard/internal/logging"
	"github.com/whynot231455/mmm-sol-dashboard/internal/middleware"
	"github.com/whynot231455/mmm-sol-dashboard/internal/workspace"
)

// Dependencies are the collaborators shared by every route
type Dependencies struct {
	Workspace  *workspace.Service
	Logger     *logging.StandardLogger
	DB         handlers.HealthChecker
	Redis      handlers.HealthChecker
	CacheStats handlers.CacheStatsProvider
	Version    string
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Redis, deps.CacheStats, deps.Version)
	workspaceHandler := handlers.NewWorkspaceHandler(deps.Workspace, deps.Logger)
	analysisHandler := handlers.NewAnalysisHandler(deps.Workspace)
	datasetHandler := handlers.NewDatasetHandler(deps.Workspace, deps.Logger)

	// Health check endpoints
	router.GET("/health", middleware.HealthCheckTelemetryMiddleware(), healthHandler.HealthCheck)
	router.HEAD("/health", middleware.HealthCheckTelemetryMiddleware(), healthHandler.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthHandler.HealthCheck)

		// Import and workspace state
		v1.POST("/import", workspaceHandler.Import)
		v1.GET("/state", workspaceHandler.GetState)
		v1.DELETE("/state", workspaceHandler.ResetState)
		v1.PUT("/mapping", workspaceHandler.SetMapping)
		v1.PUT("/filters", workspaceHandler.SetFilters)
		v1.PUT("/page", workspaceHandler.SetPage)

		transform := v1.Group("/transform")
		{
			transform.GET("", analysisHandler.GetTransform)
			transform.GET("/curve", analysisHandler.GetCurve)
			transform.PATCH("/settings", workspaceHandler.UpdateSettings)
		}

		v1.GET("/measure", analysisHandler.GetMeasure)
		v1.POST("/optimize", analysisHandler.PostOptimize)
		v1.POST("/predict", analysisHandler.PostPredict)
		v1.GET("/preflight", analysisHandler.GetPreflight)

		// Dataset archive
		datasets := v1.Group("/datasets")
		{
			datasets.GET("", datasetHandler.ListDatasets)
			datasets.POST("/:id/load", datasetHandler.LoadDataset)
			datasets.DELETE("/:id", datasetHandler.DeleteDataset)
		}
	}
}
