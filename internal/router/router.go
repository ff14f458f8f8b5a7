package router

import (
	"github.com/gin-gonic/gin"
	"github.com/maverick-software/toolboxd/internal/handlers"
	"github.com/maverick-software/toolboxd/internal/middleware"
)

// Setup configures and returns the application router
func Setup(
	healthHandler *handlers.HealthHandler,
	environmentHandler *handlers.EnvironmentHandler,
	instanceHandler *handlers.InstanceHandler,
	catalogHandler *handlers.CatalogHandler,
) *gin.Engine {

	// Create a new Gin router
	router := gin.Default()

	// Apply CORS middleware globally
	router.Use(middleware.CORS())

	// API v1 routes
	v1 := router.Group("/api/v1")

	// Apply authentication middleware to all routes
	v1.Use(middleware.Authentication())

	// Health check
	v1.GET("/health", healthHandler.Check)

	// Toolbox environment routes
	toolboxes := v1.Group("/toolboxes")
	{
		toolboxes.POST("", environmentHandler.Provision)
		toolboxes.GET("", environmentHandler.List)
		toolboxes.GET("/orphans", environmentHandler.Orphans)
		toolboxes.GET("/:toolbox_id", environmentHandler.Get)
		toolboxes.POST("/:toolbox_id/refresh", environmentHandler.Refresh)
		toolboxes.DELETE("/:toolbox_id", environmentHandler.Deprovision)

		// Tool instances scoped to a Toolbox
		toolboxes.POST("/:toolbox_id/tools", instanceHandler.Deploy)
		toolboxes.GET("/:toolbox_id/tools", instanceHandler.List)
	}

	// Tool instance command routes
	tools := v1.Group("/tools")
	{
		tools.POST("/:instance_id/start", instanceHandler.Start)
		tools.POST("/:instance_id/stop", instanceHandler.Stop)
		tools.DELETE("/:instance_id", instanceHandler.Remove)
	}

	// Tool catalog routes
	catalog := v1.Group("/catalog")
	{
		catalog.POST("", catalogHandler.Create)
		catalog.GET("", catalogHandler.List)
		catalog.GET("/:entry_id", catalogHandler.Get)
		catalog.DELETE("/:entry_id", catalogHandler.Delete)
	}

	return router
}
