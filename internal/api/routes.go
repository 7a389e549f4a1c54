package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all API routes
func SetupRoutes(handlers *Handlers) *gin.Engine {
	router := gin.Default()

	// Add CORS middleware
	router.Use(corsMiddleware())

	// API routes (no auth, the service is meant to run behind a gateway)
	api := router.Group("/api")
	{
		decisions := api.Group("/decisions")
		{
			decisions.POST("", handlers.CreateDecisionHandler)
			decisions.GET("", handlers.ListDecisionsHandler)
			decisions.GET("/:id", handlers.GetDecisionHandler)
			decisions.DELETE("/:id", handlers.DeleteDecisionHandler)
			decisions.POST("/:id/runs", handlers.StartRunHandler)
			decisions.GET("/:id/report", handlers.GetReportHandler)
			decisions.GET("/:id/explain", handlers.ExplainHandler)
			decisions.GET("/:id/export", handlers.ExportHandler)
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return router
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
