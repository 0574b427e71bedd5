package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes wires the handlers onto the router. Middleware passed here
// applies to the text endpoint but not to health checks, so a rate limiter
// never blocks liveness probes.
func RegisterRoutes(router *gin.Engine, a *API, middleware ...gin.HandlerFunc) {
	router.GET("/health", a.HealthHandler)

	text := router.Group("/")
	text.Use(middleware...)
	{
		text.POST("/text", a.TextHandler)
	}
}
