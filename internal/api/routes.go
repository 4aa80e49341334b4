package api

import (
	"github.com/RishiKendai/winnow/internal/config"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(cfg *config.Config, handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	rateLimiter := NewRateLimiter(cfg.RateLimitRPS, max(1, int(cfg.RateLimitRPS*2)))

	router.Use(MetricsMiddleware())
	router.Use(ErrorHandlerMiddleware())

	// Health endpoint (no auth)
	router.GET("/health", handler.Health)

	api := router.Group("/api/v1")
	api.Use(JWTAuthMiddleware(cfg.JWTSecret, cfg.JWTIssuer))
	api.Use(RateLimitMiddleware(rateLimiter))
	{
		api.POST("/compute", handler.Compute)
		api.GET("/status/:assignmentId", handler.Status)
		api.GET("/reports/:assignmentId", handler.Report)
	}

	return router
}
