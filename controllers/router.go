package controllers

import (
	"service-nanny/internal/config"
	"service-nanny/internal/logger"
	"service-nanny/internal/middleware"
	"service-nanny/services"

	"github.com/gin-gonic/gin"
)

/**
 * Build the control surface router
 * @param {*services.Server} server - Server instance
 * @param {config.ServerConfig} cfg - Server configuration, for the request limit and CORS origins
 * @returns {*gin.Engine} Router with recovery, logging, metrics and routes registered
 */
func NewRouter(server *services.Server, cfg config.ServerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger.Z()))
	r.Use(middleware.MetricsMiddleware())
	if corsHandler := middleware.CORS(cfg.CorsOrigins); corsHandler != nil {
		r.Use(corsHandler)
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	limited := r.Group("", middleware.ConcurrencyLimit(int64(cfg.MaxConcurrent)))

	NewAPIController(server).RegisterRoutes(r, limited)
	NewServiceController(server).RegisterRoutes(limited)
	return r
}
