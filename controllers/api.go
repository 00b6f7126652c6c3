package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"service-nanny/internal/models"
	"service-nanny/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type APIController struct {
	server *services.Server
}

/**
 * Create new API controller instance
 * @param {*services.Server} server - Server instance
 * @returns {*APIController} New API controller instance
 * @example
 * controller := controllers.NewAPIController(server)
 * controller.RegisterRoutes(router, limited)
 */
func NewAPIController(server *services.Server) *APIController {
	return &APIController{
		server: server,
	}
}

/**
 * Register daemon-level routes
 * @param {gin.IRouter} r - Unlimited router for liveness and metrics
 * @param {gin.IRouter} limited - Router behind the concurrency limiter
 * @description
 * - /, /health, /resource, /events and /metrics are never queued
 * - /rediscover shares the control request limit
 */
func (a *APIController) RegisterRoutes(r gin.IRouter, limited gin.IRouter) {
	r.GET("/", a.Root)
	r.GET("/health", a.Health)
	r.GET("/resource", a.Resource)
	r.GET("/events", a.Events)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	limited.POST("/rediscover", a.Rediscover)
}

// @Summary 服务信息
// @Tags System
// @Produce json
// @Success 200 {object} models.RootResponse
// @Router / [get]
func (a *APIController) Root(c *gin.Context) {
	c.JSON(http.StatusOK, a.server.Root())
}

// @Summary 存活探针
// @Description 返回版本、运行时间、已发现与运行中的服务数量和独占资源持有者
// @Tags System
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Router /health [get]
func (a *APIController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, a.server.GetHealthz())
}

// @Summary 独占资源持有者
// @Tags System
// @Produce json
// @Success 200 {object} models.HolderInfo
// @Router /resource [get]
func (a *APIController) Resource(c *gin.Context) {
	c.JSON(http.StatusOK, a.server.Resource())
}

// @Summary 生命周期事件
// @Tags System
// @Produce json
// @Param limit query int false "Number of events, default 50"
// @Success 200 {object} models.EventsResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /events [get]
func (a *APIController) Events(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondInvalid(c, "events: limit must be an integer")
			return
		}
		limit = n
	}
	events, err := a.server.Events(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, &models.ErrorResponse{
			Code:  string(services.KindInternal),
			Error: fmt.Sprintf("events: %v", err),
		})
		return
	}
	c.JSON(http.StatusOK, models.EventsResponse{Events: events})
}

// @Summary 重新扫描服务目录
// @Description 重新发现服务清单，替换注册表内容，运行中的服务不受影响
// @Tags System
// @Produce json
// @Success 200 {object} models.RediscoverResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /rediscover [post]
func (a *APIController) Rediscover(c *gin.Context) {
	n, skipped, err := a.server.Rescan(c.Request.Context())
	if err != nil {
		var opErr *services.OpError
		if !errors.As(err, &opErr) {
			err = &services.OpError{Op: "discover", Kind: services.KindDiscoveryFailed, Err: err}
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.RediscoverResponse{
		Message:    fmt.Sprintf("discovered %d service(s)", n),
		Discovered: n,
		Skipped:    skipped,
	})
}
