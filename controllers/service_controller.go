package controllers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"service-nanny/internal/models"
	"service-nanny/services"

	"github.com/gin-gonic/gin"
)

type ServiceController struct {
	server *services.Server
}

/**
 * Create new Service controller instance
 * @param {*services.Server} server - Server owning the registry and lifecycle controller
 * @returns {*ServiceController} New Service controller instance
 * @example
 * controller := controllers.NewServiceController(server)
 * controller.RegisterRoutes(router)
 */
func NewServiceController(server *services.Server) *ServiceController {
	return &ServiceController{
		server: server,
	}
}

/**
 * Register all service API routes
 * @param {gin.IRouter} r - Router or group, usually behind the concurrency limiter
 * @description
 * - Registers routes for:
 *   - Service discovery results (list/get)
 *   - Lifecycle (start/stop/status)
 *   - Runtime logs
 */
func (s *ServiceController) RegisterRoutes(r gin.IRouter) {
	// 服务管理接口
	r.GET("/services", s.ListServices)
	r.GET("/services/:name", s.GetService)
	r.GET("/services/:name/status", s.ServiceStatus)
	r.POST("/services/:name/start", s.StartService)
	r.POST("/services/:name/stop", s.StopService)
	r.GET("/services/:name/logs", s.ServiceLogs)
}

// ListServices lists all discovered services
//
//	@Summary		List all services
//	@Description	Get all discovered services with their lifecycle state and the exclusive resource holder
//	@Tags			Services
//	@Produce		json
//	@Success		200	{object}	models.ServiceListResponse
//	@Router			/services [get]
func (s *ServiceController) ListServices(c *gin.Context) {
	c.JSON(http.StatusOK, s.server.List())
}

// GetService describes one service
//
//	@Summary		Get service
//	@Description	Get the descriptor and lifecycle state of a service
//	@Tags			Services
//	@Produce		json
//	@Param			name	path		string	true	"Service name"
//	@Success		200		{object}	models.ServiceInfo
//	@Failure		404		{object}	models.ErrorResponse	"Service not found error response"
//	@Router			/services/{name} [get]
func (s *ServiceController) GetService(c *gin.Context) {
	info, err := s.server.Describe(c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// ServiceStatus reports running and health state
//
//	@Summary		Service status
//	@Description	Probe the runtime and, if running, the health endpoint of a service
//	@Tags			Services
//	@Produce		json
//	@Param			name	path		string	true	"Service name"
//	@Success		200		{object}	models.ServiceStatus
//	@Failure		404		{object}	models.ErrorResponse	"Service not found error response"
//	@Router			/services/{name}/status [get]
func (s *ServiceController) ServiceStatus(c *gin.Context) {
	status, err := s.server.Services().Status(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// StartService starts a specific service by name
//
//	@Summary		Start service
//	@Description	Start a service, with force the current exclusive resource holder is stopped first
//	@Tags			Services
//	@Accept			json
//	@Produce		json
//	@Param			name	path		string					true	"Service name"
//	@Param			force	query		bool					false	"Stop the resource holder first"
//	@Param			body	body		models.StartRequest		false	"Start options"
//	@Success		200		{object}	models.StartResponse
//	@Failure		400		{object}	models.ErrorResponse	"Malformed request"
//	@Failure		404		{object}	models.ErrorResponse	"Service not found error response"
//	@Failure		409		{object}	models.ErrorResponse	"Exclusive resource held by another service"
//	@Failure		500		{object}	models.ErrorResponse	"Start failed"
//	@Router			/services/{name}/start [post]
func (s *ServiceController) StartService(c *gin.Context) {
	name := c.Param("name")

	var req models.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondInvalid(c, fmt.Sprintf("start '%s': malformed body: %v", name, err))
		return
	}
	if raw, ok := c.GetQuery("force"); ok {
		force, err := strconv.ParseBool(raw)
		if err != nil {
			respondInvalid(c, fmt.Sprintf("start '%s': force must be a boolean", name))
			return
		}
		req.Force = req.Force || force
	}

	res, err := s.server.Services().Start(c.Request.Context(), name, req.Force)
	if err != nil {
		respondError(c, err)
		return
	}

	msg := fmt.Sprintf("service %s started", name)
	if res.AlreadyRunning {
		msg = fmt.Sprintf("service %s is already running", name)
	}
	c.JSON(http.StatusOK, models.StartResponse{
		Message:        msg,
		Status:         string(res.Status),
		HealthCheckURL: res.HealthCheckURL,
		AlreadyRunning: res.AlreadyRunning,
	})
}

// StopService stops a specific service by name
//
//	@Summary		Stop service
//	@Description	Stop a service, stopping a stopped service succeeds
//	@Tags			Services
//	@Produce		json
//	@Param			name	path		string	true	"Service name"
//	@Success		200		{object}	models.StopResponse
//	@Failure		404		{object}	models.ErrorResponse	"Service not found error response"
//	@Failure		500		{object}	models.ErrorResponse	"Stop failed"
//	@Router			/services/{name}/stop [post]
func (s *ServiceController) StopService(c *gin.Context) {
	name := c.Param("name")
	if err := s.server.Services().Stop(c.Request.Context(), name); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.StopResponse{
		Message: fmt.Sprintf("service %s stopped", name),
		Status:  string(models.StateStopped),
	})
}

// ServiceLogs returns the tail of a service's runtime logs
//
//	@Summary		Service logs
//	@Tags			Services
//	@Produce		json
//	@Param			name	path		string	true	"Service name"
//	@Param			tail	query		int		false	"Number of lines, default 100"
//	@Success		200		{object}	models.LogsResponse
//	@Failure		404		{object}	models.ErrorResponse	"Service not found error response"
//	@Failure		503		{object}	models.ErrorResponse	"Runtime could not provide logs"
//	@Router			/services/{name}/logs [get]
func (s *ServiceController) ServiceLogs(c *gin.Context) {
	name := c.Param("name")
	tail := 0
	if raw := c.Query("tail"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondInvalid(c, fmt.Sprintf("logs '%s': tail must be an integer", name))
			return
		}
		tail = n
	}
	tail = services.ClampTail(tail)

	lines, err := s.server.Services().Logs(c.Request.Context(), name, tail)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.LogsResponse{Service: name, Tail: tail, Logs: lines})
}
