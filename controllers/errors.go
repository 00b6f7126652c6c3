package controllers

import (
	"net/http"

	"service-nanny/internal/models"
	"service-nanny/services"

	"github.com/gin-gonic/gin"
)

const codeInvalidRequest = "request.invalid"

var kindStatus = map[services.ErrorKind]int{
	services.KindUnknownService:   http.StatusNotFound,
	services.KindResourceConflict: http.StatusConflict,
	services.KindStartFailed:      http.StatusInternalServerError,
	services.KindStopFailed:       http.StatusInternalServerError,
	services.KindLogsUnavailable:  http.StatusServiceUnavailable,
	services.KindDiscoveryFailed:  http.StatusInternalServerError,
}

// StatusOf maps an error kind to its HTTP status.
func StatusOf(kind services.ErrorKind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	kind := services.KindOf(err)
	c.JSON(StatusOf(kind), &models.ErrorResponse{
		Code:   string(kind),
		Error:  err.Error(),
		Holder: services.HolderOf(err),
	})
}

func respondInvalid(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, &models.ErrorResponse{
		Code:  codeInvalidRequest,
		Error: msg,
	})
}
