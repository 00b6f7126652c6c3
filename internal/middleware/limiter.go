package middleware

import (
	"net/http"

	"service-nanny/internal/models"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"
)

/**
 * Bound the number of concurrently handled requests
 * @param {int64} n - Slots, at least 1
 * @description
 * - Requests wait for a slot and get 503 once their context ends while waiting
 */
func ConcurrencyLimit(n int64) gin.HandlerFunc {
	if n < 1 {
		n = 1
	}
	sem := semaphore.NewWeighted(n)
	return func(c *gin.Context) {
		if err := sem.Acquire(c.Request.Context(), 1); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, models.ErrorResponse{
				Code:  "server.busy",
				Error: "too many concurrent requests: " + err.Error(),
			})
			return
		}
		defer sem.Release(1)
		c.Next()
	}
}
