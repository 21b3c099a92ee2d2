package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailpool/services"
)

// HealthCheck reports liveness and whether the service runs in limited mode
func HealthCheck(s *services.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.ConfigErr != nil {
			c.JSON(http.StatusOK, gin.H{
				"status":       services.StatusLimited,
				"config_error": s.ConfigErr.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": services.StatusOK,
		})
	}
}

// Stats returns pool, cache and performance counters
func Stats(s *services.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, s.GetStats())
	}
}
