package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/customeros/mailpool/internal/utils"
)

// CustomContextMiddleware attaches the app source and request id to every request
func CustomContextMiddleware(appSource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := utils.WithCustomContextFromGinRequest(c, appSource)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
