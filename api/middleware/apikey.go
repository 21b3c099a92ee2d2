package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	mailerrors "github.com/customeros/mailpool/internal/errors"
)

const APIKeyHeader = "X-MAILPOOL-API-KEY"

// APIKeyConfig holds the configuration for API key authentication
type APIKeyConfig struct {
	HeaderName  string
	ValidAPIKey string
}

// APIKeyMiddleware rejects requests without the configured API key.
// With no key configured every request is rejected.
func APIKeyMiddleware(config APIKeyConfig) gin.HandlerFunc {
	if config.HeaderName == "" {
		config.HeaderName = APIKeyHeader
	}
	return func(c *gin.Context) {
		apiKey := strings.TrimSpace(c.GetHeader(config.HeaderName))

		switch {
		case config.ValidAPIKey == "":
			unauthorized(c, "API key is not configured")
		case apiKey == "":
			unauthorized(c, "Missing API key")
		case subtle.ConstantTimeCompare([]byte(apiKey), []byte(config.ValidAPIKey)) != 1:
			unauthorized(c, "Invalid API key")
		default:
			c.Next()
		}
	}
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, mailerrors.ErrorResponse{
		Success:   false,
		ErrorType: mailerrors.KindValidation,
		Message:   message,
	})
}
