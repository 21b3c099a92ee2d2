package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailpool/api/handlers"
	"github.com/customeros/mailpool/api/middleware"
	"github.com/customeros/mailpool/internal/tracing"
	"github.com/customeros/mailpool/services"
)

const AppSource = "mailpool"

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(ctx context.Context, r *gin.Engine, s *services.Services, apikey string) {
	if s == nil {
		panic("Services cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())                                         // Gin's built-in recovery
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer())) // Our custom Jaeger recovery

	apiHandlers := handlers.InitHandlers(s)

	// Health check (no api key, no custom context)
	r.GET("/health", handlers.HealthCheck(s))

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  middleware.APIKeyHeader,
		ValidAPIKey: apikey,
	})

	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.CustomContextMiddleware(AppSource))
	api.Use(middleware.TracingMiddleware())
	{
		api.GET("/stats", handlers.Stats(s))
		api.POST("/check", apiHandlers.Emails.Check())

		emails := api.Group("/emails")
		{
			emails.POST("/:id/reply", apiHandlers.Emails.Reply())
		}
	}
}
