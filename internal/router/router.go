package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/imyashkale/provisioner/internal/handlers"
	"github.com/imyashkale/provisioner/internal/metrics"
	"github.com/imyashkale/provisioner/internal/middleware"
)

// Options carries the cross-cutting settings of the route table
type Options struct {
	JWTSecret       string
	RateLimiter     middleware.RateLimiter
	CreateRateLimit int
}

// Handlers groups every HTTP handler the router mounts
type Handlers struct {
	Health         *handlers.HealthHandler
	Me             *handlers.MeHandler
	Instances      *handlers.InstanceHandler
	DeploymentLogs *handlers.DeploymentLogHandler
}

// Setup configures and returns the application router
func Setup(h Handlers, opts Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestMetrics())

	// Apply CORS middleware globally
	router.Use(middleware.CORS())

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")

	// Health check stays reachable without a token
	v1.GET("/health", h.Health.Check)

	authed := v1.Group("")
	authed.Use(middleware.Authentication(opts.JWTSecret))

	authed.GET("/me", h.Me.Get)

	instances := authed.Group("/instances")
	{
		instances.POST("", middleware.RateLimit(opts.RateLimiter, opts.CreateRateLimit, time.Minute), h.Instances.Create)
		instances.GET("", h.Instances.List)
		instances.GET("/:id", h.Instances.Get)
	}

	logs := authed.Group("/deployment-logs")
	{
		logs.GET("", h.DeploymentLogs.List)
		logs.GET("/:id", h.DeploymentLogs.Get)
	}

	admin := authed.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	{
		admin.POST("/instances/:id/stop", h.Instances.Stop)
	}

	return router
}
