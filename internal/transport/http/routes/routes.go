package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/biomed-platform-security/internal/core/port"
	"github.com/arklim/biomed-platform-security/internal/infra/config"
	"github.com/arklim/biomed-platform-security/internal/transport/http/handlers"
	"github.com/arklim/biomed-platform-security/internal/transport/http/middleware"
	"github.com/arklim/biomed-platform-security/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth          *usecase.AuthService
	Directory     *usecase.DirectoryService
	Groups        *usecase.GroupService
	Memberships   *usecase.MembershipService
	Policies      *usecase.PolicyService
	Impersonation *usecase.ImpersonationService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
	Services    ServiceSet
	Resources   port.ResourceRepository
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Actor())
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)
	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		logFailures := deps.Config.Security.LogAuthFailures

		authHandler := handlers.NewAuthHandler(deps.Services.Auth, deps.Services.Directory, logFailures)
		authHandler.RegisterRoutes(api.Group("/auth"), buildLoginMiddlewares(deps)...)

		userHandler := handlers.NewUserHandler(deps.Services.Directory)
		userHandler.RegisterRoutes(api.Group("/users"))

		groupHandler := handlers.NewGroupHandler(deps.Services.Groups, deps.Services.Directory, deps.Services.Memberships)
		groupHandler.RegisterRoutes(api.Group("/groups"))

		policyHandler := handlers.NewPolicyHandler(deps.Services.Policies, deps.Resources, deps.Services.Directory)
		policyHandler.RegisterRoutes(api.Group("/resources"))

		impersonationHandler := handlers.NewImpersonationHandler(deps.Services.Impersonation, deps.Services.Directory, deps.Resources)
		impersonationHandler.RegisterRoutes(api.Group("/impersonate"))
	}

	return r
}

func buildLoginMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	limit := deps.Config.RateLimit.LoginMaxAttempts
	if limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       "auth_login_ip",
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
