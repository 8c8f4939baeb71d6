package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
	"github.com/arklim/biomed-platform-security/internal/core/port"
	"github.com/arklim/biomed-platform-security/internal/infra/config"
	"github.com/arklim/biomed-platform-security/internal/infra/database"
	kafkainfra "github.com/arklim/biomed-platform-security/internal/infra/kafka"
	"github.com/arklim/biomed-platform-security/internal/infra/logger"
	"github.com/arklim/biomed-platform-security/internal/infra/notify"
	redisinfra "github.com/arklim/biomed-platform-security/internal/infra/redis"
	"github.com/arklim/biomed-platform-security/internal/infra/security"
	postgresrepo "github.com/arklim/biomed-platform-security/internal/repository/postgres"
	redisrepo "github.com/arklim/biomed-platform-security/internal/repository/redis"
	"github.com/arklim/biomed-platform-security/internal/transport/http/middleware"
	"github.com/arklim/biomed-platform-security/internal/transport/http/routes"
	"github.com/arklim/biomed-platform-security/internal/usecase"
)

// auditEventPublisher is the combined sink the Kafka implementations
// satisfy: one producer handles both the audit trail and domain
// notifications.
type auditEventPublisher interface {
	port.AuditLogger
	port.EventPublisher
}

// Application owns the wired object graph and the HTTP server lifecycle.
type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
	kafka  *kafkainfra.Producer
}

// New builds the application: config to infrastructure to repositories to
// services to routes.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	var publisher auditEventPublisher
	var producer *kafkainfra.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			producer = nil
			publisher = kafkainfra.NewStubPublisher(log)
		} else {
			publisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		publisher = kafkainfra.NewStubPublisher(log)
	}

	policyCacheTTL := cfg.Redis.PolicyCacheTTL
	if policyCacheTTL <= 0 {
		policyCacheTTL = 5 * time.Minute
	}
	policyCache := redisrepo.NewPolicyCacheRepository(redisClient.Client(), cfg.Redis.PolicyCachePrefix, policyCacheTTL)

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.RateLimitPrefix,
		TTL:       rateLimitWindow * 2,
	})
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	verifier := notify.NewLoggingVerificationSender(log, cfg.App.Env == "development")

	resolver := usecase.NewMembershipService(repos.Memberships)
	directory := usecase.NewDirectoryService(repos.Users, repos.Groups, resolver, log)
	groupService := usecase.NewGroupService(repos.Groups, repos.Memberships, repos.Policies, policyCache, resolver, directory, publisher, publisher, log)
	policyService := usecase.NewPolicyService(repos.Policies, repos.Resources, policyCache, resolver, domain.DefaultRoleRegistry(), publisher, publisher, log)
	impersonationService := usecase.NewImpersonationService(directory, resolver, policyService, publisher, log)

	providers := usecase.NewProviderRegistry()
	databaseProvider := security.NewDatabaseProvider(repos.Users, repos.Credentials, log)
	providers.Register(usecase.Provider{
		Name: security.DatabaseProviderName,
		Form: databaseProvider,
	})
	if cfg.Security.SSOHeaderEnabled && cfg.Security.SSOHeader != "" {
		headerProvider := security.NewHeaderProvider(cfg.Security.SSOHeader, log)
		providers.RegisterFront(usecase.Provider{
			Name:    security.HeaderProviderName,
			Request: headerProvider,
		})
		log.Info("sso header provider enabled", zap.String("header", cfg.Security.SSOHeader))
	}

	authService := usecase.NewAuthService(providers, repos.Users, repos.Credentials, verifier, publisher, publisher, log)

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Metrics:     metrics,
		Resources:   repos.Resources,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Auth:          authService,
			Directory:     directory,
			Groups:        groupService,
			Memberships:   resolver,
			Policies:      policyService,
			Impersonation: impersonationService,
		},
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
		kafka:  producer,
	}, nil
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the server fails.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.kafka != nil {
			if err := a.kafka.Close(); err != nil {
				a.logger.Warn("kafka producer close failed", zap.Error(err))
			}
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting security API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
