/**
 * @description
 * Entry point for the back-office service. It loads configuration, connects to Postgres
 * (and optionally Redis and RabbitMQ), wires the authorization gate, the transactional
 * executor and the operation layer, then serves the HTTP API until a termination signal.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - github.com/redis/go-redis/v9: Shared attempt limiter and settings cache when REDIS_URL is set.
 * - go.uber.org/zap: Structured logging.
 */
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/farmacias-vallenar/backoffice-service/internal/api"
	"github.com/farmacias-vallenar/backoffice-service/internal/app"
	"github.com/farmacias-vallenar/backoffice-service/internal/audit"
	"github.com/farmacias-vallenar/backoffice-service/internal/authz"
	"github.com/farmacias-vallenar/backoffice-service/internal/config"
	"github.com/farmacias-vallenar/backoffice-service/internal/credential"
	"github.com/farmacias-vallenar/backoffice-service/internal/executor"
	"github.com/farmacias-vallenar/backoffice-service/internal/logging"
	"github.com/farmacias-vallenar/backoffice-service/internal/ratelimit"
	"github.com/farmacias-vallenar/backoffice-service/internal/settings"
	"github.com/farmacias-vallenar/backoffice-service/internal/store"
	"github.com/farmacias-vallenar/backoffice-service/migrations"
	"github.com/farmacias-vallenar/backoffice-service/pkg/rabbitmq"
)

func main() {
	// Load .env file for local development.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	if cfg.RunMigrations {
		if err := migrations.Apply(cfg.DatabaseURL, logging.Component(logger, "migrations")); err != nil {
			logger.Fatal("failed to apply migrations", zap.Error(err))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbpool, err := store.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("unable to connect to database", zap.Error(err))
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	redisClient := connectRedis(cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	policy := ratelimit.Policy{MaxAttempts: cfg.PINMaxAttempts, LockoutDuration: cfg.PINLockout()}
	var (
		limiter  ratelimit.Limiter
		cache    settings.Cache
		sweepers []app.Sweeper
	)
	if redisClient != nil {
		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.RedisKeyPrefix, policy, logging.Component(logger, "attempt_limiter"))
		cache = settings.NewRedisCache(redisClient, cfg.RedisKeyPrefix, cfg.PublicSettingsCacheTTL(), logging.Component(logger, "settings_cache"))
	} else {
		memoryLimiter := ratelimit.NewMemoryLimiter(policy, ratelimit.WithLogger(logging.Component(logger, "attempt_limiter")))
		limiter = memoryLimiter
		sweepers = append(sweepers, memoryLimiter)
		cache = settings.NewMemoryCache(cfg.PublicSettingsCacheTTL())
	}

	var publisher rabbitmq.Publisher = &rabbitmq.EventProducerFallback{Logger: logger}
	if cfg.RabbitMQURL != "" {
		if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger); err == nil {
			publisher = producer
			defer producer.Close()
		} else {
			logger.Warn("failed to connect to RabbitMQ, using fallback publisher", zap.Error(err))
		}
	}

	classifier, err := cfg.SettingsClassifier()
	if err != nil {
		logger.Fatal("invalid settings whitelist", zap.Error(err))
	}

	users := store.NewUserRepository()
	settingsRepo := store.NewSettingRepository()
	verifier := credential.NewVerifier(users, limiter,
		credential.WithPlaintextThrottling(cfg.PINThrottlePlaintext),
		credential.WithPolicySource(credential.NewSettingsPolicy(settingsRepo, logging.Component(logger, "security_policy"))),
		credential.WithVerifierLogger(logger),
	)
	gate := authz.NewGate(verifier, users, classifier, logger)
	exec := executor.New(dbpool, audit.NewTrail(), cfg.TxTimeout(), logger)

	service := app.NewService(app.Dependencies{
		DB:            dbpool,
		Executor:      exec,
		Gate:          gate,
		Locations:     store.NewLocationRepository(),
		Accounts:      store.NewAccountRepository(),
		Staff:         users,
		Settings:      settingsRepo,
		Audit:         audit.NewTrail(),
		Cache:         cache,
		Publisher:     publisher,
		EventExchange: cfg.AuditEventsExchange,
		Logger:        logger,
	})

	trustedProxies, err := cfg.TrustedProxies()
	if err != nil {
		logger.Fatal("invalid trusted proxy list", zap.Error(err))
	}
	clientLimiter := api.NewClientRateLimiter(cfg.HTTPRateLimitPerMinute, api.WithTrustedProxies(trustedProxies))
	sweepers = append(sweepers, clientLimiter)

	scheduler := app.NewScheduler(cfg.AttemptSweepSchedule, logging.Component(logger, "scheduler"), sweepers...)
	if err := scheduler.Start(); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}

	router := api.NewRouter(api.RouterOptions{
		Handlers:       api.NewHandlers(service, logger),
		Sessions:       api.NewSessionResolver(cfg.SessionJWTSecret, cfg.InternalAPIKey, logger),
		RateLimiter:    clientLimiter,
		AllowedOrigins: cfg.AllowedOrigins(),
		Health:         dbpool.Ping,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("starting server", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	<-scheduler.Stop().Done()

	logger.Info("server stopped")
}

// connectRedis returns a connected client, or nil when REDIS_URL is unset or unreachable.
func connectRedis(cfg config.Config, logger *zap.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		logger.Info("redis url missing; using in-process attempt limiter and settings cache")
		return nil
	}
	redisOptions, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis url parse failed; using in-process attempt limiter", zap.Error(err))
		return nil
	}
	client := redis.NewClient(redisOptions)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed; using in-process attempt limiter", zap.Error(err))
		client.Close()
		return nil
	}
	logger.Info("redis connected")
	return client
}
