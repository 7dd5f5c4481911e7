package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/partner-gateway-service/internal/config"
	"github.com/partner-gateway-service/internal/credential"
	"github.com/partner-gateway-service/internal/handler"
	"github.com/partner-gateway-service/internal/metrics"
	"github.com/partner-gateway-service/internal/middleware"
	"github.com/partner-gateway-service/internal/notify"
	"github.com/partner-gateway-service/internal/ratelimit"
	"github.com/partner-gateway-service/internal/scheduler"
	"github.com/partner-gateway-service/internal/server"
	"github.com/partner-gateway-service/internal/service"
	"github.com/partner-gateway-service/internal/store"
	"github.com/partner-gateway-service/internal/token"
	"github.com/partner-gateway-service/internal/webhook"
	"github.com/partner-gateway-service/internal/worker"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	zerolog.SetGlobalLevel(level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, closeStore, err := initStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer closeStore()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	rdb := redis.NewClient(redisOpts)
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close redis client")
		}
	}()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// Rate limiting fails open, so the service can still start.
		log.Warn().Err(err).Msg("redis unreachable at startup")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	pool := worker.NewPool(cfg.WorkerCount, cfg.WorkerQueueSize, m)

	gen := credential.NewGenerator(cfg.CredentialEnv)
	registry := service.NewRegistry(st, gen, m)
	partners := service.NewPartnerService(
		st,
		registry,
		gen,
		token.NewIssuer(cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL),
		notify.NewAsync(notify.LogNotifier{}, pool),
	)

	dispatcher := webhook.NewDispatcher(webhook.Config{Timeout: cfg.WebhookTimeout, Backoff: cfg.WebhookBackoff}, m)
	queue := webhook.NewQueue(dispatcher, pool, cfg.WebhookMaxRetries, m)

	sched := scheduler.New(registry, time.Minute)
	if err := sched.Start(cfg.KeyExpirySchedule); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	adminAuth, err := middleware.NewGoogleAuth(cfg.GoogleClientID, cfg.GoogleAllowedDomain, cfg.GoogleAllowedEmails)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize Google auth")
	}

	health := handler.NewHealthHandler(version,
		handler.Check{Name: "store", Critical: true, Run: st.Ping},
		handler.Check{Name: "redis", Run: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	)

	router := server.NewRouter(server.Deps{
		Partners:     partners,
		Registry:     registry,
		Limiter:      ratelimit.NewLimiter(ratelimit.NewRedisCounter(rdb), cfg.RateLimitTimeout, m),
		Dispatcher:   dispatcher,
		Queue:        queue,
		AdminAuth:    adminAuth,
		Metrics:      m,
		Health:       health,
		AuthAttempts: middleware.NewAuthAttemptLimiter(10, 5*time.Minute, 15*time.Minute),
		CORSOrigins:  cfg.CORSOrigins,
		TrustProxy:   cfg.TrustProxy,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", version).
			Str("store", cfg.StoreDriver).
			Str("credential_env", cfg.CredentialEnv).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	sched.Stop(shutdownCtx)
	if err := pool.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("worker pool did not drain before shutdown deadline")
	}
	log.Info().Msg("server exited")
}

// initStore opens the configured document store. Postgres runs pending
// migrations first; memory is for local development and tests only.
func initStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		log.Warn().Msg("using in-memory store, data will be lost on restart")
		return store.NewMemory(), func() {}, nil

	case config.StorePostgres:
		if err := runMigrations(cfg.MigrationsPath, cfg.DatabaseURL); err != nil {
			return nil, nil, err
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("pinging database: %w", err)
		}
		return store.NewPostgres(pool), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func runMigrations(source, databaseURL string) error {
	m, err := migrate.New(source, databaseURL)
	if err != nil {
		return fmt.Errorf("initializing migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	v, dirty, err := m.Version()
	if err == nil {
		log.Info().Uint("version", v).Bool("dirty", dirty).Msg("database migrations applied")
	}
	return nil
}
