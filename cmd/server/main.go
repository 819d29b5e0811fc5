package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/EricDistort/QuberX/internal/api"
	"github.com/EricDistort/QuberX/internal/config"
	"github.com/EricDistort/QuberX/internal/handler"
	"github.com/EricDistort/QuberX/internal/infrastructure/auth"
	"github.com/EricDistort/QuberX/internal/infrastructure/kafka"
	"github.com/EricDistort/QuberX/internal/infrastructure/redis"
	"github.com/EricDistort/QuberX/internal/jobs"
	"github.com/EricDistort/QuberX/internal/migrations"
	"github.com/EricDistort/QuberX/internal/observability"
	"github.com/EricDistort/QuberX/internal/repository"
	"github.com/EricDistort/QuberX/internal/repository/memory"
	"github.com/EricDistort/QuberX/internal/repository/postgres"
	"github.com/EricDistort/QuberX/internal/scheduler"
	service "github.com/EricDistort/QuberX/internal/services"
)

const serviceName = "quberx-ledger"

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	shutdownTelemetry, err := observability.Setup(ctx, serviceName, cfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Error("telemetry shutdown failed", "error", err)
		}
	}()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	redisClient, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	// The memory store lives in one process, so there are no other
	// replicas whose caches need evicting.
	var producer kafka.KafkaProducer = kafka.NopProducer{}
	if cfg.StorageDriver == config.DriverPostgres {
		producer = kafka.NewProducer(cfg.KafkaBrokers)
	}
	defer producer.Close()

	events := service.NewEventPublisher(producer, cfg.KafkaTopic)
	cache := service.NewBalanceCache(redisClient, cfg.Policy.BalanceCacheTTL)
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)

	if cfg.StorageDriver == config.DriverPostgres {
		consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, serviceName+"-cache", cache)
		go consumer.Consume(ctx)
		defer consumer.Close()
	}

	accounts := service.NewAccountService(store, redisClient, tokens, events)
	ledger := service.NewLedgerService(store, cache, events, service.PolicyFromConfig(cfg.Policy))

	h := handler.NewHandler(accounts, ledger,
		handler.Check{Name: "store", Ping: store.Ping},
		handler.Check{Name: "redis", Ping: redisClient.Ping},
	)
	limiter := api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	router := api.SetupRouter(h, api.RouterConfig{
		Sessions:   redisClient,
		Tokens:     tokens,
		AdminToken: cfg.AdminToken,
		Limiter:    limiter,
	})

	sched := scheduler.NewScheduler(jobs.NewJobRunner(store, cfg.Policy).WithLimiter(limiter))
	sched.Start()
	defer sched.Stop()

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	events.Wait()
	slog.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	if cfg.StorageDriver == config.DriverMemory {
		slog.Warn("using in-memory store, data is lost on restart")
		store := memory.NewStore()
		catalog := cfg.Policy.Catalog()
		for _, p := range catalog {
			store.SeedProduct(p)
		}
		slog.Info("product catalog seeded", "products", len(catalog))
		return store, nil
	}

	db, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := migrations.Apply(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return postgres.NewStore(db, cfg.TxMaxRetries), nil
}
