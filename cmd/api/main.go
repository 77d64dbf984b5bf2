package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/mileage/internal/api"
	"example.com/mileage/internal/auth"
	"example.com/mileage/internal/cache"
	"example.com/mileage/internal/config"
	"example.com/mileage/internal/consumer"
	"example.com/mileage/internal/domain"
	"example.com/mileage/internal/logging"
	"example.com/mileage/internal/mileage"
	"example.com/mileage/internal/persistence/memory"
	"example.com/mileage/internal/persistence/postgres"
	httptransport "example.com/mileage/internal/transport/http"
)

// store is what the API and an embedded consumer need from persistence.
type store interface {
	domain.Repository
	consumer.Store
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger := logging.New("mileage-api", "info")
		logger.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New("mileage-api", cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var repo store
	if cfg.PostgresURL == "" {
		logger.Warn().Msg("POSTGRES_URL not set, serving from in-memory store")
		repo = memory.NewStore(cfg.Location)
	} else {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect to postgres")
		}
		defer pool.Close()
		repo = postgres.NewRepository(pool, cfg.Location)
	}

	snapshots, err := cache.NewSnapshotCache(cache.Config{MaxSize: cfg.SnapshotCacheSize, TTL: cfg.SnapshotCacheTTL})
	if err != nil {
		logger.Fatal().Err(err).Msg("create snapshot cache")
	}

	service := domain.NewService(repo,
		domain.WithCache(snapshots),
		domain.WithPageSize(cfg.SnapshotPageSize),
		domain.WithLogger(logger),
	)

	handler := api.NewHandler(service, cfg.Cards(),
		api.WithAllThreeGoal(mileage.AllThreeGoal(cfg.AllThreeGoal)),
		api.WithLocation(cfg.Location),
		api.WithDefaultLanguage(cfg.Language),
		api.WithHandlerLogger(logger),
	)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	middlewares := append(httptransport.AccessLog(logger),
		httptransport.DevCORS(cfg.CORSOrigin),
		authMiddleware.Wrap,
	)
	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, httptransport.Chain(mux, middlewares...))

	consumerDone := make(chan struct{})
	if cfg.EmbeddedConsumer {
		ingest := consumer.NewIngestHandler(repo,
			consumer.WithInvalidator(cache.LocalInvalidator{Target: snapshots}),
			consumer.WithIngestLogger(logger),
		)
		go func() {
			defer close(consumerDone)
			consumer.RunTopics(ctx, consumer.ReaderConfig{
				Brokers: cfg.KafkaBrokers,
				GroupID: cfg.ConsumerGroupID,
				Topics:  cfg.ConsumerTopics,
			}, ingest, logger)
		}()
	} else {
		close(consumerDone)
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info().Str("address", cfg.HTTPAddress).Int("cards", len(cfg.DashboardCards)).Msg("mileage-api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	<-consumerDone
}
