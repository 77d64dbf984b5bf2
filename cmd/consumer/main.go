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

	"example.com/mileage/internal/cache"
	"example.com/mileage/internal/config"
	"example.com/mileage/internal/consumer"
	"example.com/mileage/internal/logging"
	"example.com/mileage/internal/persistence/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger := logging.New("mileage-consumer", "info")
		logger.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New("mileage-consumer", cfg.LogLevel)

	if cfg.PostgresURL == "" {
		logger.Fatal().Msg("POSTGRES_URL is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to postgres")
	}
	defer pool.Close()

	var invalidator cache.Invalidator = cache.NoopInvalidator{}
	if cfg.CacheInvalidationURL != "" {
		invalidator = cache.NewHTTPInvalidator(cfg.CacheInvalidationURL, cfg.CacheInvalidationToken, cfg.CacheInvalidationTimeout)
	}

	handler := consumer.NewIngestHandler(postgres.NewRepository(pool, cfg.Location),
		consumer.WithInvalidator(invalidator),
		consumer.WithIngestLogger(logger),
	)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}

	go func() {
		logger.Info().Str("address", cfg.MetricsAddress).Msg("consumer metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		consumer.RunTopics(ctx, consumer.ReaderConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.ConsumerGroupID,
			Topics:  cfg.ConsumerTopics,
		}, handler, logger)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info().Msg("consumer shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown error")
	}

	<-done
}
