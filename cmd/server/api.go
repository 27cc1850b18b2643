package main

import (
	"context"

	"github.com/olyamironova/wallet-exchange/internal/adapter/cache"
	"github.com/olyamironova/wallet-exchange/internal/adapter/kafka"
	"github.com/olyamironova/wallet-exchange/internal/adapter/pg"
	apihttp "github.com/olyamironova/wallet-exchange/internal/api/http"
	"github.com/olyamironova/wallet-exchange/internal/health"
	"github.com/olyamironova/wallet-exchange/internal/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newAPICmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "Serve order intake and reporting over HTTP",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			logger = logger.With(zap.String("process", "api"))

			ctx, stop := signalContext()
			defer stop()

			registry := metrics.NewRegistry()
			ready := health.NewManager(false)

			pool, err := connectDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()
			repo := pg.NewRepository(pool)

			redisCache := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
			defer redisCache.Close()

			producer, err := kafka.NewSyncProducer(cfg.Kafka.Brokers, logger, kafka.NewProducerMetrics(registry))
			if err != nil {
				return err
			}
			defer producer.Close()
			publisher := kafka.NewOrderPublisher(producer, cfg.Kafka.OrdersTopic, cfg.App.Instrument, logger)

			ready.AddCheck("postgres", func(ctx context.Context) error { return repo.Ping(ctx) })
			ready.AddCheck("redis", func(ctx context.Context) error { return redisCache.Ping(ctx) })

			limits := apihttp.Limits{Default: cfg.Reporting.DefaultLimit, Max: cfg.Reporting.MaxLimit}
			router := apihttp.NewRouter(logger, registry, cfg.App.MetricsPath, ready)
			apihttp.NewHTTPServer(repo, publisher, redisCache, cfg.App.Instrument, limits, logger).Register(router)

			srv := newHTTPServer(cfg.HTTP.Addr, router, cfg.HTTP)
			errCh := make(chan error, 1)
			go serveHTTP(srv, "api", logger, errCh)
			ready.SetReady(true)

			select {
			case <-ctx.Done():
				logger.Info("shutdown signal received")
			case err = <-errCh:
				logger.Error("api server failed", zap.Error(err))
			}
			ready.SetReady(false)
			shutdownHTTP(srv, cfg.HTTP.ShutdownTimeout, logger)
			logger.Info("api stopped")
			return err
		},
	}
}
