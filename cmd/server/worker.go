package main

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/olyamironova/wallet-exchange/internal/adapter/cache"
	"github.com/olyamironova/wallet-exchange/internal/adapter/kafka"
	"github.com/olyamironova/wallet-exchange/internal/adapter/pg"
	apigrpc "github.com/olyamironova/wallet-exchange/internal/api/grpc"
	apihttp "github.com/olyamironova/wallet-exchange/internal/api/http"
	"github.com/olyamironova/wallet-exchange/internal/consumer"
	"github.com/olyamironova/wallet-exchange/internal/core"
	"github.com/olyamironova/wallet-exchange/internal/health"
	"github.com/olyamironova/wallet-exchange/internal/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWorkerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume submitted orders and run the matching engine",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			logger = logger.With(zap.String("process", "worker"), zap.String("symbol", cfg.App.Instrument))

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

			engine := core.NewEngine(repo, redisCache, cfg.App.Instrument,
				core.WithLogger(logger),
				core.WithMetrics(metrics.NewEngineMetrics(registry, cfg.App.Instrument)),
			)
			if err := engine.Load(ctx); err != nil {
				return fmt.Errorf("load order book: %w", err)
			}

			dlqProducer, err := kafka.NewSyncProducer(cfg.Kafka.Brokers, logger, kafka.NewProducerMetrics(registry))
			if err != nil {
				return err
			}
			defer dlqProducer.Close()

			group, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, logger, kafka.ConsumerOptions{
				DLQTopic:       cfg.Kafka.DLQTopic,
				DLQPublisher:   dlqProducer,
				MaxAttempts:    cfg.Kafka.MaxAttempts,
				InitialBackoff: cfg.Kafka.InitialBackoff,
				Metrics:        kafka.NewConsumerMetrics(registry),
			})
			if err != nil {
				return err
			}
			defer group.Close()

			ready.AddCheck("engine", func(context.Context) error {
				if !engine.Ready() {
					return errors.New("order book not ready")
				}
				return nil
			})
			ready.AddCheck("postgres", func(ctx context.Context) error { return repo.Ping(ctx) })

			limits := apihttp.Limits{Default: cfg.Reporting.DefaultLimit, Max: cfg.Reporting.MaxLimit}
			router := apihttp.NewRouter(logger, registry, cfg.App.MetricsPath, ready)
			apihttp.NewAdminServer(engine, limits, logger).Register(router)
			admin := newHTTPServer(cfg.Admin.Addr, router, cfg.Admin)

			lis, err := net.Listen("tcp", cfg.GRPC.Addr)
			if err != nil {
				return fmt.Errorf("grpc listen: %w", err)
			}
			healthSrv := apigrpc.NewGRPCServer(ready.IsReady, 0, logger)

			errCh := make(chan error, 3)
			go serveHTTP(admin, "admin", logger, errCh)
			go func() {
				if err := healthSrv.Serve(ctx, lis); err != nil {
					errCh <- fmt.Errorf("grpc: %w", err)
				}
			}()
			go func() {
				logger.Info("order consumer starting", zap.String("topic", cfg.Kafka.OrdersTopic))
				err := group.Consume(ctx, []string{cfg.Kafka.OrdersTopic}, consumer.NewOrderHandler(engine, logger))
				if err != nil && !errors.Is(err, context.Canceled) {
					errCh <- fmt.Errorf("consumer: %w", err)
				}
			}()
			ready.SetReady(true)

			select {
			case <-ctx.Done():
				logger.Info("shutdown signal received")
			case err = <-errCh:
				logger.Error("worker failed", zap.Error(err))
				stop()
			}
			ready.SetReady(false)
			healthSrv.Shutdown(cfg.Admin.ShutdownTimeout)
			shutdownHTTP(admin, cfg.Admin.ShutdownTimeout, logger)
			logger.Info("worker stopped")
			return err
		},
	}
}
