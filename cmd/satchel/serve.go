package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/satchel/internal/allocator"
	"github.com/oriys/satchel/internal/api"
	"github.com/oriys/satchel/internal/builder"
	"github.com/oriys/satchel/internal/grpcapi"
	"github.com/oriys/satchel/internal/logging"
	"github.com/oriys/satchel/internal/metrics"
	"github.com/oriys/satchel/internal/observability"
)

func serveCmd() *cobra.Command {
	var (
		httpAddr string
		grpcAddr string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the allocation core's HTTP (and optional gRPC health) surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("http") {
				cfg.Daemon.HTTPAddr = httpAddr
			}
			if cmd.Flags().Changed("grpc-addr") {
				cfg.GRPC.Addr = grpcAddr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Daemon.LogLevel = logLevel
			}

			logging.SetLevelFromString(cfg.Daemon.LogLevel)
			logging.InitStructured(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := observability.Init(ctx, observability.Config{
				Enabled:     cfg.Observability.Tracing.Enabled,
				Exporter:    cfg.Observability.Tracing.Exporter,
				Endpoint:    cfg.Observability.Tracing.Endpoint,
				ServiceName: cfg.Observability.Tracing.ServiceName,
				SampleRate:  cfg.Observability.Tracing.SampleRate,
			}); err != nil {
				return err
			}
			defer observability.Shutdown(context.Background())

			var registry *metrics.Registry
			if cfg.Observability.Metrics.Enabled {
				registry = metrics.NewRegistry(cfg.Observability.Metrics.Namespace)
			}

			d, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			alloc := allocator.New(d.pool, d.ledger, cfg.Eviction.Policy())
			build := builder.New(d.pg, d.pg, d.pool, d.locker, d.categories)
			if registry != nil {
				alloc.Metrics = registry.Allocation
				build.Metrics = registry.Builder
			}
			alloc.Logger = logging.Default()

			serverCfg := api.ServerConfig{
				Allocator:  alloc,
				Builder:    build,
				Pool:       d.pool,
				Content:    d.pg,
				Catalog:    d.pg,
				Categories: d.categories,
				Postgres:   api.PingerFunc(d.pg.Ping),
				Redis:      api.PingerFunc(func(ctx context.Context) error { return d.redis.Ping(ctx).Err() }),
				BuilderDefaults: api.BuilderDefaults{
					NumSetsPerCategory: cfg.Builder.NumSetsPerCategory,
					ItemsPerSet:        cfg.Builder.ItemsPerSet,
				},
			}
			if registry != nil {
				serverCfg.Metrics = registry.Handler()
			}

			httpServer := api.StartHTTPServer(cfg.Daemon.HTTPAddr, serverCfg)
			logging.Op().Info("HTTP server listening", "addr", cfg.Daemon.HTTPAddr)

			var grpcServer *grpcapi.Server
			if cfg.GRPC.Enabled {
				grpcServer = grpcapi.NewServer(
					cfg.Observability.Tracing.ServiceName,
					api.PingerFunc(d.pg.Ping),
					api.PingerFunc(func(ctx context.Context) error { return d.redis.Ping(ctx).Err() }),
				)
				if err := grpcServer.Start(ctx, cfg.GRPC.Addr, 10*time.Second); err != nil {
					return err
				}
				logging.Op().Info("gRPC health server listening", "addr", cfg.GRPC.Addr)
			}

			<-ctx.Done()
			logging.Op().Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
			if grpcServer != nil {
				grpcServer.Stop()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "", "HTTP listen address (default: config)")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address (default: config)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (default: config)")
	return cmd
}
