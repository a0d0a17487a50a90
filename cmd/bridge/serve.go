package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/bridge/internal/config"
	"github.com/vango-dev/bridge/internal/demo"
	"github.com/vango-dev/bridge/pkg/middleware"
	"github.com/vango-dev/bridge/pkg/transport/pubsub"
	"github.com/vango-dev/bridge/pkg/worker"
	"github.com/vango-dev/bridge/pkg/workerhost"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		withRedis  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo workers",
		Long: `Serve the registered workers over WebSocket at /workers/{name}.

Settings come from bridge.json or bridge.yaml in the working directory
when present, otherwise from defaults. With redis enabled the same
workers are also served over Redis Streams.

Examples:
  bridge serve
  bridge serve --addr=:9000
  bridge serve --config=deploy/bridge.yaml --redis`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if withRedis {
				cfg.Redis.Enabled = true
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, cfg.Log.Logger(os.Stderr))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file (default: bridge.json or bridge.yaml if present)")
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to listen on (default from config)")
	cmd.Flags().BoolVar(&withRedis, "redis", false, "Also serve workers over Redis Streams")

	return cmd
}

// loadConfig reads path, or the working directory's config file when path
// is empty. A missing default file is not an error.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if !config.Exists(".") {
		return config.New(), nil
	}
	return config.Load(".")
}

// hostConfig maps the server section onto the worker host settings.
func hostConfig(cfg *config.Config) *workerhost.Config {
	hc := workerhost.DefaultConfig()
	hc.ReadTimeout = cfg.Server.ReadTimeout.Std()
	hc.WriteTimeout = cfg.Server.WriteTimeout.Std()
	hc.HandshakeTimeout = cfg.Server.HandshakeTimeout.Std()
	hc.HeartbeatInterval = cfg.Server.HeartbeatInterval.Std()
	hc.MaxMessageSize = cfg.Server.MaxMessageSize
	hc.MailboxSize = cfg.Server.MailboxSize
	return hc
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	slog.SetDefault(logger)

	registry := worker.NewRegistry()
	demo.Register(registry, func(err error) {
		logger.Warn("worker input rejected", "error", err)
	})

	hostOpts := []workerhost.Option{
		workerhost.WithConfig(hostConfig(cfg)),
		workerhost.WithLogger(logger),
		workerhost.WithTracer(otel.Tracer(cfg.Tracing.TracerName)),
	}
	serverOpts := []pubsub.ServerOption{
		pubsub.WithServerTopic(cfg.Redis.Topic),
		pubsub.WithServerLogger(logger),
		pubsub.WithMailboxSize(cfg.Server.MailboxSize),
	}

	r := chi.NewRouter()
	if cfg.Metrics.Enabled {
		promRegistry := prometheus.NewRegistry()
		promRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics := middleware.NewMetrics(
			middleware.WithNamespace(cfg.Metrics.Namespace),
			middleware.WithRegistry(promRegistry),
		)
		hostOpts = append(hostOpts, workerhost.WithObserver(metrics))
		serverOpts = append(serverOpts, pubsub.WithObserver(metrics))
		r.Handle(cfg.Metrics.Path, promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	}

	host := workerhost.New(registry, hostOpts...)
	r.Mount("/", host.Router())

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("worker host listening",
			"addr", cfg.Server.Addr,
			"workers", registry.Names(),
			"metrics", cfg.Metrics.Enabled)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Redis.Enabled {
		rds, err := pubsub.NewRedis(ctx, pubsub.RedisConfig{
			Addr:          cfg.Redis.Addr,
			Password:      cfg.Redis.Password,
			DB:            cfg.Redis.DB,
			ConsumerGroup: cfg.Redis.ConsumerGroup,
		}, logger)
		if err != nil {
			return err
		}
		defer rds.Close()

		srv := pubsub.NewServer(rds.Publisher, rds.Subscriber, registry, serverOpts...)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
		defer cancel()
		return errors.Join(
			host.Shutdown(shutdownCtx),
			httpServer.Shutdown(shutdownCtx),
		)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
