package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/flowguard/internal/cache"
	"github.com/crimson-sun/flowguard/internal/capture"
	"github.com/crimson-sun/flowguard/internal/config"
	"github.com/crimson-sun/flowguard/internal/model"
	"github.com/crimson-sun/flowguard/internal/server"
	"github.com/crimson-sun/flowguard/internal/telemetry"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /predict, /metadata and /analyze_live over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :5001)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		slog.Warn("tracing setup failed", "error", err)
	}
	defer shutdownTracing(context.Background())

	eng := a.loadEngine()
	defer eng.Close()

	opts := []server.Option{server.WithServiceName(cfg.Telemetry.ServiceName)}
	if c := openCache(ctx, cfg.Cache); c != nil {
		defer c.Close()
		opts = append(opts, server.WithCache(c))
	}
	if an, err := a.newAnalyzer(); err != nil {
		slog.Warn("live capture disabled", "error", err)
	} else {
		slog.Info("live capture enabled", "backend", cfg.Capture.Backend, "local_ip", an.Local())
		opts = append(opts, server.WithAnalyzer(an))
	}

	// The drop counter lives on the server's registry, so the sink is
	// attached after the server exists.
	var srv *server.Server
	out, err := buildOutput(cfg.Output, func(model.Event) { srv.Metrics().SinkDrops.Inc() })
	if err != nil {
		return err
	}
	defer out.Close()
	srv = server.New(eng, cfg.Engine.DatasetPath(), append(opts, server.WithOutput(out))...)

	return srv.ListenAndServe(ctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout)
}

// openCache connects to Redis when configured. Failures disable caching.
func openCache(ctx context.Context, cfg config.CacheConfig) cache.Cache {
	if cfg.RedisAddr == "" {
		return nil
	}
	c, err := cache.NewRedis(ctx, cache.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.TTL,
	})
	if err != nil {
		slog.Warn("prediction cache disabled", "error", err)
		return nil
	}
	slog.Info("prediction cache enabled", "redis", cfg.RedisAddr, "ttl", cfg.TTL)
	return c
}

func captureConfig(cfg config.CaptureConfig) capture.Config {
	return capture.Config{
		Backend:     cfg.Backend,
		Interface:   cfg.Interface,
		MaxPackets:  cfg.MaxPackets,
		Timeout:     cfg.Timeout,
		Promiscuous: cfg.Promiscuous,
		LocalIP:     cfg.LocalIP,
	}
}
