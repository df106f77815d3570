package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/flowguard/internal/model"
	"github.com/crimson-sun/flowguard/internal/pipeline"
	"github.com/crimson-sun/flowguard/internal/telemetry"
)

func newMonitorCmd(a *app) *cobra.Command {
	var (
		flags    captureFlags
		interval time.Duration
		suppress time.Duration
	)
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Capture and classify traffic continuously, writing events to the output sink",
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags.apply(a)
			if interval > 0 {
				a.cfg.Capture.Interval = interval
			}
			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.monitor(ctx, suppress)
		},
	}
	flags.register(cmd)
	cmd.Flags().DurationVar(&interval, "interval", 0, "time between captures (default from config, 10s)")
	cmd.Flags().DurationVar(&suppress, "suppress-repeats", 0, "skip events repeating the previous class within this window")
	return cmd
}

func (a *app) monitor(ctx context.Context, suppress time.Duration) error {
	shutdownTracing, err := telemetry.Setup(ctx, a.cfg.Telemetry.OTLPEndpoint, a.cfg.Telemetry.ServiceName)
	if err != nil {
		slog.Warn("tracing setup failed", "error", err)
	}
	defer shutdownTracing(context.Background())

	an, err := a.newAnalyzer()
	if err != nil {
		return err
	}
	eng, err := a.requireEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	outCfg := a.cfg.Output
	if slices.Equal(outCfg.Formats(), []string{"none"}) {
		outCfg.Format = "stdout"
	}
	out, err := buildOutput(outCfg, func(e model.Event) {
		slog.Warn("monitor event dropped", "class", e.Class)
	})
	if err != nil {
		return err
	}

	p := pipeline.New(an, eng, out,
		pipeline.WithInterval(a.cfg.Capture.Interval),
		pipeline.WithSuppressRepeats(suppress),
	)
	defer p.Close()

	slog.Info("monitor started",
		"backend", a.cfg.Capture.Backend,
		"interval", a.cfg.Capture.Interval,
		"max_packets", a.cfg.Capture.MaxPackets,
	)
	err = p.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
