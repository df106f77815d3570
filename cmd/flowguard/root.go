package main

import (
	"context"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/flowguard/internal/config"
	"github.com/crimson-sun/flowguard/internal/engine"
	"github.com/crimson-sun/flowguard/internal/logging"

	// Register capture backends.
	_ "github.com/crimson-sun/flowguard/internal/capture/afpacketsrc"
	_ "github.com/crimson-sun/flowguard/internal/capture/pcapsrc"
)

// app carries state shared by subcommands once flags are parsed.
type app struct {
	configPath string
	logLevel   string
	cfg        config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "flowguard",
		Short:         "Classify network flows as Normal, DDoS, Ransomware or Brute Force",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if a.logLevel != "" {
				cfg.LogLevel = a.logLevel
			}
			a.cfg = cfg
			logging.Init(slices.Contains(cfg.Output.Formats(), "stdout"), logging.ParseLevel(cfg.LogLevel))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file (default $FLOWGUARD_CONFIG)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newServeCmd(a),
		newPredictCmd(a),
		newMetadataCmd(a),
		newStatsCmd(a),
		newCaptureCmd(a),
		newMonitorCmd(a),
	)
	return root
}

func (a *app) enginePaths() engine.Paths {
	e := a.cfg.Engine
	return engine.Paths{
		Dataset:       e.DatasetPath(),
		Model:         e.ModelPath(),
		FallbackModel: e.FallbackModelPath(),
		ORTLibrary:    e.ORTLibrary,
	}
}

// loadEngine loads the engine and logs, rather than returns, load failures.
func (a *app) loadEngine() *engine.Engine {
	eng, err := engine.Load(a.enginePaths())
	if err != nil {
		slog.Error("engine load failed; inference requests will fail", "error", err)
	} else {
		slog.Info("engine loaded", "dataset", a.cfg.Engine.DatasetPath(), "model", a.cfg.Engine.ModelPath())
	}
	return eng
}

// requireEngine loads the engine and fails on any load error.
func (a *app) requireEngine() (*engine.Engine, error) {
	eng, err := engine.Load(a.enginePaths())
	if err != nil {
		eng.Close()
		return nil, err
	}
	return eng, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
