package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/flowguard/internal/capture"
	"github.com/crimson-sun/flowguard/internal/model"
	"github.com/crimson-sun/flowguard/internal/schema"
)

// captureFlags overrides the capture section of the config.
type captureFlags struct {
	backend    string
	iface      string
	maxPackets int
	timeout    time.Duration
}

func (f *captureFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.backend, "backend", "", fmt.Sprintf("capture backend %v", capture.Backends()))
	cmd.Flags().StringVarP(&f.iface, "interface", "i", "", "interface to capture on")
	cmd.Flags().IntVar(&f.maxPackets, "max-packets", 0, "stop after this many packets")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "capture window")
}

func (f *captureFlags) apply(a *app) {
	c := &a.cfg.Capture
	if f.backend != "" {
		c.Backend = f.backend
	}
	if f.iface != "" {
		c.Interface = f.iface
	}
	if f.maxPackets > 0 {
		c.MaxPackets = f.maxPackets
	}
	if f.timeout > 0 {
		c.Timeout = f.timeout
	}
}

// newAnalyzer builds the analyzer or explains why it cannot.
func (a *app) newAnalyzer() (*capture.Analyzer, error) {
	an, err := capture.NewAnalyzer(captureConfig(a.cfg.Capture))
	if errors.Is(err, capture.ErrUnavailable) {
		return nil, fmt.Errorf("%w (backend %q, compiled in: %v)", err, a.cfg.Capture.Backend, capture.Backends())
	}
	return an, err
}

type captureReport struct {
	Record     schema.Record     `json:"record"`
	Note       string            `json:"note"`
	Fallback   bool              `json:"fallback"`
	Summary    capture.Summary   `json:"summary"`
	Error      string            `json:"error,omitempty"`
	Prediction *model.Prediction `json:"prediction,omitempty"`
}

func newCaptureCmd(a *app) *cobra.Command {
	var (
		flags    captureFlags
		classify bool
	)
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture one window of traffic and print the aggregated flow",
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags.apply(a)
			an, err := a.newAnalyzer()
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			res, err := an.Analyze(ctx)
			if err != nil {
				return err
			}

			report := captureReport{
				Record:   res.Record,
				Note:     res.Note,
				Fallback: res.Fallback,
				Summary:  res.Summary,
			}
			if res.Err != nil {
				report.Error = res.Err.Error()
			}
			if classify {
				eng, err := a.requireEngine()
				if err != nil {
					return err
				}
				defer eng.Close()
				pred, err := eng.PredictOne(ctx, res.Record)
				if err != nil {
					return err
				}
				report.Prediction = &pred
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&classify, "classify", false, "also classify the captured flow")
	return cmd
}
