// Package pipeline runs periodic live analysis: capture, classify, write.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crimson-sun/flowguard/internal/capture"
	"github.com/crimson-sun/flowguard/internal/engine"
	"github.com/crimson-sun/flowguard/internal/model"
	"github.com/crimson-sun/flowguard/internal/output"
	"github.com/crimson-sun/flowguard/internal/schema"
)

const defaultInterval = 10 * time.Second

// Analyzer produces one flow record per call.
type Analyzer interface {
	Analyze(ctx context.Context) (capture.Result, error)
}

// Predictor classifies one record.
type Predictor interface {
	PredictOne(ctx context.Context, rec schema.Record) (model.Prediction, error)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithInterval sets the time between analyses. Default: 10s.
func WithInterval(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithSuppressRepeats writes a result only when its class differs from the
// last written one or window has elapsed since then. Zero disables.
func WithSuppressRepeats(window time.Duration) Option {
	return func(p *Pipeline) { p.filter = newRepeatFilter(window) }
}

// WithOnEvent registers a callback for every classified event, written or not.
func WithOnEvent(f func(model.Event)) Option {
	return func(p *Pipeline) { p.onEvent = f }
}

// Pipeline connects an analyzer, predictor and output into a monitor loop.
type Pipeline struct {
	analyzer  Analyzer
	predictor Predictor
	output    output.Output
	interval  time.Duration
	filter    *repeatFilter
	onEvent   func(model.Event)
	now       func() time.Time
}

// New creates a Pipeline from the given components.
func New(a Analyzer, pred Predictor, out output.Output, opts ...Option) *Pipeline {
	p := &Pipeline{
		analyzer:  a,
		predictor: pred,
		output:    out,
		interval:  defaultInterval,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunOnce captures, classifies and writes a single event.
func (p *Pipeline) RunOnce(ctx context.Context) (model.Event, error) {
	res, err := p.analyzer.Analyze(ctx)
	if err != nil {
		return model.Event{}, fmt.Errorf("pipeline analyze: %w", err)
	}
	pred, err := p.predictor.PredictOne(ctx, res.Record)
	if err != nil {
		return model.Event{}, fmt.Errorf("pipeline predict: %w", err)
	}
	rec := res.Record
	pred.CapturedFeatures = &rec
	pred.Note = res.Note

	event := model.Event{
		Timestamp:  p.now().UTC(),
		Source:     model.SourceMonitor,
		Prediction: pred,
	}
	if p.onEvent != nil {
		p.onEvent(event)
	}
	if p.filter != nil && !p.filter.allow(event.Class, event.Timestamp) {
		return event, nil
	}
	if err := p.output.Write(ctx, event); err != nil {
		return event, fmt.Errorf("pipeline output: %w", err)
	}
	return event, nil
}

// Run analyzes immediately and then once per interval until ctx is done.
// Per-iteration failures are logged and the loop continues, except for a
// missing capture backend or model, which stop it.
func (p *Pipeline) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		event, err := p.RunOnce(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, capture.ErrUnavailable), errors.Is(err, engine.ErrNotLoaded):
			return err
		case err != nil:
			slog.Warn("monitor iteration failed", "error", err)
		default:
			slog.Debug("monitor iteration", "class", event.Class, "confidence", event.Confidence, "note", event.Note)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close shuts down the output.
func (p *Pipeline) Close() error {
	return p.output.Close()
}
