// Package webhook posts batches of prediction events to an HTTP endpoint,
// typically an alerting receiver.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/crimson-sun/flowguard/internal/model"
	"github.com/crimson-sun/flowguard/internal/output"
	"github.com/crimson-sun/flowguard/internal/telemetry"
)

const (
	defaultBatchSize     = 50
	defaultFlushInterval = 5 * time.Second
	defaultTimeout       = 10 * time.Second
	defaultBackoff       = time.Second
	maxRetries           = 3
	maxRetryAfter        = 30 * time.Second
)

// Option configures a webhook Output.
type Option func(*Output)

// WithHeaders sets extra headers, e.g. an auth token, on every POST.
func WithHeaders(h map[string]string) Option {
	return func(o *Output) { o.headers = h }
}

// WithBatchSize sets how many events trigger an immediate flush.
func WithBatchSize(n int) Option {
	return func(o *Output) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithFlushInterval bounds how long an event may wait in a partial batch.
func WithFlushInterval(d time.Duration) Option {
	return func(o *Output) { o.flushInterval = d }
}

// WithTimeout sets the per-attempt HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Output) { o.client.Timeout = d }
}

// WithVerbosity sets which prediction fields are posted.
func WithVerbosity(v output.Verbosity) Option {
	return func(o *Output) { o.verbosity = v }
}

// WithBackoff sets the first 5xx retry delay. Later retries double it.
func WithBackoff(d time.Duration) Option {
	return func(o *Output) { o.backoff = d }
}

// WithClasses posts only events whose class is listed, e.g. the attack
// classes for an alert channel. Other events are dropped silently.
func WithClasses(classes ...string) Option {
	return func(o *Output) { o.classes = classes }
}

// WithOnError sets the callback for failed timer flushes.
func WithOnError(f func(error)) Option {
	return func(o *Output) { o.errFunc = f }
}

// Payload is the body of every POST.
type Payload struct {
	SentAt time.Time      `json:"sent_at"`
	Counts map[string]int `json:"counts"` // events per class in this batch
	Events []model.Event  `json:"events"`
}

func newPayload(events []model.Event, now time.Time) Payload {
	counts := make(map[string]int, model.NumClasses)
	for _, e := range events {
		counts[e.Class]++
	}
	return Payload{SentAt: now.UTC(), Counts: counts, Events: events}
}

// Output batches events and posts them as one Payload per flush. A batch is
// flushed when it reaches batchSize, when flushInterval has passed since
// its first event, or on Close.
type Output struct {
	client        *http.Client
	url           string
	headers       map[string]string
	batchSize     int
	flushInterval time.Duration
	backoff       time.Duration
	verbosity     output.Verbosity
	classes       []string
	errFunc       func(error)

	mu      sync.Mutex
	pending []model.Event
	timer   *time.Timer
}

// New creates a webhook output posting to url.
func New(url string, opts ...Option) *Output {
	o := &Output{
		client: &http.Client{
			Timeout:   defaultTimeout,
			Transport: telemetry.Transport(nil),
		},
		url:           url,
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		backoff:       defaultBackoff,
		verbosity:     output.Standard,
		errFunc:       func(err error) { slog.Warn("webhook flush failed", "error", err) },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Write queues event. When the batch fills, it is posted before Write
// returns and the post error is returned.
func (o *Output) Write(ctx context.Context, event model.Event) error {
	if len(o.classes) > 0 && !slices.Contains(o.classes, event.Class) {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.pending = append(o.pending, output.FormatEvent(event, o.verbosity))
	if len(o.pending) >= o.batchSize {
		return o.flushLocked(context.WithoutCancel(ctx))
	}
	if o.timer == nil {
		o.timer = time.AfterFunc(o.flushInterval, o.flushOnTimer)
	}
	return nil
}

func (o *Output) flushOnTimer() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.flushLocked(context.Background()); err != nil {
		o.errFunc(err)
	}
}

// Close posts whatever is pending.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flushLocked(context.Background())
}

// flushLocked posts the pending batch. Caller must hold o.mu.
func (o *Output) flushLocked(ctx context.Context) error {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	if len(o.pending) == 0 {
		return nil
	}
	batch := o.pending
	o.pending = nil

	body, err := json.Marshal(newPayload(batch, time.Now()))
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}
	if err := o.post(ctx, body); err != nil {
		return fmt.Errorf("webhook: %d events lost: %w", len(batch), err)
	}
	return nil
}

// post sends body, retrying 5xx with doubling backoff and 429 after the
// server's Retry-After.
func (o *Output) post(ctx context.Context, body []byte) error {
	var lastErr error
	wait := time.Duration(0)
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if wait == 0 {
				wait = o.backoff << (attempt - 1)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			wait = 0
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range o.headers {
			req.Header.Set(k, v)
		}

		resp, err := o.client.Do(req)
		if err != nil {
			return err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			wait = retryAfter(resp.Header.Get("Retry-After"))
		case resp.StatusCode < 500:
			return fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return lastErr
}

// retryAfter parses a Retry-After seconds value, capped at maxRetryAfter.
// Zero means fall back to the backoff schedule.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter)
}
