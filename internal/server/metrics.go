package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the server's Prometheus collectors.
type Metrics struct {
	Requests        *prometheus.CounterVec
	Duration        *prometheus.HistogramVec
	Predictions     *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	CaptureFallback prometheus.Counter
	SinkDrops       prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "flowguard", Subsystem: "http", Name: "requests_total", Help: "HTTP requests by handler and status code."},
			[]string{"handler", "code"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: "flowguard", Subsystem: "http", Name: "request_duration_seconds", Help: "HTTP request latency by handler.", Buckets: prometheus.DefBuckets},
			[]string{"handler"},
		),
		Predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "flowguard", Name: "predictions_total", Help: "Predictions served by source and class."},
			[]string{"source", "class"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "flowguard", Subsystem: "cache", Name: "lookups_total", Help: "Prediction cache lookups by result."},
			[]string{"result"},
		),
		CaptureFallback: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: "flowguard", Subsystem: "capture", Name: "fallbacks_total", Help: "Live analyses answered with the fallback record."},
		),
		SinkDrops: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: "flowguard", Subsystem: "output", Name: "dropped_events_total", Help: "Prediction events dropped on a full sink buffer."},
		),
	}
	reg.MustRegister(m.Requests, m.Duration, m.Predictions, m.CacheLookups, m.CaptureFallback, m.SinkDrops)
	return m
}
