package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/crimson-sun/flowguard/internal/cache"
	"github.com/crimson-sun/flowguard/internal/capture"
	"github.com/crimson-sun/flowguard/internal/dataset"
	"github.com/crimson-sun/flowguard/internal/engine"
	"github.com/crimson-sun/flowguard/internal/logging"
	"github.com/crimson-sun/flowguard/internal/model"
	"github.com/crimson-sun/flowguard/internal/schema"
)

// Client-facing messages.
const (
	msgNotLoaded          = "Model or preprocessor not loaded"
	msgCaptureUnavailable = "Live packet capture not available on server."
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; an encode error has no one to go to.
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code and a JSON error body.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()

	var verr *schema.ValidationError
	var cerr *schema.CoercionError
	switch {
	case errors.Is(err, engine.ErrNotLoaded):
		msg = msgNotLoaded
	case errors.Is(err, capture.ErrUnavailable):
		msg = msgCaptureUnavailable
	case errors.As(err, &verr), errors.As(err, &cerr):
		status = http.StatusBadRequest
	}

	log := logging.FromContext(ctx)
	if status >= 500 {
		log.Error("request failed", "error", err)
	} else {
		log.Info("request rejected", "error", err)
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.engine.Loaded() {
		writeError(ctx, w, engine.ErrNotLoaded)
		return
	}

	rec, err := schema.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	pred, err := s.predictCached(ctx, rec)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	s.emit(ctx, model.SourcePredict, pred)
	writeJSON(w, http.StatusOK, pred)
}

// predictCached consults the cache around the engine. Cache failures are
// logged and treated as misses.
func (s *Server) predictCached(ctx context.Context, rec schema.Record) (model.Prediction, error) {
	if s.cache == nil {
		return s.engine.PredictOne(ctx, rec)
	}
	log := logging.FromContext(ctx)

	key, err := cache.Key(rec)
	if err != nil {
		return model.Prediction{}, err
	}
	if pred, ok, err := s.cache.Get(ctx, key); err != nil {
		log.Warn("cache get failed", "error", err)
	} else if ok {
		s.metrics.CacheLookups.WithLabelValues("hit").Inc()
		return pred, nil
	}
	s.metrics.CacheLookups.WithLabelValues("miss").Inc()

	pred, err := s.engine.PredictOne(ctx, rec)
	if err != nil {
		return model.Prediction{}, err
	}
	if err := s.cache.Set(ctx, key, pred); err != nil {
		log.Warn("cache set failed", "error", err)
	}
	return pred, nil
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	md, err := dataset.ReadMetadata(s.datasetPath)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, md)
}

func (s *Server) handleAnalyzeLive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.engine.Loaded() {
		writeError(ctx, w, engine.ErrNotLoaded)
		return
	}
	if s.analyzer == nil {
		writeError(ctx, w, capture.ErrUnavailable)
		return
	}

	res, err := s.analyzer.Analyze(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if res.Fallback {
		s.metrics.CaptureFallback.Inc()
		if res.Err != nil {
			logging.FromContext(ctx).Warn("live capture fell back", "error", res.Err)
		}
	}

	pred, err := s.engine.PredictOne(ctx, res.Record)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	rec := res.Record
	pred.CapturedFeatures = &rec
	pred.Note = res.Note

	s.emit(ctx, model.SourceLive, pred)
	writeJSON(w, http.StatusOK, pred)
}

type health struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	LiveCapture bool   `json:"live_capture"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h := health{Status: "ok", ModelLoaded: s.engine.Loaded(), LiveCapture: s.analyzer != nil}
	if !h.ModelLoaded {
		h.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, h)
}

// emit counts the prediction and hands it to the output as an event.
func (s *Server) emit(ctx context.Context, source string, pred model.Prediction) {
	s.metrics.Predictions.WithLabelValues(source, pred.Class).Inc()
	ev := model.Event{
		Timestamp:  s.now().UTC(),
		Source:     source,
		RequestID:  RequestID(ctx),
		Prediction: pred,
	}
	if err := s.out.Write(ctx, ev); err != nil {
		logging.FromContext(ctx).Warn("event output failed", "error", err)
	}
}
