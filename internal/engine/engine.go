package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/crimson-sun/flowguard/internal/dataset"
	"github.com/crimson-sun/flowguard/internal/engine/classifier"
	"github.com/crimson-sun/flowguard/internal/engine/network"
	"github.com/crimson-sun/flowguard/internal/engine/preprocess"
	"github.com/crimson-sun/flowguard/internal/model"
	"github.com/crimson-sun/flowguard/internal/schema"
)

// ErrNotLoaded is returned by Predict when the preprocessor or the network
// failed to load at startup.
var ErrNotLoaded = errors.New("engine: model or preprocessor not loaded")

// Engine orchestrates the transform → forward → format pipeline. It is built
// once and shared read-only across requests.
type Engine struct {
	pre        *preprocess.Preprocessor
	net        network.Network
	classifier *classifier.Classifier
}

// New creates an Engine with the provided components. Either of pre or net
// may be nil, in which case Predict returns ErrNotLoaded.
func New(pre *preprocess.Preprocessor, net network.Network, cls *classifier.Classifier) *Engine {
	if cls == nil {
		cls = classifier.New()
	}
	return &Engine{pre: pre, net: net, classifier: cls}
}

// Paths locates the artifacts Load needs.
type Paths struct {
	Dataset       string
	Model         string
	FallbackModel string
	ORTLibrary    string
}

// Load fits the preprocessor on the reference dataset and opens the model,
// trying FallbackModel when Model cannot be opened. It always returns a
// usable Engine; the error lists whatever failed to load.
func Load(p Paths) (*Engine, error) {
	var errs []error

	var pre *preprocess.Preprocessor
	tbl, err := dataset.Load(p.Dataset)
	if err == nil {
		pre, err = preprocess.Fit(tbl)
	}
	if err != nil {
		errs = append(errs, fmt.Errorf("preprocessor: %w", err))
	}

	var net network.Network
	onnx, err := network.LoadONNX(p.Model, p.ORTLibrary)
	if err != nil && p.FallbackModel != "" {
		var ferr error
		onnx, ferr = network.LoadONNX(p.FallbackModel, p.ORTLibrary)
		if ferr != nil {
			err = errors.Join(err, ferr)
		} else {
			err = nil
		}
	}
	if err != nil {
		errs = append(errs, fmt.Errorf("model: %w", err))
	} else {
		net = onnx
	}

	if pre != nil && onnx != nil && onnx.Features() > 0 && int64(pre.NumOutputs()) != onnx.Features() {
		errs = append(errs, fmt.Errorf("model expects %d features but preprocessor produces %d",
			onnx.Features(), pre.NumOutputs()))
		onnx.Close()
		net = nil
	}

	return New(pre, net, nil), errors.Join(errs...)
}

// Loaded reports whether both the preprocessor and the network are present.
func (e *Engine) Loaded() bool {
	return e != nil && e.pre != nil && e.net != nil
}

// Preprocessor returns the fitted preprocessor, or nil.
func (e *Engine) Preprocessor() *preprocess.Preprocessor { return e.pre }

// Predict classifies a batch of records. Identical inputs always produce
// identical outputs.
func (e *Engine) Predict(ctx context.Context, records []schema.Record) ([]model.Prediction, error) {
	if !e.Loaded() {
		return nil, ErrNotLoaded
	}

	x, err := e.pre.Transform(records)
	if err != nil {
		return nil, err
	}
	batch, features := x.Dims()

	// Reshape to (batch, features, 1): row-major with a trailing unit axis is
	// the same flat layout.
	input := make([]float32, 0, batch*features)
	for r := 0; r < batch; r++ {
		for _, v := range x.RawRowView(r) {
			input = append(input, float32(v))
		}
	}

	probs, err := e.net.Forward(ctx, input, int64(batch), int64(features))
	if err != nil {
		return nil, err
	}
	if len(probs) != batch {
		return nil, fmt.Errorf("engine: network returned %d rows for batch of %d", len(probs), batch)
	}

	out := make([]model.Prediction, batch)
	for i, row := range probs {
		p, err := e.classifier.Format(row)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// PredictOne classifies a single record.
func (e *Engine) PredictOne(ctx context.Context, rec schema.Record) (model.Prediction, error) {
	preds, err := e.Predict(ctx, []schema.Record{rec})
	if err != nil {
		return model.Prediction{}, err
	}
	return preds[0], nil
}

// Close releases the network.
func (e *Engine) Close() error {
	if e == nil || e.net == nil {
		return nil
	}
	return e.net.Close()
}
