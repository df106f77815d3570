package flowguard

import (
	"context"
	"errors"
	"fmt"

	"github.com/crimson-sun/flowguard/internal/engine"
	"github.com/crimson-sun/flowguard/internal/model"
	"github.com/crimson-sun/flowguard/internal/schema"
)

// ErrInvalidFlow is wrapped by errors for flows the classifier refuses:
// missing Protocol or Flags, or a non-numeric numeric field.
var ErrInvalidFlow = errors.New("flowguard: invalid flow")

// FlowGuard is a loaded flow classifier. Safe for concurrent use.
type FlowGuard struct {
	engine *engine.Engine
}

// New fits the preprocessor and loads the model. Unlike the server, it
// refuses to return a half-loaded instance.
func New(opts ...Option) (*FlowGuard, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	dataset, modelPath, fallback := resolvePaths(o)

	eng, err := engine.Load(engine.Paths{
		Dataset:       dataset,
		Model:         modelPath,
		FallbackModel: fallback,
		ORTLibrary:    o.ortLibrary,
	})
	if err != nil {
		eng.Close()
		return nil, fmt.Errorf("flowguard: %w", err)
	}
	return &FlowGuard{engine: eng}, nil
}

// Classify classifies a single flow.
func (g *FlowGuard) Classify(f Flow) (Result, error) {
	res, err := g.ClassifyBatch([]Flow{f})
	if err != nil {
		return Result{}, err
	}
	return res[0], nil
}

// ClassifyBatch classifies several flows in one forward pass.
func (g *FlowGuard) ClassifyBatch(flows []Flow) ([]Result, error) {
	return g.ClassifyBatchContext(context.Background(), flows)
}

// ClassifyBatchContext is ClassifyBatch with a context for the forward pass.
func (g *FlowGuard) ClassifyBatchContext(ctx context.Context, flows []Flow) ([]Result, error) {
	recs := make([]schema.Record, len(flows))
	for i, f := range flows {
		rec, err := schema.Build(f.payload())
		if err != nil {
			return nil, fmt.Errorf("%w: flow %d: %w", ErrInvalidFlow, i, err)
		}
		recs[i] = rec
	}
	preds, err := g.engine.Predict(ctx, recs)
	if err != nil {
		return nil, err
	}
	out := make([]Result, len(preds))
	for i, p := range preds {
		out[i] = resultFromPrediction(p)
	}
	return out, nil
}

// ClassifyMap classifies a loosely-typed payload keyed like the HTTP API
// ("Protocol", "Flow_Packets_s", ...). Numeric strings are accepted.
func (g *FlowGuard) ClassifyMap(ctx context.Context, payload map[string]any) (Result, error) {
	rec, err := schema.Build(payload)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidFlow, err)
	}
	p, err := g.engine.PredictOne(ctx, rec)
	if err != nil {
		return Result{}, err
	}
	return resultFromPrediction(p), nil
}

// Close releases the ONNX session.
func (g *FlowGuard) Close() error {
	return g.engine.Close()
}

func resultFromPrediction(p model.Prediction) Result {
	return Result{
		Class:         p.Class,
		Confidence:    p.Confidence,
		Probabilities: p.Probabilities,
	}
}
