// Package network runs the trained traffic classifier's forward pass.
package network

import "context"

// Network maps a batch of preprocessed rows to per-class probabilities.
// input is a flat row-major [batch * features] slice; the implementation
// presents it to the model as a (batch, features, 1) tensor.
type Network interface {
	Forward(ctx context.Context, input []float32, batch, features int64) ([][]float32, error)
	Close() error
}
