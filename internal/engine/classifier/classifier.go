package classifier

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/crimson-sun/flowguard/internal/model"
)

// Classifier turns a probability vector from the network into a labelled
// prediction.
type Classifier struct {
	Labels []string
}

// New creates a Classifier over the fixed traffic classes.
func New() *Classifier {
	return &Classifier{Labels: model.Classes[:]}
}

// Format picks the highest-probability class. On an exact tie the lowest
// index wins. Confidence is the winning entry of the returned vector.
func (c *Classifier) Format(probs []float32) (model.Prediction, error) {
	if len(probs) != len(c.Labels) {
		return model.Prediction{}, fmt.Errorf("classifier: got %d probabilities, want %d", len(probs), len(c.Labels))
	}

	vec := make([]float64, len(probs))
	for i, p := range probs {
		vec[i] = float64(p)
	}
	best := floats.MaxIdx(vec)

	return model.Prediction{
		Class:         c.Labels[best],
		Confidence:    vec[best],
		Probabilities: vec,
	}, nil
}
