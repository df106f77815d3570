package model

import (
	"time"

	"github.com/crimson-sun/flowguard/internal/schema"
)

// Classes are the classifier's output labels, in output order.
var Classes = [...]string{"Normal", "DDoS", "Ransomware", "Brute Force"}

// NumClasses is the width of every probability vector.
const NumClasses = len(Classes)

// Prediction is flowguard's output type for one classified flow.
type Prediction struct {
	Class            string         `json:"class"`
	Confidence       float64        `json:"confidence"`
	Probabilities    []float64      `json:"probabilities"`
	CapturedFeatures *schema.Record `json:"captured_features,omitempty"`
	Note             string         `json:"note,omitempty"`
}

// Event sources.
const (
	SourcePredict = "predict"
	SourceLive    = "analyze_live"
	SourceMonitor = "monitor"
)

// Event is a prediction as written to output sinks.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	RequestID string    `json:"request_id,omitempty"`
	Prediction
}
