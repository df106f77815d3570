// Package output delivers prediction events to sinks: stdout, a rotating
// NDJSON file, or a batching webhook.
package output

import (
	"context"

	"github.com/crimson-sun/flowguard/internal/model"
)

// Output defines the interface for prediction event destinations.
type Output interface {
	Write(ctx context.Context, event model.Event) error
	Close() error
}

// Discard is an Output that drops every event.
var Discard Output = discard{}

type discard struct{}

func (discard) Write(context.Context, model.Event) error { return nil }
func (discard) Close() error                             { return nil }
