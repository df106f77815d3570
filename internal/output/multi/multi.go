// Package multi fans prediction events out to several named sinks.
package multi

import (
	"context"
	"errors"
	"fmt"

	"github.com/crimson-sun/flowguard/internal/model"
	"github.com/crimson-sun/flowguard/internal/output"
)

// Sink is one destination. Name prefixes its errors.
type Sink struct {
	Name   string
	Output output.Output
}

// Multi writes each event to every sink in order. A failing sink does not
// stop delivery to the others.
type Multi struct {
	sinks []Sink
}

// New creates a Multi over sinks.
func New(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Names lists the sink names in delivery order.
func (m *Multi) Names() []string {
	names := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		names[i] = s.Name
	}
	return names
}

// Write delivers event to each sink. Sinks not yet reached when ctx is
// cancelled are skipped.
func (m *Multi) Write(ctx context.Context, event model.Event) error {
	var errs []error
	for _, s := range m.sinks {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.Output.Write(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Output.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}
