package output

import (
	"fmt"
	"strings"

	"github.com/crimson-sun/flowguard/internal/model"
)

// Verbosity controls how much of a prediction is written to sinks.
type Verbosity int

const (
	// Minimal keeps the class and confidence only.
	Minimal Verbosity = iota
	// Standard adds the probability vector and note.
	Standard
	// Full adds the captured flow record.
	Full
)

// ParseVerbosity converts "minimal", "standard" or "full".
func ParseVerbosity(s string) (Verbosity, error) {
	switch strings.ToLower(s) {
	case "minimal":
		return Minimal, nil
	case "standard", "":
		return Standard, nil
	case "full":
		return Full, nil
	default:
		return Standard, fmt.Errorf("output: unknown verbosity %q", s)
	}
}

func (v Verbosity) String() string {
	switch v {
	case Minimal:
		return "minimal"
	case Full:
		return "full"
	default:
		return "standard"
	}
}

// FormatEvent returns a copy of the event with fields stripped according to
// verbosity.
func FormatEvent(e model.Event, v Verbosity) model.Event {
	switch v {
	case Minimal:
		e.Probabilities = nil
		e.Note = ""
		e.CapturedFeatures = nil
	case Standard:
		e.CapturedFeatures = nil
	}
	return e
}
