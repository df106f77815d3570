package stdout

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/crimson-sun/flowguard/internal/model"
	"github.com/crimson-sun/flowguard/internal/output"
)

func testEvent() model.Event {
	return model.Event{
		Timestamp: time.Date(2026, 2, 19, 12, 0, 0, 0, time.UTC),
		Source:    model.SourcePredict,
		Prediction: model.Prediction{
			Class:         "Brute Force",
			Confidence:    0.91,
			Probabilities: []float64{0.02, 0.03, 0.04, 0.91},
		},
	}
}

func TestOutputCompactJSON(t *testing.T) {
	var buf bytes.Buffer
	out := NewWriter(&buf, output.Standard, false)
	if err := out.Write(context.Background(), testEvent()); err != nil {
		t.Fatal(err)
	}

	// Should be single line (NDJSON).
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if m["class"] != "Brute Force" {
		t.Fatalf("expected class=Brute Force, got %v", m["class"])
	}
	if m["source"] != "predict" {
		t.Fatalf("expected source=predict, got %v", m["source"])
	}
}

func TestOutputPrettyJSON(t *testing.T) {
	var buf bytes.Buffer
	out := NewWriter(&buf, output.Standard, true)
	if err := out.Write(context.Background(), testEvent()); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(buf.String(), "  ") {
		t.Fatal("expected indented output for pretty mode")
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) < 3 {
		t.Fatalf("expected multi-line pretty output, got %d lines", len(lines))
	}
}

func TestOutputMinimalOmitsProbabilities(t *testing.T) {
	var buf bytes.Buffer
	out := NewWriter(&buf, output.Minimal, false)
	if err := out.Write(context.Background(), testEvent()); err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatal(err)
	}
	if m["probabilities"] != nil {
		t.Fatalf("probabilities should be null at minimal, got %v", m["probabilities"])
	}
}

func TestOutputMultipleEvents(t *testing.T) {
	var buf bytes.Buffer
	out := NewWriter(&buf, output.Standard, false)
	for i := 0; i < 3; i++ {
		if err := out.Write(context.Background(), testEvent()); err != nil {
			t.Fatal(err)
		}
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(buf.String(), "\n"); n != 3 {
		t.Fatalf("expected 3 lines, got %d", n)
	}
}
