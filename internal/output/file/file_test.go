package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/crimson-sun/flowguard/internal/model"
	"github.com/crimson-sun/flowguard/internal/output"
)

func testEvent(class string) model.Event {
	return model.Event{
		Timestamp: time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC),
		Source:    model.SourceMonitor,
		Prediction: model.Prediction{
			Class:         class,
			Confidence:    0.95,
			Probabilities: []float64{0.95, 0.02, 0.02, 0.01},
			Note:          "Analysis based on live packet capture.",
		},
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestWriteProducesValidNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	out, err := New(path, output.Standard)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := out.Write(context.Background(), testEvent("Normal")); err != nil {
			t.Fatalf("Write error: %v", err)
		}
	}
	out.Close()

	lines := readLines(t, path)
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want 5", len(lines))
	}
	for i, line := range lines {
		var ev model.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Errorf("line %d: invalid JSON: %v", i, err)
		}
		if ev.Class != "Normal" || ev.Source != model.SourceMonitor {
			t.Errorf("line %d: got %+v", i, ev)
		}
	}
}

func TestRotationTriggersAtMaxSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")

	// Each line is well over 100 bytes, so every second write rotates.
	out, err := New(path, output.Standard, WithMaxSize(200))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := out.Write(context.Background(), testEvent("DDoS")); err != nil {
			t.Fatalf("Write error: %v", err)
		}
	}
	out.Close()

	for _, p := range []string{path + ".1", path + ".2"} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected rotated file %s: %v", p, err)
		}
	}
	if lines := readLines(t, path); len(lines) != 1 {
		t.Errorf("live file has %d lines, want 1", len(lines))
	}
}

func TestRotationKeepsBoundedGenerations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	out, err := New(path, output.Standard, WithMaxSize(1))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < keepRotated+5; i++ {
		if err := out.Write(context.Background(), testEvent("Ransomware")); err != nil {
			t.Fatal(err)
		}
	}
	out.Close()

	if _, err := os.Stat(rotatedName(path, keepRotated)); err != nil {
		t.Errorf("expected oldest generation: %v", err)
	}
	if _, err := os.Stat(rotatedName(path, keepRotated+1)); !os.IsNotExist(err) {
		t.Errorf("generation beyond %d should not exist", keepRotated)
	}
}

func TestReopenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	for i := 0; i < 2; i++ {
		out, err := New(path, output.Standard)
		if err != nil {
			t.Fatal(err)
		}
		out.Write(context.Background(), testEvent("Normal"))
		out.Close()
	}
	if lines := readLines(t, path); len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
}

func TestCloseFlushesData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	out, err := New(path, output.Standard, WithFlushInterval(0))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	out.Write(context.Background(), testEvent("Brute Force"))
	out.Close()

	data, _ := os.ReadFile(path)
	if len(data) == 0 {
		t.Error("Close did not flush buffered data")
	}
}

func TestVerbosityMinimalStripsFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	out, err := New(path, output.Minimal)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	out.Write(context.Background(), testEvent("DDoS"))
	out.Close()

	var ev map[string]any
	if err := json.Unmarshal([]byte(readLines(t, path)[0]), &ev); err != nil {
		t.Fatal(err)
	}
	if _, ok := ev["note"]; ok {
		t.Error("Minimal verbosity should strip 'note' field")
	}
	if ev["confidence"] != 0.95 {
		t.Errorf("confidence = %v, want 0.95", ev["confidence"])
	}
}

func TestOpenErrorOnMissingDir(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing", "out.jsonl"), output.Standard)
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestConcurrentWritesSafe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	out, err := New(path, output.Standard)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out.Write(context.Background(), testEvent("Normal"))
		}()
	}
	wg.Wait()
	out.Close()

	if lines := readLines(t, path); len(lines) != 50 {
		t.Errorf("got %d lines, want 50", len(lines))
	}
}

func TestPeriodicFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	out, err := New(path, output.Standard, WithFlushInterval(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()

	if err := out.Write(context.Background(), testEvent("DDoS")); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if data, _ := os.ReadFile(path); strings.Contains(string(data), `"class":"DDoS"`) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("event not on disk before Close")
}

func TestNoFlushWithoutInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	out, err := New(path, output.Standard, WithFlushInterval(0))
	if err != nil {
		t.Fatal(err)
	}
	if err := out.Write(context.Background(), testEvent("Normal")); err != nil {
		t.Fatal(err)
	}
	if data, _ := os.ReadFile(path); len(data) != 0 {
		t.Errorf("buffered event written early: %q", data)
	}
	if err := out.Flush(); err != nil {
		t.Fatal(err)
	}
	if data, _ := os.ReadFile(path); len(data) == 0 {
		t.Error("Flush did not write the event")
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}
}
