package flowguard

import (
	"context"
	"errors"
	"math"
	"os"
	"sync"
	"testing"

	"github.com/crimson-sun/flowguard/internal/engine"
	"github.com/crimson-sun/flowguard/internal/engine/enginetest"
)

const testDataDir = "../.."

func skipWithoutModel(t *testing.T) {
	t.Helper()
	for _, f := range []string{"/model.onnx", "/cyberfeddefender_dataset.csv"} {
		if _, err := os.Stat(testDataDir + f); os.IsNotExist(err) {
			t.Skip("model artifacts not available, skipping integration test")
		}
	}
}

func testGuard(t *testing.T) (*FlowGuard, *enginetest.Net) {
	t.Helper()
	net := &enginetest.Net{}
	return &FlowGuard{engine: enginetest.Engine(t, net)}, net
}

func sampleFlow() Flow {
	return Flow{
		Protocol:          "UDP",
		Flags:             "SYN",
		PacketLength:      200,
		Duration:          0.5,
		SourcePort:        5353,
		DestinationPort:   53,
		FlowPacketsPerSec: 400,
		TotalFwdPackets:   500,
	}
}

func TestClassify(t *testing.T) {
	g, _ := testGuard(t)
	res, err := g.Classify(sampleFlow())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(res.Probabilities) != len(Classes()) {
		t.Fatalf("got %d probabilities", len(res.Probabilities))
	}
	var sum float64
	best := 0
	for i, p := range res.Probabilities {
		sum += p
		if p > res.Probabilities[best] {
			best = i
		}
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Errorf("probabilities sum to %v", sum)
	}
	if res.Class != Classes()[best] || res.Confidence != res.Probabilities[best] {
		t.Errorf("class/confidence not arg-max: %+v", res)
	}
}

func TestClassifyBatchMatchesIndividual(t *testing.T) {
	g, net := testGuard(t)
	other := sampleFlow()
	other.Protocol, other.Flags, other.BytesSent = "TCP", "PSH", 90000

	batch, err := g.ClassifyBatch([]Flow{sampleFlow(), other})
	if err != nil {
		t.Fatal(err)
	}
	if net.Calls() != 1 {
		t.Errorf("batch made %d forward calls, want 1", net.Calls())
	}
	for i, f := range []Flow{sampleFlow(), other} {
		single, err := g.Classify(f)
		if err != nil {
			t.Fatal(err)
		}
		if single.Class != batch[i].Class || single.Confidence != batch[i].Confidence {
			t.Errorf("flow %d: batch %+v != single %+v", i, batch[i], single)
		}
	}
}

func TestClassifyInvalidFlow(t *testing.T) {
	g, net := testGuard(t)
	_, err := g.Classify(Flow{Protocol: "TCP"})
	if !errors.Is(err, ErrInvalidFlow) {
		t.Fatalf("expected ErrInvalidFlow, got %v", err)
	}
	if net.Calls() != 0 {
		t.Error("no forward pass expected for invalid flow")
	}
}

func TestClassifyMap(t *testing.T) {
	g, _ := testGuard(t)
	res, err := g.ClassifyMap(context.Background(), map[string]any{
		"Protocol": "TCP", "Flags": "ACK", "Duration": "2.55",
	})
	if err != nil {
		t.Fatalf("ClassifyMap: %v", err)
	}
	if res.Class == "" {
		t.Error("empty class")
	}

	_, err = g.ClassifyMap(context.Background(), map[string]any{"Protocol": "TCP", "Flags": "ACK", "Duration": "slow"})
	if !errors.Is(err, ErrInvalidFlow) {
		t.Fatalf("expected ErrInvalidFlow, got %v", err)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	g, _ := testGuard(t)
	a, _ := g.Classify(sampleFlow())
	b, _ := g.Classify(sampleFlow())
	for i := range a.Probabilities {
		if a.Probabilities[i] != b.Probabilities[i] {
			t.Fatalf("non-deterministic output: %v vs %v", a, b)
		}
	}
}

func TestConcurrentClassify(t *testing.T) {
	g, _ := testGuard(t)
	want, err := g.Classify(sampleFlow())
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := g.Classify(sampleFlow())
			if err != nil {
				errs <- err
				return
			}
			if got.Class != want.Class {
				errs <- errors.New("class differs under concurrency")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestNotLoadedEngine(t *testing.T) {
	g := &FlowGuard{engine: engine.New(nil, nil, nil)}
	if _, err := g.Classify(sampleFlow()); !errors.Is(err, engine.ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}
}

func TestClose(t *testing.T) {
	g, net := testGuard(t)
	if err := g.Close(); err != nil {
		t.Fatal(err)
	}
	if !net.Closed() {
		t.Error("network not closed")
	}
}

func TestNewBadPathReturnsError(t *testing.T) {
	_, err := New(WithDataDir("/nonexistent/path"))
	if err == nil {
		t.Fatal("expected error for missing artifacts")
	}
}

func TestResolvePaths(t *testing.T) {
	ds, m, fb := resolvePaths(options{dataDir: "data"})
	if ds != "data/cyberfeddefender_dataset.csv" || m != "data/model.onnx" || fb != "data/cnn_multiclass_model.onnx" {
		t.Errorf("dir layout: %s %s %s", ds, m, fb)
	}
	ds, m, fb = resolvePaths(options{dataDir: "data", datasetPath: "x.csv", modelPath: "y.onnx"})
	if ds != "x.csv" || m != "y.onnx" || fb != "" {
		t.Errorf("explicit paths: %s %s %s", ds, m, fb)
	}
}

func TestNewWithModel(t *testing.T) {
	skipWithoutModel(t)
	g, err := New(WithDataDir(testDataDir))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer g.Close()
	if _, err := g.Classify(sampleFlow()); err != nil {
		t.Fatalf("Classify: %v", err)
	}
}
