package network

import (
	"context"
	"os"
	"testing"

	ort "github.com/yalue/onnxruntime_go"
)

const testModelPath = "../../../models/model.onnx"

func skipIfNoModel(t *testing.T) {
	t.Helper()
	if _, err := os.Stat(testModelPath); os.IsNotExist(err) {
		t.Skip("model files not found; export the classifier to models/model.onnx first")
	}
	if _, err := os.Stat(LibraryPath(testModelPath, "")); os.IsNotExist(err) {
		t.Skip("onnxruntime shared library not found next to the model")
	}
}

func TestValidateIO(t *testing.T) {
	info := func(name string, dims ...int64) ort.InputOutputInfo {
		return ort.InputOutputInfo{Name: name, Dimensions: ort.NewShape(dims...)}
	}
	tests := []struct {
		name    string
		inputs  []ort.InputOutputInfo
		outputs []ort.InputOutputInfo
		wantErr bool
	}{
		{"conv1d export", []ort.InputOutputInfo{info("x", -1, 20, 1)}, []ort.InputOutputInfo{info("y", -1, 4)}, false},
		{"dynamic width", []ort.InputOutputInfo{info("x", -1, -1, -1)}, []ort.InputOutputInfo{info("y", -1, 4)}, false},
		{"two inputs", []ort.InputOutputInfo{info("a", -1, 20, 1), info("b", -1, 20, 1)}, []ort.InputOutputInfo{info("y", -1, 4)}, true},
		{"rank 2 input", []ort.InputOutputInfo{info("x", -1, 20)}, []ort.InputOutputInfo{info("y", -1, 4)}, true},
		{"channels 3", []ort.InputOutputInfo{info("x", -1, 20, 3)}, []ort.InputOutputInfo{info("y", -1, 4)}, true},
		{"no outputs", []ort.InputOutputInfo{info("x", -1, 20, 1)}, nil, true},
		{"rank 3 output", []ort.InputOutputInfo{info("x", -1, 20, 1)}, []ort.InputOutputInfo{info("y", -1, 4, 1)}, true},
		{"dynamic classes", []ort.InputOutputInfo{info("x", -1, 20, 1)}, []ort.InputOutputInfo{info("y", -1, -1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := validateIO(tt.inputs, tt.outputs)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateIO() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLibraryPath(t *testing.T) {
	if got := LibraryPath("/srv/models/model.onnx", ""); got != "/srv/models/libonnxruntime.so" {
		t.Errorf("LibraryPath default = %q", got)
	}
	if got := LibraryPath("/srv/models/model.onnx", "/usr/lib/libonnxruntime.so.1"); got != "/usr/lib/libonnxruntime.so.1" {
		t.Errorf("LibraryPath override = %q", got)
	}
}

func TestONNXForward(t *testing.T) {
	skipIfNoModel(t)

	net, err := LoadONNX(testModelPath, "")
	if err != nil {
		t.Fatalf("failed to load model: %v", err)
	}
	defer net.Close()

	features := net.Features()
	if features <= 0 {
		features = 20
	}
	input := make([]float32, 2*features)
	out, err := net.Forward(context.Background(), input, 2, features)
	if err != nil {
		t.Fatalf("Forward() error: %v", err)
	}
	if len(out) != 2 || int64(len(out[0])) != net.Classes() {
		t.Fatalf("output shape = %dx%d", len(out), len(out[0]))
	}

	var sum float32
	for _, p := range out[0] {
		sum += p
	}
	if sum < 0.99 || sum > 1.01 {
		t.Errorf("probabilities sum to %v", sum)
	}
}

func TestONNXForwardRejectsBadLength(t *testing.T) {
	skipIfNoModel(t)

	net, err := LoadONNX(testModelPath, "")
	if err != nil {
		t.Fatalf("failed to load model: %v", err)
	}
	defer net.Close()

	if _, err := net.Forward(context.Background(), make([]float32, 3), 2, 2); err == nil {
		t.Error("expected error for mismatched input length")
	}
}
