package flowguard

import "path/filepath"

type options struct {
	dataDir       string
	datasetPath   string
	modelPath     string
	fallbackModel string
	ortLibrary    string
}

// Option configures a FlowGuard instance.
type Option func(*options)

// WithDataDir sets the directory holding the reference dataset and model.
// Expects: cyberfeddefender_dataset.csv and model.onnx (or
// cnn_multiclass_model.onnx). Default: "..".
func WithDataDir(dir string) Option {
	return func(o *options) { o.dataDir = dir }
}

// WithPaths sets explicit dataset and model paths.
func WithPaths(dataset, model string) Option {
	return func(o *options) {
		o.datasetPath = dataset
		o.modelPath = model
	}
}

// WithORTLibrary sets the ONNX Runtime shared library path.
// Default: libonnxruntime.so next to the model.
func WithORTLibrary(path string) Option {
	return func(o *options) { o.ortLibrary = path }
}

func defaultOptions() options {
	return options{dataDir: ".."}
}

// resolvePaths applies explicit paths over the data directory layout.
func resolvePaths(o options) (dataset, model, fallback string) {
	dataset = filepath.Join(o.dataDir, "cyberfeddefender_dataset.csv")
	model = filepath.Join(o.dataDir, "model.onnx")
	fallback = filepath.Join(o.dataDir, "cnn_multiclass_model.onnx")
	if o.datasetPath != "" {
		dataset = o.datasetPath
	}
	if o.modelPath != "" {
		model, fallback = o.modelPath, ""
	}
	return dataset, model, fallback
}
