package network

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ortEnv manages global ONNX Runtime initialization (process-wide singleton).
var ortEnv struct {
	once sync.Once
	err  error
}

// initORT initializes the ONNX Runtime environment. Safe to call multiple
// times; only the first call has any effect.
func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// ONNX is a Network backed by an onnxruntime session over the exported
// Conv1D classifier.
type ONNX struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	features   int64 // -1 when the model accepts any width
	classes    int64
}

// LibraryPath returns the runtime library to load: libPath if set, otherwise
// libonnxruntime.so next to the model file.
func LibraryPath(modelPath, libPath string) string {
	if libPath != "" {
		return libPath
	}
	return filepath.Join(filepath.Dir(modelPath), "libonnxruntime.so")
}

// LoadONNX opens the model and validates that it takes one rank-3 input with
// a trailing dimension of 1 and yields one rank-2 probability output.
func LoadONNX(modelPath, libPath string) (*ONNX, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}
	if err := initORT(LibraryPath(modelPath, libPath)); err != nil {
		return nil, fmt.Errorf("network: failed to initialize runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("network: failed to read model info: %w", err)
	}
	in, out, err := validateIO(inputs, outputs)
	if err != nil {
		return nil, err
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("network: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	opts.SetIntraOpNumThreads(4)
	opts.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{in.Name},
		[]string{out.Name},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("network: failed to create session: %w", err)
	}

	return &ONNX{
		session:    session,
		inputName:  in.Name,
		outputName: out.Name,
		features:   in.Dimensions[1],
		classes:    out.Dimensions[1],
	}, nil
}

func validateIO(inputs, outputs []ort.InputOutputInfo) (ort.InputOutputInfo, ort.InputOutputInfo, error) {
	var none ort.InputOutputInfo
	if len(inputs) != 1 {
		return none, none, fmt.Errorf("network: expected 1 model input, got %d", len(inputs))
	}
	if len(outputs) == 0 {
		return none, none, fmt.Errorf("network: model has no outputs")
	}
	in, out := inputs[0], outputs[0]
	if len(in.Dimensions) != 3 {
		return none, none, fmt.Errorf("network: expected 3D input tensor, got %v", in.Dimensions)
	}
	if d := in.Dimensions[2]; d != 1 && d != -1 {
		return none, none, fmt.Errorf("network: expected input channel dimension 1, got %d", d)
	}
	if len(out.Dimensions) != 2 {
		return none, none, fmt.Errorf("network: expected 2D output tensor, got %v", out.Dimensions)
	}
	if out.Dimensions[1] <= 0 {
		return none, none, fmt.Errorf("network: output class dimension must be fixed, got %d", out.Dimensions[1])
	}
	return in, out, nil
}

// Features is the input width the model was exported with, or -1.
func (o *ONNX) Features() int64 { return o.features }

// Classes is the number of output probabilities per row.
func (o *ONNX) Classes() int64 { return o.classes }

// Forward runs one inference call over a (batch, features, 1) tensor.
func (o *ONNX) Forward(ctx context.Context, input []float32, batch, features int64) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if int64(len(input)) != batch*features {
		return nil, fmt.Errorf("network: input length %d does not match %dx%d", len(input), batch, features)
	}
	if o.features > 0 && features != o.features {
		return nil, fmt.Errorf("network: model expects %d features, got %d", o.features, features)
	}

	tIn, err := ort.NewTensor(ort.NewShape(batch, features, 1), input)
	if err != nil {
		return nil, fmt.Errorf("network: failed to create input tensor: %w", err)
	}
	defer tIn.Destroy()

	tOut, err := ort.NewEmptyTensor[float32](ort.NewShape(batch, o.classes))
	if err != nil {
		return nil, fmt.Errorf("network: failed to create output tensor: %w", err)
	}
	defer tOut.Destroy()

	if err := o.session.Run([]ort.Value{tIn}, []ort.Value{tOut}); err != nil {
		return nil, fmt.Errorf("network: inference failed: %w", err)
	}

	// Copy data out before the tensor is destroyed.
	src := tOut.GetData()
	rows := make([][]float32, batch)
	for i := range rows {
		row := make([]float32, o.classes)
		copy(row, src[int64(i)*o.classes:])
		rows[i] = row
	}
	return rows, nil
}

// Close releases the session.
func (o *ONNX) Close() error {
	return o.session.Destroy()
}
