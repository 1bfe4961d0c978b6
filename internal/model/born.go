package model

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/onnx"
	"github.com/born-ml/born/tensor"
)

// BornEngine runs models with born's pure-Go ONNX interpreter on the CPU.
// It needs no native libraries. Calls are serialized.
type BornEngine struct {
	mu         sync.Mutex
	model      onnx.Model
	inputName  string
	outputName string
	closed     bool
}

func NewBornEngine(cfg SessionConfig) (*BornEngine, error) {
	if cfg.Provider != "" && cfg.Provider != ProviderCPU {
		return nil, &ModelLoadError{Resource: "engine", Err: fmt.Errorf("born backend supports only the cpu provider, got %q", cfg.Provider)}
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, &ModelLoadError{Resource: "model", Err: err}
	}

	m, err := onnx.Load(cfg.ModelPath, cpu.New())
	if err != nil {
		return nil, &ModelLoadError{Resource: "model", Err: err}
	}

	inName, outName, err := resolveIO(cfg, m.InputNames(), m.OutputNames())
	if err != nil {
		return nil, &ModelLoadError{Resource: "model", Err: err}
	}

	return &BornEngine{
		model:      m,
		inputName:  inName,
		outputName: outName,
	}, nil
}

func (e *BornEngine) Infer(input *Tensor) (out Output, err error) {
	if err := input.Validate(); err != nil {
		return nil, &InferenceError{Err: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, &InferenceError{Err: errors.New("engine is closed")}
	}

	// The interpreter reports some shape errors by panicking.
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &InferenceError{Err: fmt.Errorf("born: %v", r)}
		}
	}()

	raw, err := tensor.NewRaw(bornShape(input.Shape), tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, &InferenceError{Err: fmt.Errorf("failed to create input tensor: %w", err)}
	}
	copy(raw.AsFloat32(), input.Data)

	results, err := e.model.ForwardNamed(map[string]*tensor.RawTensor{e.inputName: raw})
	if err != nil {
		return nil, &InferenceError{Err: err}
	}
	result, ok := results[e.outputName]
	if !ok || result == nil {
		return nil, &InferenceError{Err: fmt.Errorf("no value for output %q", e.outputName)}
	}
	if result.DType() != tensor.Float32 {
		return nil, &InferenceError{Err: fmt.Errorf("output %q is %v, expected float32", e.outputName, result.DType())}
	}

	data := result.AsFloat32()
	out = make(Output, len(data))
	copy(out, data)
	return out, nil
}

func (e *BornEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.model = nil
	return nil
}

func bornShape(s Shape) tensor.Shape {
	dims := make(tensor.Shape, len(s))
	for i, d := range s {
		dims[i] = int(d)
	}
	return dims
}
