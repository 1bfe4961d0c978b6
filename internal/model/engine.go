package model

import (
	"fmt"
	"strings"
)

// Engine runs a loaded network on one input tensor.
//
// Implementations must be safe for concurrent Infer calls. Construction
// failures are reported as *ModelLoadError, per-call failures as
// *InferenceError.
type Engine interface {
	Infer(input *Tensor) (Output, error)
	Close() error
}

// Supported backends.
const (
	BackendONNXRuntime = "onnxruntime"
	BackendBorn        = "born"
)

// Provider selects the ONNX Runtime execution provider.
type Provider string

const (
	ProviderCPU      Provider = "cpu"
	ProviderCUDA     Provider = "cuda"
	ProviderDirectML Provider = "directml"
	ProviderCoreML   Provider = "coreml"
)

// ParseProvider maps a case-insensitive name to a Provider. The empty
// string selects the CPU.
func ParseProvider(name string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return ProviderCPU, nil
	case ProviderCPU, ProviderCUDA, ProviderDirectML, ProviderCoreML:
		return p, nil
	default:
		return "", fmt.Errorf("unknown execution provider %q", name)
	}
}

// SessionConfig describes how an Engine opens its model.
type SessionConfig struct {
	ModelPath string
	// InputName must be declared by the model; it is never guessed.
	InputName string
	// OutputName defaults to the model's first declared output.
	OutputName string

	Provider Provider
	DeviceID int
	Threads  int

	// SharedLibraryPath points at libonnxruntime; empty uses the loader default.
	SharedLibraryPath string
}

// Open constructs the Engine named by backend.
func Open(backend string, cfg SessionConfig) (Engine, error) {
	switch backend {
	case "", BackendONNXRuntime:
		e, err := NewORTEngine(cfg)
		if err != nil {
			return nil, err
		}
		return e, nil
	case BackendBorn:
		e, err := NewBornEngine(cfg)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, &ModelLoadError{Resource: "engine", Err: fmt.Errorf("unknown backend %q", backend)}
	}
}

// resolveIO checks that the configured input exists among the declared
// inputs and picks the output name.
func resolveIO(cfg SessionConfig, inputs, outputs []string) (string, string, error) {
	if cfg.InputName == "" {
		return "", "", fmt.Errorf("input name is not configured")
	}
	if !contains(inputs, cfg.InputName) {
		return "", "", fmt.Errorf("model declares inputs %v, configured input %q not found", inputs, cfg.InputName)
	}
	if len(outputs) == 0 {
		return "", "", fmt.Errorf("model declares no outputs")
	}
	out := cfg.OutputName
	if out == "" {
		out = outputs[0]
	} else if !contains(outputs, out) {
		return "", "", fmt.Errorf("model declares outputs %v, configured output %q not found", outputs, out)
	}
	return cfg.InputName, out, nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
