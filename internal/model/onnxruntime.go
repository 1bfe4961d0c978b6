package model

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	envMu   sync.Mutex
	envRefs int
)

// acquireEnvironment initializes the process-wide ONNX Runtime environment
// on first use. Every successful call must be paired with releaseEnvironment.
func acquireEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 && !ort.IsInitialized() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	envRefs++
	return nil
}

func releaseEnvironment() {
	envMu.Lock()
	defer envMu.Unlock()

	envRefs--
	if envRefs == 0 && ort.IsInitialized() {
		ort.DestroyEnvironment()
	}
}

// ORTEngine runs models through the native ONNX Runtime library.
type ORTEngine struct {
	mu         sync.RWMutex
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	closed     bool
}

// NewORTEngine opens cfg.ModelPath and validates its declared inputs and
// outputs against cfg before building the session.
func NewORTEngine(cfg SessionConfig) (*ORTEngine, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, &ModelLoadError{Resource: "model", Err: err}
	}

	if err := acquireEnvironment(cfg.SharedLibraryPath); err != nil {
		return nil, &ModelLoadError{Resource: "onnxruntime", Err: err}
	}

	engine, err := newORTSession(cfg)
	if err != nil {
		releaseEnvironment()
		return nil, &ModelLoadError{Resource: "model", Err: err}
	}
	return engine, nil
}

func newORTSession(cfg SessionConfig) (*ORTEngine, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model inputs and outputs: %w", err)
	}

	inName, outName, err := resolveIO(cfg, ioNames(inputs), ioNames(outputs))
	if err != nil {
		return nil, err
	}
	for _, in := range inputs {
		if in.Name == inName {
			if err := checkInputDims(in.Dimensions); err != nil {
				return nil, fmt.Errorf("input %q: %w", inName, err)
			}
		}
	}

	options, err := sessionOptions(cfg)
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{inName}, []string{outName}, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ORTEngine{
		session:    session,
		inputName:  inName,
		outputName: outName,
	}, nil
}

func sessionOptions(cfg SessionConfig) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}

	if cfg.Threads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.Threads); err != nil {
			options.Destroy()
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	if err := appendProvider(options, cfg); err != nil {
		options.Destroy()
		return nil, fmt.Errorf("failed to enable %s provider: %w", cfg.Provider, err)
	}
	return options, nil
}

func appendProvider(options *ort.SessionOptions, cfg SessionConfig) error {
	switch cfg.Provider {
	case "", ProviderCPU:
		return nil
	case ProviderCUDA:
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return err
		}
		defer cudaOptions.Destroy()
		err = cudaOptions.Update(map[string]string{
			"device_id": strconv.Itoa(cfg.DeviceID),
		})
		if err != nil {
			return err
		}
		return options.AppendExecutionProviderCUDA(cudaOptions)
	case ProviderDirectML:
		return options.AppendExecutionProviderDirectML(cfg.DeviceID)
	case ProviderCoreML:
		return options.AppendExecutionProviderCoreML(0)
	default:
		return fmt.Errorf("unknown execution provider %q", cfg.Provider)
	}
}

// Infer copies nothing on the way in: the input data backs the native
// tensor for the duration of the call.
func (e *ORTEngine) Infer(input *Tensor) (Output, error) {
	if err := input.Validate(); err != nil {
		return nil, &InferenceError{Err: err}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, &InferenceError{Err: errors.New("engine is closed")}
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(input.Shape...), input.Data)
	if err != nil {
		return nil, &InferenceError{Err: fmt.Errorf("failed to create input tensor: %w", err)}
	}
	defer inputTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, &InferenceError{Err: err}
	}
	if outputs[0] == nil {
		return nil, &InferenceError{Err: fmt.Errorf("no value for output %q", e.outputName)}
	}
	defer outputs[0].Destroy()

	outputTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, &InferenceError{Err: fmt.Errorf("output %q is not a float32 tensor", e.outputName)}
	}

	data := outputTensor.GetData()
	result := make(Output, len(data))
	copy(result, data)
	return result, nil
}

// Close destroys the session. Calling it more than once is a no-op.
func (e *ORTEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var err error
	if e.session != nil {
		err = e.session.Destroy()
	}
	releaseEnvironment()
	return err
}

func ioNames(infos []ort.InputOutputInfo) []string {
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names
}

// checkInputDims rejects a declared input whose static dimensions disagree
// with InputShape. Negative dimensions are symbolic and accepted.
func checkInputDims(dims []int64) error {
	if len(dims) != len(InputShape) {
		return fmt.Errorf("expected %dD input, model declares %v", len(InputShape), dims)
	}
	for i, d := range dims {
		if d > 0 && d != InputShape[i] {
			return fmt.Errorf("model declares shape %v, expected %v", dims, InputShape)
		}
	}
	return nil
}
