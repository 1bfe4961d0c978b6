package classifier

import (
	"sync"

	"github.com/Brownie44l1/image-classifier/internal/model"
)

// fakeEngine returns a canned output and records what it was given.
type fakeEngine struct {
	mu     sync.Mutex
	output model.Output
	err    error
	calls  int
	last   *model.Tensor
}

func (f *fakeEngine) Infer(input *model.Tensor) (model.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = input
	if f.err != nil {
		return nil, f.err
	}
	if err := input.Validate(); err != nil {
		return nil, &model.InferenceError{Err: err}
	}
	return append(model.Output(nil), f.output...), nil
}

func (f *fakeEngine) Close() error { return nil }
