package model

import "fmt"

// Fixed input geometry expected by the classifier network.
const (
	Batch     = 1
	Channels  = 3
	ImageSize = 224
)

// InputShape is the shape of every tensor handed to an Engine.
var InputShape = Shape{Batch, Channels, ImageSize, ImageSize}

// Shape lists tensor dimensions, outermost first.
type Shape []int64

// NumElements returns the product of all dimensions.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 0
	}
	n := 1
	for _, d := range s {
		n *= int(d)
	}
	return n
}

// Equal reports whether both shapes have identical dimensions.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s Shape) String() string {
	return fmt.Sprint([]int64(s))
}

// Tensor is a dense float32 tensor in channel-first (NCHW) layout.
type Tensor struct {
	Shape Shape
	Data  []float32
}

// NewInputTensor allocates a zeroed tensor with InputShape.
func NewInputTensor() *Tensor {
	return &Tensor{
		Shape: append(Shape(nil), InputShape...),
		Data:  make([]float32, InputShape.NumElements()),
	}
}

// Validate checks that the tensor matches InputShape and that its data
// length agrees with its shape.
func (t *Tensor) Validate() error {
	if t == nil {
		return fmt.Errorf("nil input tensor")
	}
	if !t.Shape.Equal(InputShape) {
		return fmt.Errorf("input shape %v, expected %v", t.Shape, InputShape)
	}
	if len(t.Data) != t.Shape.NumElements() {
		return fmt.Errorf("input holds %d values, shape %v needs %d", len(t.Data), t.Shape, t.Shape.NumElements())
	}
	return nil
}

// Output is one score per class as produced by an Engine.
type Output []float32

type PredictionRequest struct {
	Image []float32 `json:"image"`
}

type Prediction struct {
	Label string  `json:"label"`
	Score float32 `json:"score"`
}

type PredictionResponse struct {
	Class       string       `json:"class"`
	Index       int          `json:"index"`
	Confidence  float32      `json:"confidence"`
	Predictions []Prediction `json:"predictions"`
}
