// Package classifier selects labels from network outputs and drives the
// preprocess, infer, label pipeline.
package classifier

import (
	"fmt"
	"image"
	"io"

	"github.com/Brownie44l1/image-classifier/internal/model"
	"github.com/Brownie44l1/image-classifier/internal/preprocess"
)

// Result is the outcome of one classification.
type Result struct {
	Label  string
	Index  int
	Score  float32
	Scores model.Output
}

// Top returns the k best predictions of r.
func (r *Result) Top(labels Labels, k int) ([]model.Prediction, error) {
	return TopK(r.Scores, labels, k)
}

// Classifier shares one engine and one label table between callers. Every
// call allocates its own image and tensor buffers.
type Classifier struct {
	pre    *preprocess.Preprocessor
	engine model.Engine
	labels Labels
}

func New(engine model.Engine, labels Labels) *Classifier {
	return &Classifier{
		pre:    preprocess.New(),
		engine: engine,
		labels: labels,
	}
}

func (c *Classifier) Labels() Labels {
	return c.labels
}

// ClassifyFile classifies the image stored at path.
func (c *Classifier) ClassifyFile(path string) (*Result, error) {
	t, err := c.pre.File(path)
	if err != nil {
		return nil, err
	}
	return c.ClassifyTensor(t)
}

// ClassifyReader classifies an encoded image read from r.
func (c *Classifier) ClassifyReader(r io.Reader) (*Result, error) {
	t, err := c.pre.Reader(r)
	if err != nil {
		return nil, err
	}
	return c.ClassifyTensor(t)
}

// ClassifyImage classifies an already decoded image.
func (c *Classifier) ClassifyImage(img image.Image) (*Result, error) {
	return c.ClassifyTensor(c.pre.Image(img))
}

// ClassifyTensor runs an already preprocessed tensor through the engine.
func (c *Classifier) ClassifyTensor(t *model.Tensor) (*Result, error) {
	output, err := c.engine.Infer(t)
	if err != nil {
		if model.KindOf(err) == model.KindUnknown {
			err = &model.InferenceError{Err: err}
		}
		return nil, fmt.Errorf("classify: %w", err)
	}

	label, err := Classify(output, c.labels)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	idx, score := ArgMax(output)
	return &Result{
		Label:  label,
		Index:  idx,
		Score:  score,
		Scores: output,
	}, nil
}
