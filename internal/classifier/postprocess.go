package classifier

import (
	"errors"
	"math"
	"sort"

	"github.com/Brownie44l1/image-classifier/internal/model"
)

var (
	errEmptyOutput = errors.New("empty output vector")
	errNoScores    = errors.New("output vector holds only NaN scores")
)

// ArgMax scans scores left to right and returns the index and value of the
// maximum. NaN entries are skipped and ties keep the lowest index. It
// returns -1 when no score is comparable.
func ArgMax(scores []float32) (int, float32) {
	maxIdx, maxVal := -1, float32(0)
	for i, v := range scores {
		if isNaN(v) {
			continue
		}
		if maxIdx < 0 || v > maxVal {
			maxIdx, maxVal = i, v
		}
	}
	return maxIdx, maxVal
}

// Classify returns the label of the best-scoring class.
func Classify(output model.Output, labels Labels) (string, error) {
	idx, _ := ArgMax(output)
	if idx < 0 {
		return "", &model.InferenceError{Err: outputError(output)}
	}
	return labels.Label(idx)
}

func outputError(output model.Output) error {
	if len(output) == 0 {
		return errEmptyOutput
	}
	return errNoScores
}

func isNaN(v float32) bool {
	return math.IsNaN(float64(v))
}

// TopK returns the k best predictions, highest score first. Equal scores
// are ordered by class index. NaN scores are left out.
func TopK(output model.Output, labels Labels, k int) ([]model.Prediction, error) {
	order := make([]int, 0, len(output))
	for i, v := range output {
		if !isNaN(v) {
			order = append(order, i)
		}
	}
	if len(order) == 0 {
		return nil, &model.InferenceError{Err: outputError(output)}
	}
	if k > len(order) {
		k = len(order)
	}
	if k <= 0 {
		return nil, nil
	}

	sort.SliceStable(order, func(a, b int) bool {
		return output[order[a]] > output[order[b]]
	})

	predictions := make([]model.Prediction, k)
	for i, idx := range order[:k] {
		label, err := labels.Label(idx)
		if err != nil {
			return nil, err
		}
		predictions[i] = model.Prediction{Label: label, Score: output[idx]}
	}
	return predictions, nil
}
