package model

import (
	"errors"
	"fmt"
)

// Error kinds reported by KindOf.
const (
	KindImageDecode     = "image_decode"
	KindModelLoad       = "model_load"
	KindInference       = "inference"
	KindIndexOutOfRange = "index_out_of_range"
	KindUnknown         = "unknown"
)

// ImageDecodeError means the image could not be read or decoded.
type ImageDecodeError struct {
	Path string
	Err  error
}

func (e *ImageDecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("failed to decode image: %v", e.Err)
	}
	return fmt.Sprintf("failed to decode image %s: %v", e.Path, e.Err)
}

func (e *ImageDecodeError) Unwrap() error { return e.Err }

// ModelLoadError means a startup resource (model or labels) is missing or
// does not match the configuration.
type ModelLoadError struct {
	Resource string
	Err      error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Resource, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// InferenceError is a per-call failure inside an Engine.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed: %v", e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// IndexOutOfRangeError means the winning class index has no label.
type IndexOutOfRangeError struct {
	Index  int
	Labels int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("class index %d out of range for %d labels", e.Index, e.Labels)
}

// KindOf classifies err into one of the Kind constants.
func KindOf(err error) string {
	var (
		decodeErr *ImageDecodeError
		loadErr   *ModelLoadError
		inferErr  *InferenceError
		rangeErr  *IndexOutOfRangeError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &decodeErr):
		return KindImageDecode
	case errors.As(err, &loadErr):
		return KindModelLoad
	case errors.As(err, &inferErr):
		return KindInference
	case errors.As(err, &rangeErr):
		return KindIndexOutOfRange
	default:
		return KindUnknown
	}
}
