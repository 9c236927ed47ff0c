package ai

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrEmptyResponse is returned when a model produced no usable output.
	ErrEmptyResponse = errors.New("empty model response")
)
