package webpreview

import "errors"

var (
	// ErrNoPreview is returned when a channel has no public preview.
	ErrNoPreview = errors.New("channel has no public preview")

	// ErrUnexpectedStatus is returned for non-200 responses.
	ErrUnexpectedStatus = errors.New("unexpected response status")
)
