package ingestion

import "errors"

var (
	// ErrStoreRequired is returned when a listing store is not provided.
	ErrStoreRequired = errors.New("listing store required")

	// ErrStatsStoreRequired is returned when a source stats store is not provided.
	ErrStatsStoreRequired = errors.New("source stats store required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrRegistryRequired is returned by operations that need a source registry.
	ErrRegistryRequired = errors.New("source registry required")

	// ErrConnectorRequired is returned by operations that need a connector.
	ErrConnectorRequired = errors.New("at least one connector required")

	// ErrUnauthorized is returned by a connector whose session is not
	// authorized.
	ErrUnauthorized = errors.New("connector not authorized")

	// ErrUnknownSource is returned when a source can't be resolved.
	ErrUnknownSource = errors.New("unknown source")

	// ErrFatal wraps errors that stop the pipeline.
	ErrFatal = errors.New("fatal pipeline error")
)
