// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder, ai.Classifier,
// and ai.AIProvider for use in unit tests. The mocks allow tests to run without
// external AI service dependencies and enable controlled, deterministic behavior.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	mockProvider := mock.NewMockProvider()
//	embeddings, err := mockProvider.Embedder().EmbedText(ctx, "test")
//
//	// Custom behavior injection
//	classifier := mock.NewMockClassifier()
//	classifier.ClassifyFunc = func(ctx context.Context, text string) (*ai.Classification, error) {
//	    return &ai.Classification{IsListing: false}, nil
//	}
//
//	// Check call counts
//	count := classifier.ClassifyCallCount()
//
// # Default Behavior
//
// The mock implementations provide sensible defaults:
//
//   - MockEmbedder: Returns normalized bag-of-words vectors (HashVector)
//   - MockClassifier: Accepts every non-blank text; reranks in input order
//   - MockProvider: Aggregates mock embedder and classifier
package mock
