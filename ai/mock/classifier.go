package mock

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/shaxb/tele-google/ai"
)

// MockClassifier is a test double for ai.Classifier.
// It allows custom behavior injection via function fields.
type MockClassifier struct {
	// ClassifyFunc is called by ClassifyAndExtract if set.
	// If nil, every non-blank text is a listing with confidence 1.
	ClassifyFunc func(ctx context.Context, text string) (*ai.Classification, error)

	// RerankFunc is called by Rerank if set.
	// If nil, the first five candidates are returned in order.
	RerankFunc func(ctx context.Context, query string, candidates []ai.Candidate) ([]int, error)

	classifyCalls atomic.Int64
	rerankCalls   atomic.Int64
}

// NewMockClassifier creates a mock classifier with default behavior.
func NewMockClassifier() *MockClassifier {
	return &MockClassifier{}
}

// ClassifyAndExtract reports text as a listing titled with its first line.
func (m *MockClassifier) ClassifyAndExtract(ctx context.Context, text string) (*ai.Classification, error) {
	m.classifyCalls.Add(1)

	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, text)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	title, _, _ := strings.Cut(text, "\n")
	result := &ai.Classification{IsListing: true, Confidence: 1, Raw: "{}"}
	result.Attributes.Title = title
	return result, nil
}

// Rerank returns the identity order truncated to five candidates.
func (m *MockClassifier) Rerank(ctx context.Context, query string, candidates []ai.Candidate) ([]int, error) {
	m.rerankCalls.Add(1)

	if m.RerankFunc != nil {
		return m.RerankFunc(ctx, query, candidates)
	}

	n := min(5, len(candidates))
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return indices, nil
}

// ClassifyCallCount returns the number of ClassifyAndExtract calls.
func (m *MockClassifier) ClassifyCallCount() int {
	return int(m.classifyCalls.Load())
}

// RerankCallCount returns the number of Rerank calls.
func (m *MockClassifier) RerankCallCount() int {
	return int(m.rerankCalls.Load())
}

// Reset clears the call counts and custom functions.
func (m *MockClassifier) Reset() {
	m.classifyCalls.Store(0)
	m.rerankCalls.Store(0)
	m.ClassifyFunc = nil
	m.RerankFunc = nil
}
