// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package mock

import "github.com/shaxb/tele-google/ai"

// MockProvider is a test double for ai.AIProvider.
// It aggregates mock embedder and classifier instances.
type MockProvider struct {
	embedder   *MockEmbedder
	classifier *MockClassifier
	closed     bool
}

// NewMockProvider creates a new mock provider with default mock services.
//
// Returns *MockProvider so tests can reach the concrete services through
// GetMockEmbedder and GetMockClassifier.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		embedder:   NewMockEmbedder(),
		classifier: NewMockClassifier(),
	}
}

// NewMockProviderWithServices creates a mock provider with custom mock services.
// This allows full control over the behavior of each service.
func NewMockProviderWithServices(embedder *MockEmbedder, classifier *MockClassifier) *MockProvider {
	return &MockProvider{
		embedder:   embedder,
		classifier: classifier,
	}
}

// Embedder returns the mock embedder.
func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

// Classifier returns the mock classifier.
func (p *MockProvider) Classifier() ai.Classifier {
	return p.classifier
}

// Close marks the provider closed.
func (p *MockProvider) Close() error {
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *MockProvider) Closed() bool {
	return p.closed
}

// GetMockEmbedder returns the underlying mock embedder for test assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}

// GetMockClassifier returns the underlying mock classifier for test assertions.
func (p *MockProvider) GetMockClassifier() *MockClassifier {
	return p.classifier
}
