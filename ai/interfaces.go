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


package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Classifier decides whether text is a marketplace listing and reorders
// search candidates by relevance.
// Implementations must be thread-safe for concurrent use.
type Classifier interface {
	// ClassifyAndExtract reports whether text is a listing and extracts its
	// attributes. A nil Classification with a nil error means the model gave
	// no usable answer and the text should be treated as not a listing.
	ClassifyAndExtract(ctx context.Context, text string) (*Classification, error)

	// Rerank returns indices into candidates ordered by relevance to query.
	// At most five indices are expected; the result may be empty and callers
	// must tolerate out-of-range or repeated indices.
	Rerank(ctx context.Context, query string, candidates []Candidate) ([]int, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Classifier returns the listing classification and reranking service.
	Classifier() Classifier

	// Close releases resources held by the provider and its services.
	Close() error
}
