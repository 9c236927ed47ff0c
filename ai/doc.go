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


// Package ai provides abstractions for the model services used by the
// ingestion pipeline and the retrieval engine.
//
// # Interfaces
//
//   - Embedder: turns text into a dense vector
//   - Classifier: decides whether a post is a listing, extracts its
//     attributes, and reranks search candidates
//   - AIProvider: aggregates both for convenient initialization
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible APIs through langchaingo
//   - ai/mock: test doubles with injectable behavior
//
// Public constructors in ai/openai return interface types; mock
// constructors return concrete types so tests can inspect call counts.
//
// # Usage Example
//
//	provider, err := openai.NewProvider(ai.NewConfig(ai.WithAPIKey(key)))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//	verdict, err := provider.Classifier().ClassifyAndExtract(ctx, "iPhone 13 128GB, $450")
//	vector, err := provider.Embedder().EmbedText(ctx, "iPhone 13 128GB, $450")
//
// Transport failures are retried inside the provider with RetryWithBackoff;
// callers never loop on model errors themselves.
package ai
