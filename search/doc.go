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


// Package search answers free-text queries over stored listings.
//
// The Engine type runs a two-stage search:
//   - Vector retrieval of the closest candidates by cosine similarity
//   - Reranking of those candidates by the classifier
//
// When the reranker fails, the closest candidates are returned in
// similarity order so a query never fails because of the model.
//
// Valuate uses the same retrieval stage to estimate a market price from
// the prices of sufficiently similar listings.
package search
