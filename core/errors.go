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


package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidListing indicates a Listing failed validation.
	ErrInvalidListing = errors.New("invalid listing")

	// ErrEmptyContent indicates the raw text is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrMissingEmbedding indicates a listing has no embedding vector.
	ErrMissingEmbedding = errors.New("embedding cannot be empty")

	// ErrEmptySource indicates the source identifier is empty.
	ErrEmptySource = errors.New("source cannot be empty")

	// ErrInvalidMessageID indicates a non-positive message ID.
	ErrInvalidMessageID = errors.New("message id must be positive")
)
