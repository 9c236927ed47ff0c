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

import (
	"fmt"
	"strings"
)

// ValidateListing validates a Listing before it is persisted.
//
// Validation rules:
//   - RawText must not be empty or whitespace-only
//   - Embedding must not be empty
//   - SourceID must not be empty
//   - MessageID must be positive
//
// NOT validated:
//   - DealScore (set later by the deal evaluator)
//   - Attributes (open-ended, provider defined)
func ValidateListing(listing *Listing) error {
	if listing == nil {
		return fmt.Errorf("%w: listing is nil", ErrInvalidListing)
	}

	if strings.TrimSpace(listing.RawText) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidListing, ErrEmptyContent)
	}

	if len(listing.Embedding) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidListing, ErrMissingEmbedding)
	}

	if listing.SourceID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidListing, ErrEmptySource)
	}

	if listing.MessageID <= 0 {
		return fmt.Errorf("%w: %w", ErrInvalidListing, ErrInvalidMessageID)
	}

	return nil
}
