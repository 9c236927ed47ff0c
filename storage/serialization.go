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


package storage

import (
	"fmt"

	"github.com/shaxb/tele-google/core"
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, core.IDMUS.Size(id))
	core.IDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := core.IDMUS.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return id, nil
}

// MarshalListing serializes a Listing to bytes.
func MarshalListing(listing *core.Listing) []byte {
	buf := make([]byte, core.ListingMUS.Size(*listing))
	core.ListingMUS.Marshal(*listing, buf)
	return buf
}

// UnmarshalListing deserializes a Listing from bytes.
func UnmarshalListing(data []byte) (*core.Listing, error) {
	listing, _, err := core.ListingMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &listing, nil
}

// MarshalSourceStats serializes SourceStats to bytes.
func MarshalSourceStats(stats *core.SourceStats) []byte {
	buf := make([]byte, core.SourceStatsMUS.Size(*stats))
	core.SourceStatsMUS.Marshal(*stats, buf)
	return buf
}

// UnmarshalSourceStats deserializes SourceStats from bytes.
func UnmarshalSourceStats(data []byte) (*core.SourceStats, error) {
	stats, _, err := core.SourceStatsMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &stats, nil
}
