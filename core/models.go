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
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// Listing IDs are derived from the (source, message) dedup key.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ListingID returns the surrogate ID of the listing identified by
// (sourceID, messageID).
func ListingID(sourceID string, messageID int64) ID {
	return IDFromContent("(" + sourceID + "," + strconv.FormatInt(messageID, 10) + ")")
}

// Listing is one classified, embedded marketplace post.
type Listing struct {
	ID             ID
	SourceID       string // Normalized channel identifier, e.g. "@shop"
	MessageID      int64  // Message ID within the source
	RawText        string
	Embedding      []float32
	Attributes     Attributes
	Price          *float64 // Projection of Attributes.Price
	Currency       string   // Projection of Attributes.Currency
	DealScore      *float64 // Set after insert by the deal evaluator
	HasMedia       bool
	MessageLink    string
	Confidence     float64       // Classifier confidence, 0..1
	ProcessingTime time.Duration // Time spent classifying
	CreatedAt      time.Time     // Source-side timestamp
	IndexedAt      time.Time     // When the listing was stored
}

// Key returns the dedup key of the listing.
func (l *Listing) Key() string {
	return l.SourceID + ":" + strconv.FormatInt(l.MessageID, 10)
}

// Title returns the extracted title, or "?" when the classifier gave none.
func (l *Listing) Title() string {
	if l.Attributes.Title != "" {
		return l.Attributes.Title
	}
	return "?"
}

// NewListing builds a listing for a message and projects the attribute
// price and currency onto the scalar fields.
func NewListing(sourceID string, msg Message, attrs Attributes, embedding []float32) *Listing {
	l := &Listing{
		ID:          ListingID(sourceID, msg.ID),
		SourceID:    sourceID,
		MessageID:   msg.ID,
		RawText:     strings.TrimSpace(msg.Text),
		Embedding:   embedding,
		Attributes:  attrs,
		HasMedia:    msg.HasMedia,
		MessageLink: MessageLink(sourceID, msg.ID),
		CreatedAt:   msg.Date,
	}
	if attrs.Price != nil {
		p := *attrs.Price
		l.Price = &p
	}
	l.Currency = strings.ToUpper(strings.TrimSpace(attrs.Currency))
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	return l
}

// Message is one incoming post as delivered by a source connection.
type Message struct {
	ID           int64
	ChatID       int64  // Connection-level chat identifier
	ChatUsername string // Public username when known, without "@"
	Text         string
	Date         time.Time
	HasMedia     bool
}

// Neighbor is a listing returned by a nearest-neighbour query with its similarity.
type Neighbor struct {
	Listing    *Listing
	Similarity float32
}

// SourceStats tracks ingestion progress for one source.
type SourceStats struct {
	SourceID      string
	TotalIndexed  int64
	LastMessageID int64
	LastScrapedAt time.Time
}

// NormalizeSourceID turns "shop", "@shop" and "https://t.me/shop" into "@shop".
func NormalizeSourceID(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"https://t.me/", "http://t.me/", "t.me/"} {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.TrimSuffix(s, "/")
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, "@") {
		s = "@" + s
	}
	return s
}

// MessageLink returns the public link of a message.
func MessageLink(sourceID string, messageID int64) string {
	return fmt.Sprintf("https://t.me/%s/%d", strings.TrimPrefix(sourceID, "@"), messageID)
}
