package storage

import (
	"context"

	"github.com/shaxb/tele-google/core"
)

// ListingStore persists listings keyed by (source, message).
// Implementations must be thread-safe and support concurrent access.
type ListingStore interface {
	// Exists reports whether a listing for (sourceID, messageID) is stored.
	// It is a cheap pre-filter; Insert is the authority on uniqueness.
	Exists(ctx context.Context, sourceID string, messageID int64) (bool, error)

	// Insert stores a new listing and returns it with its ID and IndexedAt set.
	// Returns ErrDuplicateKey when (SourceID, MessageID) is already stored,
	// including when a concurrent insert won the race.
	Insert(ctx context.Context, listing *core.Listing) (*core.Listing, error)

	// Nearest returns up to k listings ordered by cosine similarity to vector,
	// highest first.
	Nearest(ctx context.Context, vector []float32, k int) ([]core.Neighbor, error)

	// UpdateDealScore sets the deal score of a stored listing.
	// Returns ErrNotFound if the listing doesn't exist.
	UpdateDealScore(ctx context.Context, id core.ID, score float64) error

	// Get retrieves a single listing by ID.
	// Returns ErrNotFound if the listing doesn't exist.
	Get(ctx context.Context, id core.ID) (*core.Listing, error)

	// Count returns the number of stored listings.
	Count(ctx context.Context) (int64, error)

	// CountWithPrice returns the number of stored listings that carry a price.
	CountWithPrice(ctx context.Context) (int64, error)

	// Close closes the store and releases resources.
	Close() error
}

// SourceStatsStore tracks per-source ingestion progress.
type SourceStatsStore interface {
	// UpsertSourceStats records one more indexed message for sourceID,
	// creating the row if needed. LastMessageID only moves forward.
	UpsertSourceStats(ctx context.Context, sourceID string, messageID int64) error

	// GetSourceStats returns the stats of one source.
	// Returns ErrNotFound if nothing was recorded for it.
	GetSourceStats(ctx context.Context, sourceID string) (*core.SourceStats, error)

	// ListSourceStats returns the stats of every source ordered by source ID.
	ListSourceStats(ctx context.Context) ([]*core.SourceStats, error)
}

// Store is implemented by backends that hold both listings and source stats.
type Store interface {
	ListingStore
	SourceStatsStore
}
