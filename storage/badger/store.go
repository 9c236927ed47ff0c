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


package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/shaxb/tele-google/core"
	"github.com/shaxb/tele-google/storage"
)

// Store implements storage.Store for BadgerDB.
type Store struct {
	backend *Backend
}

var _ storage.Store = (*Store)(nil)

// NewStore opens (or creates) a store in the directory at path.
func NewStore(path string) (storage.Store, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	return newStore(backend), nil
}

func newStore(backend *Backend) *Store {
	return &Store{backend: backend}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Exists reports whether the dedup key for (sourceID, messageID) is present.
func (s *Store) Exists(ctx context.Context, sourceID string, messageID int64) (bool, error) {
	found := false
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get(makeDedupKey(sourceID, messageID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	}, false)
	return found, err
}

// Insert stores the listing under its primary and dedup keys in one
// transaction. A present dedup key, or a commit that lost the race for it,
// yields storage.ErrDuplicateKey.
func (s *Store) Insert(ctx context.Context, listing *core.Listing) (*core.Listing, error) {
	if err := core.ValidateListing(listing); err != nil {
		return nil, err
	}

	listing.ID = core.ListingID(listing.SourceID, listing.MessageID)
	if listing.IndexedAt.IsZero() {
		listing.IndexedAt = time.Now().UTC()
	}

	dedupKey := makeDedupKey(listing.SourceID, listing.MessageID)
	err := s.backend.Update(func(tx *badger.Txn) error {
		_, err := tx.Get(dedupKey)
		if err == nil {
			return storage.ErrDuplicateKey
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := tx.Set(makeListingKey(listing.ID), storage.MarshalListing(listing)); err != nil {
			return err
		}
		return tx.Set(dedupKey, storage.MarshalID(listing.ID))
	})
	if errors.Is(err, badger.ErrConflict) {
		err = storage.ErrDuplicateKey
	}
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: %s", storage.ErrDuplicateKey, listing.Key())
		}
		return nil, err
	}
	return listing, nil
}

// Get retrieves a single listing by ID.
func (s *Store) Get(ctx context.Context, id core.ID) (*core.Listing, error) {
	var listing *core.Listing
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		listing, err = readListing(tx, id)
		return err
	}, false)
	return listing, err
}

// UpdateDealScore rewrites the listing with a new deal score.
func (s *Store) UpdateDealScore(ctx context.Context, id core.ID, score float64) error {
	return s.backend.Update(func(tx *badger.Txn) error {
		listing, err := readListing(tx, id)
		if err != nil {
			return err
		}
		listing.DealScore = &score
		return tx.Set(makeListingKey(id), storage.MarshalListing(listing))
	})
}

// Nearest delegates to the backend scan.
func (s *Store) Nearest(ctx context.Context, vector []float32, k int) ([]core.Neighbor, error) {
	return s.backend.Nearest(ctx, vector, k)
}

// Count returns the number of stored listings.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(listingPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			n++
		}
		return nil
	}, false)
	return n, err
}

// CountWithPrice returns the number of listings with a positive price.
func (s *Store) CountWithPrice(ctx context.Context) (int64, error) {
	var n int64
	err := s.backend.scanListings(ctx, func(l *core.Listing) error {
		if l.Price != nil && *l.Price > 0 {
			n++
		}
		return nil
	})
	return n, err
}

// readListing reads a listing from the transaction.
func readListing(tx *badger.Txn, id core.ID) (*core.Listing, error) {
	item, err := tx.Get(makeListingKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var listing *core.Listing
	err = item.Value(func(val []byte) error {
		var err error
		listing, err = storage.UnmarshalListing(val)
		return err
	})
	return listing, err
}
