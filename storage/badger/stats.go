package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/shaxb/tele-google/core"
	"github.com/shaxb/tele-google/storage"
)

// UpsertSourceStats increments the indexed count of sourceID and advances
// its last message ID, creating the record on first use.
func (s *Store) UpsertSourceStats(ctx context.Context, sourceID string, messageID int64) error {
	key := makeStatsKey(sourceID)
	return s.backend.Update(func(tx *badger.Txn) error {
		stats, err := readStats(tx, key)
		if errors.Is(err, storage.ErrNotFound) {
			stats = &core.SourceStats{SourceID: sourceID}
		} else if err != nil {
			return err
		}

		stats.TotalIndexed++
		stats.LastMessageID = max(stats.LastMessageID, messageID)
		stats.LastScrapedAt = time.Now().UTC()
		return tx.Set(key, storage.MarshalSourceStats(stats))
	})
}

// GetSourceStats returns the stats of one source.
func (s *Store) GetSourceStats(ctx context.Context, sourceID string) (*core.SourceStats, error) {
	var stats *core.SourceStats
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		stats, err = readStats(tx, makeStatsKey(sourceID))
		return err
	}, false)
	return stats, err
}

// ListSourceStats returns the stats of every source in key order.
func (s *Store) ListSourceStats(ctx context.Context) ([]*core.SourceStats, error) {
	results := []*core.SourceStats{}
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(statsPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				stats, err := storage.UnmarshalSourceStats(val)
				if err != nil {
					return err
				}
				results = append(results, stats)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	return results, err
}

func readStats(tx *badger.Txn, key []byte) (*core.SourceStats, error) {
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var stats *core.SourceStats
	err = item.Value(func(val []byte) error {
		var err error
		stats, err = storage.UnmarshalSourceStats(val)
		return err
	})
	return stats, err
}
