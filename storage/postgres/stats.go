package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/shaxb/tele-google/core"
	"github.com/shaxb/tele-google/storage"
)

// UpsertSourceStats inserts the source row or increments its counters.
func (s *Store) UpsertSourceStats(ctx context.Context, sourceID string, messageID int64) error {
	now := time.Now().UTC()
	query, args, err := s.psql.Insert("monitored_channels").
		Columns("username", "total_indexed", "last_message_id", "last_scraped_at").
		Values(sourceID, 1, messageID, now).
		Suffix(`ON CONFLICT (username) DO UPDATE SET
			total_indexed = monitored_channels.total_indexed + 1,
			last_message_id = GREATEST(monitored_channels.last_message_id, EXCLUDED.last_message_id),
			last_scraped_at = EXCLUDED.last_scraped_at`).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres: upsert source stats %s: %w", sourceID, err)
	}
	return nil
}

var statsColumns = []string{"username", "total_indexed", "last_message_id", "last_scraped_at"}

// GetSourceStats returns the stats row of one source.
func (s *Store) GetSourceStats(ctx context.Context, sourceID string) (*core.SourceStats, error) {
	query, args, err := s.psql.Select(statsColumns...).
		From("monitored_channels").
		Where(sq.Eq{"username": sourceID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	stats, err := scanStats(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get source stats %s: %w", sourceID, err)
	}
	return stats, nil
}

// ListSourceStats returns every stats row ordered by source.
func (s *Store) ListSourceStats(ctx context.Context) ([]*core.SourceStats, error) {
	query, args, err := s.psql.Select(statsColumns...).
		From("monitored_channels").
		OrderBy("username").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list source stats: %w", err)
	}
	defer rows.Close()

	results := []*core.SourceStats{}
	for rows.Next() {
		stats, err := scanStats(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, stats)
	}
	return results, rows.Err()
}

func scanStats(row pgx.Row) (*core.SourceStats, error) {
	var (
		stats   core.SourceStats
		scraped *time.Time
	)
	if err := row.Scan(&stats.SourceID, &stats.TotalIndexed, &stats.LastMessageID, &scraped); err != nil {
		return nil, err
	}
	if scraped != nil {
		stats.LastScrapedAt = scraped.UTC()
	}
	return &stats, nil
}
