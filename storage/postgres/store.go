// Package postgres implements the listing store on PostgreSQL with the
// pgvector extension providing nearest-neighbour search.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaxb/tele-google/core"
	"github.com/shaxb/tele-google/storage"
)

// uniqueViolation is the SQLSTATE of a unique constraint violation.
const uniqueViolation = "23505"

// Pool is the subset of pgxpool.Pool used by the store.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// Store implements storage.Store on PostgreSQL.
type Store struct {
	pool Pool
	psql sq.StatementBuilderType
}

var _ storage.Store = (*Store)(nil)

// NewStore connects to PostgreSQL, verifies the connection and applies the
// schema migration.
func NewStore(ctx context.Context, connString string, poolCfg *PoolConfig) (storage.Store, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	maxConns, minConns := int32(10), int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := newStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func newStore(pool Pool) *Store {
	return &Store{
		pool: pool,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

const migration = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS listings (
	id                 BIGINT PRIMARY KEY,
	source_channel     TEXT NOT NULL,
	source_message_id  BIGINT NOT NULL,
	raw_text           TEXT NOT NULL,
	embedding          vector NOT NULL,
	attributes         JSONB NOT NULL DEFAULT '{}',
	price              DOUBLE PRECISION,
	currency           TEXT NOT NULL DEFAULT '',
	deal_score         DOUBLE PRECISION,
	has_media          BOOLEAN NOT NULL DEFAULT false,
	message_link       TEXT NOT NULL DEFAULT '',
	confidence         DOUBLE PRECISION NOT NULL DEFAULT 0,
	processing_time_ms BIGINT NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL,
	indexed_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT uq_listings_source UNIQUE (source_channel, source_message_id)
);

CREATE INDEX IF NOT EXISTS idx_listings_price ON listings(price) WHERE price IS NOT NULL;

CREATE TABLE IF NOT EXISTS monitored_channels (
	username        TEXT PRIMARY KEY,
	total_indexed   BIGINT NOT NULL DEFAULT 0,
	last_message_id BIGINT NOT NULL DEFAULT 0,
	last_scraped_at TIMESTAMPTZ
);
`

// Migrate creates the schema if it doesn't exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, migration); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Exists reports whether a listing for (sourceID, messageID) is stored.
func (s *Store) Exists(ctx context.Context, sourceID string, messageID int64) (bool, error) {
	query, args, err := s.psql.Select("1").From("listings").
		Where(sq.Eq{"source_channel": sourceID, "source_message_id": messageID}).
		Limit(1).ToSql()
	if err != nil {
		return false, err
	}

	var one int
	err = s.pool.QueryRow(ctx, query, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("postgres: exists: %w", err)
	}
	return true, nil
}

// Insert stores a new listing. The unique constraint on
// (source_channel, source_message_id) is reported as storage.ErrDuplicateKey.
func (s *Store) Insert(ctx context.Context, listing *core.Listing) (*core.Listing, error) {
	if err := core.ValidateListing(listing); err != nil {
		return nil, err
	}
	listing.ID = core.ListingID(listing.SourceID, listing.MessageID)
	if listing.IndexedAt.IsZero() {
		listing.IndexedAt = time.Now().UTC()
	}

	attrs, err := json.Marshal(listing.Attributes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}

	query, args, err := s.psql.Insert("listings").
		Columns("id", "source_channel", "source_message_id", "raw_text", "embedding",
			"attributes", "price", "currency", "has_media", "message_link",
			"confidence", "processing_time_ms", "created_at", "indexed_at").
		Values(int64(listing.ID), listing.SourceID, listing.MessageID, listing.RawText,
			sq.Expr("?::vector", VectorLiteral(listing.Embedding)),
			attrs, listing.Price, listing.Currency, listing.HasMedia, listing.MessageLink,
			listing.Confidence, listing.ProcessingTime.Milliseconds(), listing.CreatedAt, listing.IndexedAt).
		ToSql()
	if err != nil {
		return nil, err
	}

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("%w: %s", storage.ErrDuplicateKey, listing.Key())
		}
		return nil, fmt.Errorf("postgres: insert listing: %w", err)
	}
	return listing, nil
}

// listingColumns are selected by Get and Nearest; Nearest leaves out the
// embedding.
var listingColumns = []string{
	"id", "source_channel", "source_message_id", "raw_text", "attributes",
	"price", "currency", "deal_score", "has_media", "message_link",
	"confidence", "processing_time_ms", "created_at", "indexed_at",
}

// Nearest orders listings by cosine distance to vector.
func (s *Store) Nearest(ctx context.Context, vector []float32, k int) ([]core.Neighbor, error) {
	if k <= 0 || len(vector) == 0 {
		return []core.Neighbor{}, nil
	}

	query, args, err := s.psql.Select(listingColumns...).
		Column(sq.Expr("1 - (embedding <=> ?::vector) AS similarity", VectorLiteral(vector))).
		From("listings").
		OrderBy("similarity DESC").
		Limit(uint64(k)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: nearest: %w", err)
	}
	defer rows.Close()

	results := []core.Neighbor{}
	for rows.Next() {
		var similarity float64
		l, err := scanListing(rows, &similarity)
		if err != nil {
			return nil, err
		}
		results = append(results, core.Neighbor{Listing: l, Similarity: float32(similarity)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: nearest: %w", err)
	}
	return results, nil
}

// Get retrieves a single listing including its embedding.
func (s *Store) Get(ctx context.Context, id core.ID) (*core.Listing, error) {
	query, args, err := s.psql.Select(listingColumns...).
		Column("embedding::text").
		From("listings").
		Where(sq.Eq{"id": int64(id)}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var embedding string
	l, err := scanListing(s.pool.QueryRow(ctx, query, args...), &embedding)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if l.Embedding, err = ParseVector(embedding); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	return l, nil
}

// UpdateDealScore sets deal_score on a stored listing.
func (s *Store) UpdateDealScore(ctx context.Context, id core.ID, score float64) error {
	query, args, err := s.psql.Update("listings").
		Set("deal_score", score).
		Where(sq.Eq{"id": int64(id)}).
		ToSql()
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: update deal score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Count returns the number of stored listings.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.count(ctx, nil)
}

// CountWithPrice returns the number of listings with a positive price.
func (s *Store) CountWithPrice(ctx context.Context) (int64, error) {
	return s.count(ctx, sq.Gt{"price": 0})
}

func (s *Store) count(ctx context.Context, where sq.Sqlizer) (int64, error) {
	b := s.psql.Select("count(*)").From("listings")
	if where != nil {
		b = b.Where(where)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}

	var n int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count: %w", err)
	}
	return n, nil
}

// scanListing scans listingColumns followed by one extra column into extra.
func scanListing(row pgx.Row, extra any) (*core.Listing, error) {
	var (
		l          core.Listing
		id         int64
		attrs      []byte
		processing int64
	)
	err := row.Scan(&id, &l.SourceID, &l.MessageID, &l.RawText, &attrs,
		&l.Price, &l.Currency, &l.DealScore, &l.HasMedia, &l.MessageLink,
		&l.Confidence, &processing, &l.CreatedAt, &l.IndexedAt, extra)
	if err != nil {
		return nil, err
	}

	l.ID = core.ID(id)
	l.ProcessingTime = time.Duration(processing) * time.Millisecond
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &l.Attributes); err != nil {
			return nil, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
		}
	}
	return &l, nil
}

// VectorLiteral formats v in pgvector text form, e.g. "[0.1,0.2]".
func VectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// ParseVector parses the pgvector text form.
func ParseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return []float32{}, nil
	}
	parts := strings.Split(s, ",")
	v := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, err
		}
		v[i] = float32(f)
	}
	return v, nil
}
