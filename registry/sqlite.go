package registry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sources (
	id       TEXT PRIMARY KEY,
	added_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS registry_meta (
	key   TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);
INSERT OR IGNORE INTO registry_meta (key, value) VALUES ('version', 0);
`

// SQLiteRegistry keeps sources in a SQLite table. Every Add or Remove that
// changes the table bumps a version row; the change token is the version
// together with the row count.
type SQLiteRegistry struct {
	db     *sql.DB
	logger *slog.Logger

	mu     sync.Mutex
	token  string
	loaded bool
}

var _ Editor = (*SQLiteRegistry)(nil)

// OpenSQLiteRegistry opens (creating if needed) the registry database at dsn.
func OpenSQLiteRegistry(ctx context.Context, dsn string, opts ...Option) (*SQLiteRegistry, error) {
	s := applyOptions("sqlite-registry", opts)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply registry schema: %w", err)
	}
	return &SQLiteRegistry{db: db, logger: s.logger}, nil
}

// Close closes the database.
func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}

// Load returns every source ordered by insertion time.
func (r *SQLiteRegistry) Load(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, `SELECT id FROM sources ORDER BY added_at, id`)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	token, err := r.currentToken(ctx)
	if err != nil {
		return nil, err
	}
	r.token = token
	r.loaded = true
	return normalizeAll(ids, r.logger), nil
}

// Changed compares the stored version with the one seen by the last Load.
func (r *SQLiteRegistry) Changed(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loaded {
		return true, nil
	}
	token, err := r.currentToken(ctx)
	if err != nil {
		return false, err
	}
	return token != r.token, nil
}

// Add inserts id if it isn't registered yet.
func (r *SQLiteRegistry) Add(ctx context.Context, id string) (bool, error) {
	normalized, err := NormalizeID(id)
	if err != nil {
		return false, err
	}
	return r.mutate(ctx,
		`INSERT OR IGNORE INTO sources (id, added_at) VALUES (?, ?)`,
		normalized, time.Now().UTC().Format(time.RFC3339Nano))
}

// Remove deletes id.
func (r *SQLiteRegistry) Remove(ctx context.Context, id string) (bool, error) {
	normalized, err := NormalizeID(id)
	if err != nil {
		return false, err
	}
	return r.mutate(ctx, `DELETE FROM sources WHERE id = ?`, normalized)
}

// mutate runs stmt and bumps the version when it touched a row.
func (r *SQLiteRegistry) mutate(ctx context.Context, stmt string, args ...any) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("update sources: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE registry_meta SET value = value + 1 WHERE key = 'version'`); err != nil {
		return false, fmt.Errorf("bump registry version: %w", err)
	}
	return true, tx.Commit()
}

func (r *SQLiteRegistry) currentToken(ctx context.Context) (string, error) {
	var count, version int64
	err := r.db.QueryRowContext(ctx,
		`SELECT (SELECT count(*) FROM sources), value FROM registry_meta WHERE key = 'version'`,
	).Scan(&count, &version)
	if err != nil {
		return "", fmt.Errorf("read registry version: %w", err)
	}
	return fmt.Sprintf("%d:%d", count, version), nil
}
