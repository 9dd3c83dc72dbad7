// Package fitcache persists completed fits in a SQLite database keyed by a
// caller-supplied string. A readable entry short-circuits the whole
// pipeline; unreadable entries count as misses and are purged so the key
// can be repopulated. Entries are never overwritten implicitly.
package fitcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"fitgrid/internal/ctxlog"
	"fitgrid/internal/posterior"
)

// ErrExists is returned by Store when the key already holds a fit.
var ErrExists = errors.New("fit already stored under this key")

const schema = `CREATE TABLE IF NOT EXISTS fits (
	key        TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	payload    BLOB NOT NULL
);`

// Store is a durable fit store backed by a single SQLite file.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?cache=shared", path))
	if err != nil {
		return nil, fmt.Errorf("opening fit cache: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating fit cache: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the on-disk location of the store.
func (s *Store) Path() string {
	return s.path
}

// Load returns the fit stored under key, or nil when the key is absent. A
// present but malformed payload is treated as a miss: it is logged, purged
// so a later Store can repopulate the key, and nil is returned.
func (s *Store) Load(ctx context.Context, key string) (*posterior.FitResult, error) {
	logger := ctxlog.FromContext(ctx)

	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM fits WHERE key=?`, key).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading fit cache: %w", err)
	}

	fit, err := posterior.DecodeFit(payload)
	if err != nil {
		logger.Warn("Cached fit is unreadable; treating as a miss and purging the entry.", "key", key, "error", err)
		if derr := s.Delete(ctx, key); derr != nil {
			return nil, fmt.Errorf("purging unreadable fit: %w", derr)
		}
		return nil, nil
	}
	return fit, nil
}

// Store persists a fit under key. An existing entry is never overwritten;
// the caller must Delete it out of band to force recomputation.
func (s *Store) Store(ctx context.Context, key string, fit *posterior.FitResult) error {
	payload, err := fit.Encode()
	if err != nil {
		return fmt.Errorf("encoding fit: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO fits(key, created_at, payload) VALUES (?,?,?) ON CONFLICT(key) DO NOTHING`,
		key, time.Now().UTC().Format(time.RFC3339), payload)
	if err != nil {
		return fmt.Errorf("writing fit cache: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrExists
	}
	return nil
}

// Delete removes the entry under key, if any.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM fits WHERE key=?`, key)
	return err
}
