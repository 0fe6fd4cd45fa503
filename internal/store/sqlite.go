package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"reelscout/internal/media"
)

const schema = `
CREATE TABLE IF NOT EXISTS failures (
	media_key  TEXT NOT NULL,
	source_id  TEXT NOT NULL,
	embed_id   TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	PRIMARY KEY (media_key, source_id, embed_id)
);
CREATE TABLE IF NOT EXISTS last_successful (
	media_key  TEXT PRIMARY KEY,
	source_id  TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);`

// SQLite is the default on-disk backend.
type SQLite struct {
	db *sql.DB
}

var _ Backend = (*SQLite)(nil)

// OpenSQLite opens (and migrates) the database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, errors.Wrap(err, "creating data dir")
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening sqlite")
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrating sqlite")
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Failures(ctx context.Context, key media.Key) (Failures, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT source_id, embed_id FROM failures
WHERE media_key = ?
ORDER BY created_at, rowid`, string(key))
	if err != nil {
		return Failures{}, errors.Wrap(err, "querying failures")
	}
	defer rows.Close()

	f := Failures{Embeds: map[string][]string{}}
	for rows.Next() {
		var source, embed string
		if err := rows.Scan(&source, &embed); err != nil {
			return Failures{}, errors.Wrap(err, "scanning failure")
		}
		if embed == "" {
			f.Sources = append(f.Sources, source)
		} else {
			f.Embeds[source] = append(f.Embeds[source], embed)
		}
	}
	return f, errors.Wrap(rows.Err(), "reading failures")
}

func (s *SQLite) AddFailure(ctx context.Context, key media.Key, sourceID, embedID string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO failures (media_key, source_id, embed_id, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (media_key, source_id, embed_id) DO NOTHING`,
		string(key), sourceID, embedID, time.Now().UnixNano())
	return errors.Wrap(err, "recording failure")
}

func (s *SQLite) ClearFailures(ctx context.Context, key media.Key) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM failures WHERE media_key = ?`, string(key))
	return errors.Wrap(err, "clearing failures")
}

func (s *SQLite) ListFailures(ctx context.Context) (map[media.Key]Failures, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT media_key FROM failures ORDER BY media_key`)
	if err != nil {
		return nil, errors.Wrap(err, "listing failures")
	}
	var keys []media.Key
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scanning media key")
		}
		keys = append(keys, media.Key(k))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "reading media keys")
	}

	out := make(map[media.Key]Failures, len(keys))
	for _, k := range keys {
		f, err := s.Failures(ctx, k)
		if err != nil {
			return nil, err
		}
		out[k] = f
	}
	return out, nil
}

func (s *SQLite) LastSuccessful(ctx context.Context, key media.Key) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT source_id FROM last_successful WHERE media_key = ?`, string(key)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, errors.Wrap(err, "querying last successful source")
}

func (s *SQLite) SetLastSuccessful(ctx context.Context, key media.Key, sourceID string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO last_successful (media_key, source_id, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (media_key) DO UPDATE
SET source_id = excluded.source_id, updated_at = excluded.updated_at`,
		string(key), sourceID, time.Now().UnixNano())
	return errors.Wrap(err, "recording last successful source")
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
