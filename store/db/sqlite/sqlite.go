package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/docsense/internal/profile"
	"github.com/hrygo/docsense/store"
)

// DB is the fallback vector backend. SQLite has no vector index, so
// embeddings are stored as opaque JSON arrays and similarity search walks
// every chunk of the requesting owner, computing cosine similarity
// in-process. Ranking semantics match the postgres backend exactly.
type DB struct {
	db      *sql.DB
	profile *profile.Profile
	dims    int
}

func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	// "modernc.org/sqlite" is a pure-Go driver registered as "sqlite".
	db, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
	}

	return &DB{
		db:      db,
		profile: profile,
		dims:    profile.EmbeddingDims,
	}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate creates the schema. Embeddings live in a TEXT column as JSON.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS owner (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			created_ts BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS document (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uid TEXT NOT NULL UNIQUE,
			owner_id INTEGER NOT NULL REFERENCES owner(id),
			filename TEXT NOT NULL,
			mime_type TEXT NOT NULL,
			source_kind TEXT NOT NULL,
			blob_key TEXT NOT NULL,
			size_bytes BIGINT NOT NULL,
			content_length INTEGER NOT NULL,
			created_ts BIGINT NOT NULL,
			processed BOOLEAN NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS chunk (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			document_id INTEGER NOT NULL REFERENCES document(id) ON DELETE CASCADE,
			ordinal INTEGER NOT NULL,
			text TEXT NOT NULL,
			embedding TEXT NOT NULL,
			char_count INTEGER NOT NULL,
			word_count INTEGER NOT NULL,
			degraded BOOLEAN NOT NULL DEFAULT 0,
			UNIQUE (document_id, ordinal)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_document_owner_id ON document(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chunk_document_id ON chunk(document_id)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "migration failed")
		}
	}
	return nil
}

// placeholder returns a placeholder for SQLite (uses ?).
func placeholder(n int) string {
	return "?"
}

// placeholders returns n placeholders for SQLite.
func placeholders(n int) string {
	list := []string{}
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}

func marshalVector(v []float32) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal embedding")
	}
	return string(b), nil
}

func unmarshalVector(s string) ([]float32, error) {
	var v []float32
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal embedding")
	}
	return v, nil
}
