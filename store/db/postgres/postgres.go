package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/docsense/internal/profile"
	"github.com/hrygo/docsense/store"
)

// DB is the native vector backend. Distance computation and top-K selection
// are delegated to pgvector; the similarity definition is 1 - cosine_distance.
type DB struct {
	db      *sql.DB
	profile *profile.Profile
	dims    int
}

func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(2 * time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
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

// Migrate creates the schema. The embedding column is typed to the configured
// dimensionality; pgvector rejects vectors of any other length.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS owner (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			created_ts BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS document (
			id SERIAL PRIMARY KEY,
			uid TEXT NOT NULL UNIQUE,
			owner_id INTEGER NOT NULL REFERENCES owner(id),
			filename TEXT NOT NULL,
			mime_type TEXT NOT NULL,
			source_kind TEXT NOT NULL,
			blob_key TEXT NOT NULL,
			size_bytes BIGINT NOT NULL,
			content_length INTEGER NOT NULL,
			created_ts BIGINT NOT NULL,
			processed BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunk (
			id SERIAL PRIMARY KEY,
			document_id INTEGER NOT NULL REFERENCES document(id) ON DELETE CASCADE,
			ordinal INTEGER NOT NULL,
			text TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			char_count INTEGER NOT NULL,
			word_count INTEGER NOT NULL,
			degraded BOOLEAN NOT NULL DEFAULT FALSE,
			UNIQUE (document_id, ordinal)
		)`, d.dims),
		`CREATE INDEX IF NOT EXISTS idx_document_owner_id ON document(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chunk_document_id ON chunk(document_id)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "migration failed: %s", firstLine(stmt))
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i > 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

// placeholder returns the n-th placeholder for PostgreSQL ($1, $2, ...).
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// placeholders returns n placeholders starting at $1.
func placeholders(n int) string {
	list := []string{}
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}
