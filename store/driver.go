package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that a store database driver should implement.
//
// Two implementations exist: postgres (native pgvector similarity search)
// and sqlite (vectors stored opaquely, similarity computed in-process).
// Both must produce identical ranking semantics; the choice is a
// performance/availability decision, never a behavioral one.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	Migrate(ctx context.Context) error

	// Owner model related methods.
	GetOrCreateOwner(ctx context.Context, name string) (*Owner, error)
	GetOwner(ctx context.Context, find *FindOwner) (*Owner, error)

	// Document model related methods. Creation and deletion are atomic with
	// the document's chunks.
	CreateDocumentWithChunks(ctx context.Context, create *Document, chunks []*Chunk) (*Document, error)
	ListDocuments(ctx context.Context, find *FindDocument) ([]*Document, error)
	DeleteDocument(ctx context.Context, delete *DeleteDocument) error

	// Chunk model related methods.
	ListChunks(ctx context.Context, find *FindChunk) ([]*Chunk, error)
	UpdateChunkEmbedding(ctx context.Context, id int32, embedding []float32, degraded bool) error

	// VectorSearch returns scored candidates for the owner, ordered by
	// score descending. Threshold filtering and final tie-breaking happen
	// in the retrieval layer.
	VectorSearch(ctx context.Context, opts *VectorSearchOptions) ([]*ChunkWithScore, error)

	// GetOwnerStats aggregates per-owner storage counters.
	GetOwnerStats(ctx context.Context, ownerID int32) (*OwnerStats, error)
}
