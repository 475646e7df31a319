package store

import "context"

// Chunk is a bounded, possibly-overlapping text segment derived from a
// document. It is the unit of embedding and retrieval. Vectors never outlive
// their chunk.
type Chunk struct {
	ID         int32
	DocumentID int32
	// Ordinal is the 0-based position within the document, contiguous with
	// no gaps.
	Ordinal int32
	Text    string
	// Embedding has fixed dimensionality per embedding model.
	Embedding []float32

	// Derived metadata
	CharCount int
	WordCount int
	// Degraded marks chunks whose embedding came from the deterministic
	// fallback instead of the provider.
	Degraded bool
}

// FindChunk is the find condition for chunks.
type FindChunk struct {
	ID         *int32
	DocumentID *int32
	OwnerID    *int32
	Degraded   *bool
	Limit      *int
}

// ChunkWithScore is a scored candidate produced by a vector search, before
// threshold filtering and final ordering.
type ChunkWithScore struct {
	Chunk    *Chunk
	Document *Document
	Score    float32
}

// VectorSearchOptions represents the options for vector search.
// OwnerID is required: a search never scans another owner's chunks.
type VectorSearchOptions struct {
	OwnerID    int32
	Vector     []float32
	SourceKind *SourceKind
	// Limit caps the candidates returned by the backend, default 50.
	Limit int
}

// ListChunks lists chunks matching the find condition.
func (s *Store) ListChunks(ctx context.Context, find *FindChunk) ([]*Chunk, error) {
	return s.driver.ListChunks(ctx, find)
}

// UpdateChunkEmbedding replaces a chunk's vector, typically when a degraded
// chunk is re-embedded by the background runner.
func (s *Store) UpdateChunkEmbedding(ctx context.Context, id int32, embedding []float32, degraded bool) error {
	return s.driver.UpdateChunkEmbedding(ctx, id, embedding, degraded)
}

// VectorSearch returns scored chunk candidates for the owner. Both backends
// compute the same similarity (cosine); only where the arithmetic runs
// differs.
func (s *Store) VectorSearch(ctx context.Context, opts *VectorSearchOptions) ([]*ChunkWithScore, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	return s.driver.VectorSearch(ctx, opts)
}
