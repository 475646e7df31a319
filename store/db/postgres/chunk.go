package postgres

import (
	"context"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	apperr "github.com/hrygo/docsense/internal/errors"
	"github.com/hrygo/docsense/store"
)

const chunkFields = `c.id, c.document_id, c.ordinal, c.text, c.embedding, c.char_count, c.word_count, c.degraded`

func scanChunk(scan func(...any) error) (*store.Chunk, error) {
	var chunk store.Chunk
	var vector pgvector.Vector
	err := scan(
		&chunk.ID,
		&chunk.DocumentID,
		&chunk.Ordinal,
		&chunk.Text,
		&vector,
		&chunk.CharCount,
		&chunk.WordCount,
		&chunk.Degraded,
	)
	if err != nil {
		return nil, err
	}
	chunk.Embedding = vector.Slice()
	return &chunk, nil
}

// ListChunks lists chunks.
func (d *DB) ListChunks(ctx context.Context, find *store.FindChunk) ([]*store.Chunk, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "c.id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.DocumentID != nil {
		where, args = append(where, "c.document_id = "+placeholder(len(args)+1)), append(args, *find.DocumentID)
	}
	if find.OwnerID != nil {
		where, args = append(where, "d.owner_id = "+placeholder(len(args)+1)), append(args, *find.OwnerID)
	}
	if find.Degraded != nil {
		where, args = append(where, "c.degraded = "+placeholder(len(args)+1)), append(args, *find.Degraded)
	}

	query := `
		SELECT ` + chunkFields + `
		FROM chunk c
		INNER JOIN document d ON d.id = c.document_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY c.document_id ASC, c.ordinal ASC
	`
	if find.Limit != nil {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list chunks")
	}
	defer rows.Close()

	list := []*store.Chunk{}
	for rows.Next() {
		chunk, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan chunk")
		}
		list = append(list, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// UpdateChunkEmbedding replaces the vector of a single chunk.
func (d *DB) UpdateChunkEmbedding(ctx context.Context, id int32, embedding []float32, degraded bool) error {
	if len(embedding) != d.dims {
		return apperr.DimensionMismatch(d.dims, len(embedding))
	}
	stmt := `UPDATE chunk SET embedding = ` + placeholder(1) + `, degraded = ` + placeholder(2) + ` WHERE id = ` + placeholder(3)
	result, err := d.db.ExecContext(ctx, stmt, pgvector.NewVector(embedding), degraded, id)
	if err != nil {
		return apperr.PersistenceFailed("failed to update chunk embedding", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperr.NotFound("chunk not found")
	}
	return nil
}

// VectorSearch performs similarity search using pgvector.
// The <=> operator computes cosine distance (1 - cosine_similarity), so
// ordering by distance ascending yields most similar first. Secondary keys
// keep ties deterministic and identical to the in-process fallback backend.
func (d *DB) VectorSearch(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.ChunkWithScore, error) {
	if len(opts.Vector) != d.dims {
		return nil, apperr.DimensionMismatch(d.dims, len(opts.Vector))
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	where, args := []string{}, []any{}
	vector := pgvector.NewVector(opts.Vector)
	args = append(args, vector)
	scoreExpr := `1 - (c.embedding <=> ` + placeholder(1) + `)`

	where, args = append(where, "d.owner_id = "+placeholder(len(args)+1)), append(args, opts.OwnerID)
	if opts.SourceKind != nil {
		where, args = append(where, "d.source_kind = "+placeholder(len(args)+1)), append(args, string(*opts.SourceKind))
	}

	orderVectorPos := len(args) + 1
	args = append(args, vector)
	limitPos := len(args) + 1
	args = append(args, limit)

	query := `
		SELECT ` + chunkFields + `,
			d.id, d.uid, d.owner_id, d.filename, d.mime_type, d.source_kind, d.blob_key, d.size_bytes, d.content_length, d.created_ts, d.processed,
			` + scoreExpr + ` AS score
		FROM chunk c
		INNER JOIN document d ON d.id = c.document_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY c.embedding <=> ` + placeholder(orderVectorPos) + ` ASC, d.id ASC, c.ordinal ASC, c.id ASC
		LIMIT ` + placeholder(limitPos)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to vector search")
	}
	defer rows.Close()

	results := []*store.ChunkWithScore{}
	for rows.Next() {
		var chunk store.Chunk
		var vec pgvector.Vector
		var doc store.Document
		var kind string
		var score float32
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.Ordinal,
			&chunk.Text,
			&vec,
			&chunk.CharCount,
			&chunk.WordCount,
			&chunk.Degraded,
			&doc.ID,
			&doc.UID,
			&doc.OwnerID,
			&doc.Filename,
			&doc.MimeType,
			&kind,
			&doc.BlobKey,
			&doc.SizeBytes,
			&doc.ContentLength,
			&doc.CreatedTs,
			&doc.Processed,
			&score,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan vector search result")
		}
		chunk.Embedding = vec.Slice()
		doc.SourceKind = store.SourceKind(kind)
		results = append(results, &store.ChunkWithScore{
			Chunk:    &chunk,
			Document: &doc,
			Score:    score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// GetOwnerStats aggregates per-owner storage counters.
func (d *DB) GetOwnerStats(ctx context.Context, ownerID int32) (*store.OwnerStats, error) {
	stats := &store.OwnerStats{ByKind: map[store.SourceKind]int{}}

	query := `
		SELECT source_kind, COUNT(*), COALESCE(SUM(size_bytes), 0)
		FROM document
		WHERE owner_id = ` + placeholder(1) + `
		GROUP BY source_kind
	`
	rows, err := d.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get owner stats")
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var docCount int
		var bytes int64
		if err := rows.Scan(&kind, &docCount, &bytes); err != nil {
			return nil, errors.Wrap(err, "failed to scan owner stats")
		}
		stats.DocumentCount += docCount
		stats.TotalBytes += bytes
		stats.ByKind[store.SourceKind(kind)] += docCount
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	chunkQuery := `
		SELECT COUNT(*)
		FROM chunk c
		INNER JOIN document d ON d.id = c.document_id
		WHERE d.owner_id = ` + placeholder(1)
	if err := d.db.QueryRowContext(ctx, chunkQuery, ownerID).Scan(&stats.ChunkCount); err != nil {
		return nil, errors.Wrap(err, "failed to count chunks")
	}
	return stats, nil
}
