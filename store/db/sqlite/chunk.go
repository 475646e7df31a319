package sqlite

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	apperr "github.com/hrygo/docsense/internal/errors"
	"github.com/hrygo/docsense/internal/vector"
	"github.com/hrygo/docsense/store"
)

// ListChunks lists chunks.
func (d *DB) ListChunks(ctx context.Context, find *store.FindChunk) ([]*store.Chunk, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "c.id = ?"), append(args, *find.ID)
	}
	if find.DocumentID != nil {
		where, args = append(where, "c.document_id = ?"), append(args, *find.DocumentID)
	}
	if find.OwnerID != nil {
		where, args = append(where, "d.owner_id = ?"), append(args, *find.OwnerID)
	}
	if find.Degraded != nil {
		where, args = append(where, "c.degraded = ?"), append(args, *find.Degraded)
	}

	query := `
		SELECT c.id, c.document_id, c.ordinal, c.text, c.embedding, c.char_count, c.word_count, c.degraded
		FROM chunk c
		INNER JOIN document d ON d.id = c.document_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY c.document_id ASC, c.ordinal ASC
	`
	if find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list chunks")
	}
	defer rows.Close()

	list := []*store.Chunk{}
	for rows.Next() {
		var chunk store.Chunk
		var embedded string
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.Ordinal,
			&chunk.Text,
			&embedded,
			&chunk.CharCount,
			&chunk.WordCount,
			&chunk.Degraded,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan chunk")
		}
		chunk.Embedding, err = unmarshalVector(embedded)
		if err != nil {
			return nil, err
		}
		list = append(list, &chunk)
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
	encoded, err := marshalVector(embedding)
	if err != nil {
		return apperr.PersistenceFailed("failed to encode embedding", err)
	}
	result, err := d.db.ExecContext(ctx, `UPDATE chunk SET embedding = ?, degraded = ? WHERE id = ?`, encoded, degraded, id)
	if err != nil {
		return apperr.PersistenceFailed("failed to update chunk embedding", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperr.NotFound("chunk not found")
	}
	return nil
}

// VectorSearch performs brute-force similarity search: every chunk of the
// requesting owner is scanned and scored in-process. The iteration is scoped
// by owner in SQL so other owners' chunks are never even decoded.
func (d *DB) VectorSearch(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.ChunkWithScore, error) {
	if len(opts.Vector) != d.dims {
		return nil, apperr.DimensionMismatch(d.dims, len(opts.Vector))
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	where, args := []string{"d.owner_id = ?"}, []any{opts.OwnerID}
	if opts.SourceKind != nil {
		where, args = append(where, "d.source_kind = ?"), append(args, string(*opts.SourceKind))
	}

	query := `
		SELECT c.id, c.document_id, c.ordinal, c.text, c.embedding, c.char_count, c.word_count, c.degraded,
			d.id, d.uid, d.owner_id, d.filename, d.mime_type, d.source_kind, d.blob_key, d.size_bytes, d.content_length, d.created_ts, d.processed
		FROM chunk c
		INNER JOIN document d ON d.id = c.document_id
		WHERE ` + strings.Join(where, " AND ")

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan chunks for vector search")
	}
	defer rows.Close()

	results := []*store.ChunkWithScore{}
	for rows.Next() {
		var chunk store.Chunk
		var embedded string
		var doc store.Document
		var kind string
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.Ordinal,
			&chunk.Text,
			&embedded,
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
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan vector search row")
		}
		chunk.Embedding, err = unmarshalVector(embedded)
		if err != nil {
			return nil, err
		}
		if len(chunk.Embedding) != len(opts.Vector) {
			return nil, apperr.DimensionMismatch(len(opts.Vector), len(chunk.Embedding))
		}
		doc.SourceKind = store.SourceKind(kind)
		results = append(results, &store.ChunkWithScore{
			Chunk:    &chunk,
			Document: &doc,
			Score:    vector.Cosine(opts.Vector, chunk.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Same candidate ordering as the pgvector backend: score descending,
	// then document, ordinal, chunk id.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Document.ID != results[j].Document.ID {
			return results[i].Document.ID < results[j].Document.ID
		}
		if results[i].Chunk.Ordinal != results[j].Chunk.Ordinal {
			return results[i].Chunk.Ordinal < results[j].Chunk.Ordinal
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// GetOwnerStats aggregates per-owner storage counters.
func (d *DB) GetOwnerStats(ctx context.Context, ownerID int32) (*store.OwnerStats, error) {
	stats := &store.OwnerStats{ByKind: map[store.SourceKind]int{}}

	rows, err := d.db.QueryContext(ctx, `
		SELECT source_kind, COUNT(*), COALESCE(SUM(size_bytes), 0)
		FROM document
		WHERE owner_id = ?
		GROUP BY source_kind
	`, ownerID)
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

	err = d.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM chunk c
		INNER JOIN document d ON d.id = c.document_id
		WHERE d.owner_id = ?
	`, ownerID).Scan(&stats.ChunkCount)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count chunks")
	}
	return stats, nil
}
