package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	apperr "github.com/hrygo/docsense/internal/errors"
	"github.com/hrygo/docsense/store"
)

// CreateDocumentWithChunks writes the document row and every chunk row in
// one transaction. A failure on any row rolls back the whole document so a
// partial document is never visible.
func (d *DB) CreateDocumentWithChunks(ctx context.Context, create *store.Document, chunks []*store.Chunk) (*store.Document, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.PersistenceFailed("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}

	stmt := `
		INSERT INTO document (uid, owner_id, filename, mime_type, source_kind, blob_key, size_bytes, content_length, created_ts, processed)
		VALUES (` + placeholders(10) + `)
		RETURNING id
	`
	err = tx.QueryRowContext(ctx, stmt,
		create.UID,
		create.OwnerID,
		create.Filename,
		create.MimeType,
		string(create.SourceKind),
		create.BlobKey,
		create.SizeBytes,
		create.ContentLength,
		create.CreatedTs,
		create.Processed,
	).Scan(&create.ID)
	if err != nil {
		return nil, apperr.PersistenceFailed("failed to insert document", err)
	}

	chunkStmt := `
		INSERT INTO chunk (document_id, ordinal, text, embedding, char_count, word_count, degraded)
		VALUES (` + placeholders(7) + `)
		RETURNING id
	`
	for _, chunk := range chunks {
		if len(chunk.Embedding) != d.dims {
			return nil, apperr.DimensionMismatch(d.dims, len(chunk.Embedding))
		}
		chunk.DocumentID = create.ID
		err = tx.QueryRowContext(ctx, chunkStmt,
			chunk.DocumentID,
			chunk.Ordinal,
			chunk.Text,
			pgvector.NewVector(chunk.Embedding),
			chunk.CharCount,
			chunk.WordCount,
			chunk.Degraded,
		).Scan(&chunk.ID)
		if err != nil {
			return nil, apperr.PersistenceFailed("failed to insert chunk", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.PersistenceFailed("failed to commit document", err)
	}
	return create, nil
}

// ListDocuments lists documents.
func (d *DB) ListDocuments(ctx context.Context, find *store.FindDocument) ([]*store.Document, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}
	if find.OwnerID != nil {
		where, args = append(where, "owner_id = "+placeholder(len(args)+1)), append(args, *find.OwnerID)
	}
	if find.SourceKind != nil {
		where, args = append(where, "source_kind = "+placeholder(len(args)+1)), append(args, string(*find.SourceKind))
	}

	query := `
		SELECT id, uid, owner_id, filename, mime_type, source_kind, blob_key, size_bytes, content_length, created_ts, processed
		FROM document
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC, id DESC
	`
	if find.Limit != nil {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, *find.Limit)
		if find.Offset != nil {
			query += " OFFSET " + placeholder(len(args)+1)
			args = append(args, *find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list documents")
	}
	defer rows.Close()

	list := []*store.Document{}
	for rows.Next() {
		var doc store.Document
		var kind string
		err := rows.Scan(
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
			return nil, errors.Wrap(err, "failed to scan document")
		}
		doc.SourceKind = store.SourceKind(kind)
		list = append(list, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// DeleteDocument removes the document and, through ON DELETE CASCADE, all of
// its chunks in one transaction. The owner scope guards against cross-owner
// deletes.
func (d *DB) DeleteDocument(ctx context.Context, delete *store.DeleteDocument) error {
	stmt := `DELETE FROM document WHERE id = ` + placeholder(1) + ` AND owner_id = ` + placeholder(2)
	result, err := d.db.ExecContext(ctx, stmt, delete.ID, delete.OwnerID)
	if err != nil {
		return apperr.PersistenceFailed("failed to delete document", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperr.NotFound("document not found")
	}
	return nil
}
