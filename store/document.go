package store

import (
	"context"

	"github.com/pkg/errors"
)

// SourceKind is the derived type of an ingested document.
type SourceKind string

const (
	SourceKindPDF     SourceKind = "pdf"
	SourceKindDocx    SourceKind = "docx"
	SourceKindText    SourceKind = "text"
	SourceKindAudio   SourceKind = "audio"
	SourceKindVideo   SourceKind = "video"
	SourceKindWebpage SourceKind = "webpage"
)

// Document represents one successfully ingested file. A document and its
// chunks are written in a single transaction; it is visible to queries only
// after that transaction commits.
type Document struct {
	// ID is the system generated unique identifier for the document.
	ID int32
	// UID is the external identifier exposed to callers.
	UID string

	// Standard fields
	OwnerID   int32
	CreatedTs int64

	// Domain specific fields
	Filename      string
	MimeType      string
	SourceKind    SourceKind
	BlobKey       string
	SizeBytes     int64
	ContentLength int
	Processed     bool
}

// FindDocument is the find condition for documents.
type FindDocument struct {
	ID         *int32
	UID        *string
	OwnerID    *int32
	SourceKind *SourceKind
	Limit      *int
	Offset     *int
}

// DeleteDocument is the delete condition for documents. The owner scope is
// mandatory: a delete never crosses owners.
type DeleteDocument struct {
	ID      int32
	OwnerID int32
}

// CreateDocumentWithChunks persists a document and all of its chunks in one
// atomic transaction. On any failure nothing is written.
func (s *Store) CreateDocumentWithChunks(ctx context.Context, create *Document, chunks []*Chunk) (*Document, error) {
	if create.OwnerID == 0 {
		return nil, errors.New("document owner is required")
	}
	for i, c := range chunks {
		if c.Text == "" {
			return nil, errors.Errorf("chunk %d has empty text", i)
		}
		if int32(i) != c.Ordinal {
			return nil, errors.Errorf("chunk ordinals must be contiguous: got %d at position %d", c.Ordinal, i)
		}
	}
	return s.driver.CreateDocumentWithChunks(ctx, create, chunks)
}

// ListDocuments lists documents matching the find condition.
func (s *Store) ListDocuments(ctx context.Context, find *FindDocument) ([]*Document, error) {
	if find.Limit == nil {
		defaultLimit := 100
		find.Limit = &defaultLimit
	}
	return s.driver.ListDocuments(ctx, find)
}

// GetDocument gets a single document, or nil when absent.
func (s *Store) GetDocument(ctx context.Context, find *FindDocument) (*Document, error) {
	list, err := s.driver.ListDocuments(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// DeleteDocument deletes a document and all of its chunks in one atomic
// transaction. The caller is responsible for compensating blob storage.
func (s *Store) DeleteDocument(ctx context.Context, delete *DeleteDocument) error {
	return s.driver.DeleteDocument(ctx, delete)
}
