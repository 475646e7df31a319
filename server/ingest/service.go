// Package ingest orchestrates the document pipeline: validation, text
// extraction, chunking, embedding, blob storage and the final atomic
// persistence step. It is the only writer of documents and the only entry
// point for retrieval, so owner scoping is enforced here and in the store,
// never in the HTTP layer alone.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"

	apperr "github.com/hrygo/docsense/internal/errors"
	"github.com/hrygo/docsense/internal/profile"
	"github.com/hrygo/docsense/plugin/blob"
	"github.com/hrygo/docsense/plugin/textextract"
	"github.com/hrygo/docsense/server/ai"
	"github.com/hrygo/docsense/server/retrieval"
	"github.com/hrygo/docsense/store"
)

// Service wires the pipeline stages together.
type Service struct {
	profile   *profile.Profile
	store     *store.Store
	batcher   *ai.Batcher
	extractor textextract.Extractor
	blobs     blob.Store
}

// NewService creates the ingestion service.
func NewService(p *profile.Profile, st *store.Store, batcher *ai.Batcher, extractor textextract.Extractor, blobs blob.Store) *Service {
	return &Service{
		profile:   p,
		store:     st,
		batcher:   batcher,
		extractor: extractor,
		blobs:     blobs,
	}
}

// IngestRequest carries one uploaded file.
type IngestRequest struct {
	OwnerName string
	Filename  string
	MimeType  string
	Data      []byte
	// Chunking overrides the default chunk size/overlap/separators when any
	// field is set.
	Chunking ai.ChunkOptions
}

// IngestResult reports what the pipeline produced for one document.
type IngestResult struct {
	Document *store.Document
	// ChunkCount is the number of chunks written with the document.
	ChunkCount int
	// DegradedChunks counts chunks carrying fallback vectors; nonzero means
	// the embedding provider was partially or fully unavailable.
	DegradedChunks int
}

// Ingest runs the full pipeline for one file. Either the document and all
// of its chunks become visible together, or nothing does; the blob written
// before the database transaction is compensated on failure.
func (s *Service) Ingest(ctx context.Context, req *IngestRequest) (*IngestResult, error) {
	if req.OwnerName == "" {
		return nil, apperr.Validation("owner is required")
	}
	if req.Filename == "" {
		return nil, apperr.Validation("filename is required")
	}
	if len(req.Data) == 0 {
		return nil, apperr.Validation("file is empty")
	}
	if s.profile.MaxUploadBytes > 0 && int64(len(req.Data)) > s.profile.MaxUploadBytes {
		return nil, apperr.Validation("file exceeds upload size limit")
	}
	// Reject unsupported types while still validating: nothing may be
	// persisted (not even the owner row) for a rejected upload.
	if !s.extractor.IsSupported(req.MimeType) {
		return nil, apperr.UnsupportedFileType(req.MimeType)
	}

	owner, err := s.store.GetOrCreateOwner(ctx, req.OwnerName)
	if err != nil {
		return nil, apperr.PersistenceFailed("failed to resolve owner", err)
	}

	extracted, err := s.extractor.Extract(ctx, req.Data, req.MimeType, req.Filename)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(extracted.Text)
	if text == "" {
		return nil, apperr.ExtractionFailed("document contains no extractable text", nil)
	}

	chunkTexts := ai.ChunkDocument(text, req.Chunking)
	embeddings := s.batcher.EmbedMany(ctx, chunkTexts)

	chunks := make([]*store.Chunk, len(chunkTexts))
	degraded := 0
	for i, t := range chunkTexts {
		if embeddings[i].Degraded {
			degraded++
		}
		chunks[i] = &store.Chunk{
			Ordinal:   int32(i),
			Text:      t,
			Embedding: embeddings[i].Vector,
			CharCount: len(t),
			WordCount: len(strings.Fields(t)),
			Degraded:  embeddings[i].Degraded,
		}
	}

	blobKey := blob.BuildKey(owner.Name, req.MimeType, req.Filename)
	if err := s.blobs.Put(ctx, blobKey, req.Data, req.MimeType); err != nil {
		return nil, apperr.PersistenceFailed("failed to store blob", err)
	}

	doc := &store.Document{
		UID:           shortuuid.New(),
		OwnerID:       owner.ID,
		CreatedTs:     time.Now().Unix(),
		Filename:      req.Filename,
		MimeType:      req.MimeType,
		SourceKind:    extracted.SourceKind,
		BlobKey:       blobKey,
		SizeBytes:     int64(len(req.Data)),
		ContentLength: len(text),
		Processed:     true,
	}
	created, err := s.store.CreateDocumentWithChunks(ctx, doc, chunks)
	if err != nil {
		// The blob was written outside the transaction; remove it so a
		// failed ingest leaves no trace.
		if delErr := s.blobs.Delete(ctx, blobKey); delErr != nil {
			slog.Warn("failed to compensate blob after ingest failure",
				"blob_key", blobKey, "error", delErr)
		}
		return nil, err
	}

	slog.Info("document ingested",
		"owner", owner.Name,
		"document_uid", created.UID,
		"source_kind", created.SourceKind,
		"chunks", len(chunks),
		"degraded_chunks", degraded)
	return &IngestResult{
		Document:       created,
		ChunkCount:     len(chunks),
		DegradedChunks: degraded,
	}, nil
}

// SearchRequest is one similarity query, always scoped to a single owner.
type SearchRequest struct {
	OwnerName  string
	Query      string
	SourceKind *store.SourceKind
	// Threshold overrides the default minimum similarity when set.
	Threshold *float32
	Limit     int
}

// SearchResponse carries ranked hits plus a quality flag for the query
// embedding.
type SearchResponse struct {
	Results []retrieval.SearchResult
	// Degraded means the query vector came from the deterministic fallback;
	// results are still valid but similarity is not semantic.
	Degraded bool
}

// Search embeds the query and ranks the owner's chunks against it. An owner
// with nothing ingested gets an empty result, never an error, and never
// anyone else's data.
func (s *Service) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	if req.OwnerName == "" {
		return nil, apperr.Validation("owner is required")
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, apperr.Validation("query is required")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = retrieval.DefaultLimit
	}
	threshold := float32(retrieval.DefaultThreshold)
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	owner, err := s.store.GetOwner(ctx, &store.FindOwner{Name: &req.OwnerName})
	if err != nil {
		return nil, apperr.PersistenceFailed("failed to resolve owner", err)
	}
	if owner == nil {
		return &SearchResponse{Results: []retrieval.SearchResult{}}, nil
	}

	embedding := s.batcher.EmbedQuery(ctx, req.Query)

	// Fetch a wider candidate pool than the final limit; the threshold may
	// drop candidates before pagination.
	candidateLimit := limit * 5
	if candidateLimit < 50 {
		candidateLimit = 50
	}
	candidates, err := s.store.VectorSearch(ctx, &store.VectorSearchOptions{
		OwnerID:    owner.ID,
		Vector:     embedding.Vector,
		SourceKind: req.SourceKind,
		Limit:      candidateLimit,
	})
	if err != nil {
		return nil, err
	}

	results := retrieval.Rank(candidates, threshold, limit)
	if embedding.Degraded {
		for i := range results {
			results[i].Degraded = true
		}
	}
	return &SearchResponse{Results: results, Degraded: embedding.Degraded}, nil
}

// ListDocuments returns the owner's documents, newest first.
func (s *Service) ListDocuments(ctx context.Context, ownerName string, sourceKind *store.SourceKind, limit, offset int) ([]*store.Document, error) {
	if ownerName == "" {
		return nil, apperr.Validation("owner is required")
	}
	owner, err := s.store.GetOwner(ctx, &store.FindOwner{Name: &ownerName})
	if err != nil {
		return nil, apperr.PersistenceFailed("failed to resolve owner", err)
	}
	if owner == nil {
		return []*store.Document{}, nil
	}
	find := &store.FindDocument{
		OwnerID:    &owner.ID,
		SourceKind: sourceKind,
	}
	if limit > 0 {
		find.Limit = &limit
	}
	if offset > 0 {
		find.Offset = &offset
	}
	return s.store.ListDocuments(ctx, find)
}

// GetDocument returns one document with its chunks, scoped to the owner.
func (s *Service) GetDocument(ctx context.Context, ownerName, uid string) (*store.Document, []*store.Chunk, error) {
	if ownerName == "" {
		return nil, nil, apperr.Validation("owner is required")
	}
	owner, err := s.store.GetOwner(ctx, &store.FindOwner{Name: &ownerName})
	if err != nil {
		return nil, nil, apperr.PersistenceFailed("failed to resolve owner", err)
	}
	if owner == nil {
		return nil, nil, apperr.NotFound("document not found")
	}
	doc, err := s.store.GetDocument(ctx, &store.FindDocument{UID: &uid, OwnerID: &owner.ID})
	if err != nil {
		return nil, nil, err
	}
	if doc == nil {
		return nil, nil, apperr.NotFound("document not found")
	}
	chunks, err := s.store.ListChunks(ctx, &store.FindChunk{DocumentID: &doc.ID})
	if err != nil {
		return nil, nil, err
	}
	return doc, chunks, nil
}

// DeleteDocument removes the document, its chunks and its blob. The
// database side is one transaction; the blob delete runs after commit so a
// crash between the two can never leave a document row pointing at a
// missing blob. The trade-off is an orphan window: if the blob delete
// fails, the object stays on disk with no row referencing it. That failure
// is logged and swallowed on purpose, since by then the delete has already
// happened from the caller's point of view and there is no row left to
// retry from.
func (s *Service) DeleteDocument(ctx context.Context, ownerName, uid string) error {
	if ownerName == "" {
		return apperr.Validation("owner is required")
	}
	owner, err := s.store.GetOwner(ctx, &store.FindOwner{Name: &ownerName})
	if err != nil {
		return apperr.PersistenceFailed("failed to resolve owner", err)
	}
	if owner == nil {
		return apperr.NotFound("document not found")
	}
	doc, err := s.store.GetDocument(ctx, &store.FindDocument{UID: &uid, OwnerID: &owner.ID})
	if err != nil {
		return err
	}
	if doc == nil {
		return apperr.NotFound("document not found")
	}
	if err := s.store.DeleteDocument(ctx, &store.DeleteDocument{ID: doc.ID, OwnerID: owner.ID}); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, doc.BlobKey); err != nil {
		slog.Warn("failed to delete blob for removed document",
			"blob_key", doc.BlobKey, "error", err)
	}
	return nil
}

// GetStats aggregates storage counters for the owner. Unknown owners get
// zero stats.
func (s *Service) GetStats(ctx context.Context, ownerName string) (*store.OwnerStats, error) {
	if ownerName == "" {
		return nil, apperr.Validation("owner is required")
	}
	owner, err := s.store.GetOwner(ctx, &store.FindOwner{Name: &ownerName})
	if err != nil {
		return nil, apperr.PersistenceFailed("failed to resolve owner", err)
	}
	if owner == nil {
		return &store.OwnerStats{ByKind: map[store.SourceKind]int{}}, nil
	}
	return s.store.GetOwnerStats(ctx, owner.ID)
}

// IsolationReport is the result of the ownership self-check.
type IsolationReport struct {
	OwnerID       int32
	DocumentCount int
	ChunkCount    int
	Clean         bool
	Violations    []string
}

// VerifyIsolation cross-checks that every chunk reachable under the owner's
// scope belongs to one of the owner's documents. It exists as a cheap
// runtime probe of the scoping queries.
func (s *Service) VerifyIsolation(ctx context.Context, ownerName string) (*IsolationReport, error) {
	if ownerName == "" {
		return nil, apperr.Validation("owner is required")
	}
	owner, err := s.store.GetOwner(ctx, &store.FindOwner{Name: &ownerName})
	if err != nil {
		return nil, apperr.PersistenceFailed("failed to resolve owner", err)
	}
	if owner == nil {
		return &IsolationReport{Clean: true}, nil
	}

	probeLimit := 1000
	docs, err := s.store.ListDocuments(ctx, &store.FindDocument{OwnerID: &owner.ID, Limit: &probeLimit})
	if err != nil {
		return nil, err
	}
	ownedDocs := make(map[int32]bool, len(docs))
	for _, d := range docs {
		ownedDocs[d.ID] = true
	}

	chunks, err := s.store.ListChunks(ctx, &store.FindChunk{OwnerID: &owner.ID})
	if err != nil {
		return nil, err
	}

	report := &IsolationReport{
		OwnerID:       owner.ID,
		DocumentCount: len(docs),
		ChunkCount:    len(chunks),
		Clean:         true,
	}
	for _, c := range chunks {
		if !ownedDocs[c.DocumentID] {
			report.Clean = false
			report.Violations = append(report.Violations,
				fmt.Sprintf("chunk %d references document %d outside owner scope", c.ID, c.DocumentID))
		}
	}
	return report, nil
}
