package v1

import (
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	apperr "github.com/hrygo/docsense/internal/errors"
	"github.com/hrygo/docsense/server/ai"
	"github.com/hrygo/docsense/server/ingest"
	"github.com/hrygo/docsense/store"
)

type documentResponse struct {
	UID           string `json:"uid"`
	Filename      string `json:"filename"`
	MimeType      string `json:"mimeType"`
	SourceKind    string `json:"sourceKind"`
	SizeBytes     int64  `json:"sizeBytes"`
	ContentLength int    `json:"contentLength"`
	CreatedTs     int64  `json:"createdTs"`
	Processed     bool   `json:"processed"`
}

func toDocumentResponse(d *store.Document) documentResponse {
	return documentResponse{
		UID:           d.UID,
		Filename:      d.Filename,
		MimeType:      d.MimeType,
		SourceKind:    string(d.SourceKind),
		SizeBytes:     d.SizeBytes,
		ContentLength: d.ContentLength,
		CreatedTs:     d.CreatedTs,
		Processed:     d.Processed,
	}
}

type ingestResponse struct {
	Document       documentResponse `json:"document"`
	ChunkCount     int              `json:"chunkCount"`
	DegradedChunks int              `json:"degradedChunks"`
}

// CreateDocument ingests one uploaded file (multipart field "file").
func (s *APIV1Service) CreateDocument(c echo.Context) error {
	owner := ownerName(c)
	if owner == "" {
		return writeError(c, apperr.Validation("X-Owner header is required"))
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return writeError(c, apperr.Validation("multipart field 'file' is required"))
	}
	if s.Profile.MaxUploadBytes > 0 && fileHeader.Size > s.Profile.MaxUploadBytes {
		return writeError(c, apperr.Validation("file exceeds upload size limit"))
	}

	f, err := fileHeader.Open()
	if err != nil {
		return writeError(c, apperr.Validation("failed to open uploaded file"))
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return writeError(c, apperr.Validation("failed to read uploaded file"))
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if override := c.FormValue("mimeType"); override != "" {
		mimeType = override
	}

	var chunking ai.ChunkOptions
	if v := c.FormValue("chunkSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return writeError(c, apperr.Validation("chunkSize must be a positive integer"))
		}
		chunking.ChunkSize = n
	}
	if v := c.FormValue("chunkOverlap"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return writeError(c, apperr.Validation("chunkOverlap must be a non-negative integer"))
		}
		if n == 0 {
			n = -1 // explicit zero overlap
		}
		chunking.Overlap = n
	}

	result, err := s.Ingest.Ingest(c.Request().Context(), &ingest.IngestRequest{
		OwnerName: owner,
		Filename:  fileHeader.Filename,
		MimeType:  mimeType,
		Data:      data,
		Chunking:  chunking,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, ingestResponse{
		Document:       toDocumentResponse(result.Document),
		ChunkCount:     result.ChunkCount,
		DegradedChunks: result.DegradedChunks,
	})
}

// ListDocuments returns the owner's documents, newest first.
func (s *APIV1Service) ListDocuments(c echo.Context) error {
	owner := ownerName(c)
	if owner == "" {
		return writeError(c, apperr.Validation("X-Owner header is required"))
	}

	var sourceKind *store.SourceKind
	if kind := c.QueryParam("kind"); kind != "" {
		k := store.SourceKind(kind)
		sourceKind = &k
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	docs, err := s.Ingest.ListDocuments(c.Request().Context(), owner, sourceKind, limit, offset)
	if err != nil {
		return writeError(c, err)
	}
	resp := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		resp = append(resp, toDocumentResponse(d))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"documents": resp})
}

type chunkResponse struct {
	Ordinal   int32  `json:"ordinal"`
	Text      string `json:"text"`
	CharCount int    `json:"charCount"`
	WordCount int    `json:"wordCount"`
	Degraded  bool   `json:"degraded"`
}

// GetDocument returns one document with its chunk texts.
func (s *APIV1Service) GetDocument(c echo.Context) error {
	owner := ownerName(c)
	if owner == "" {
		return writeError(c, apperr.Validation("X-Owner header is required"))
	}

	doc, chunks, err := s.Ingest.GetDocument(c.Request().Context(), owner, c.Param("uid"))
	if err != nil {
		return writeError(c, err)
	}
	chunkResp := make([]chunkResponse, 0, len(chunks))
	for _, ch := range chunks {
		chunkResp = append(chunkResp, chunkResponse{
			Ordinal:   ch.Ordinal,
			Text:      ch.Text,
			CharCount: ch.CharCount,
			WordCount: ch.WordCount,
			Degraded:  ch.Degraded,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"document": toDocumentResponse(doc),
		"chunks":   chunkResp,
	})
}

// DeleteDocument removes a document, its chunks and its blob.
func (s *APIV1Service) DeleteDocument(c echo.Context) error {
	owner := ownerName(c)
	if owner == "" {
		return writeError(c, apperr.Validation("X-Owner header is required"))
	}
	if err := s.Ingest.DeleteDocument(c.Request().Context(), owner, c.Param("uid")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
