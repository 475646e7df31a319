package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	apperr "github.com/hrygo/docsense/internal/errors"
	"github.com/hrygo/docsense/server/ingest"
	"github.com/hrygo/docsense/store"
)

type searchHit struct {
	DocumentUID string  `json:"documentUid"`
	Filename    string  `json:"filename"`
	SourceKind  string  `json:"sourceKind"`
	Ordinal     int32   `json:"ordinal"`
	Text        string  `json:"text"`
	Score       float32 `json:"score"`
	Degraded    bool    `json:"degraded"`
}

type searchResponse struct {
	Hits     []searchHit `json:"hits"`
	Degraded bool        `json:"degraded"`
}

// Search runs a similarity query over the owner's chunks.
func (s *APIV1Service) Search(c echo.Context) error {
	owner := ownerName(c)
	if owner == "" {
		return writeError(c, apperr.Validation("X-Owner header is required"))
	}

	req := &ingest.SearchRequest{
		OwnerName: owner,
		Query:     c.QueryParam("q"),
	}
	if kind := c.QueryParam("kind"); kind != "" {
		k := store.SourceKind(kind)
		req.SourceKind = &k
	}
	if limit := c.QueryParam("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			return writeError(c, apperr.Validation("limit must be a positive integer"))
		}
		req.Limit = n
	}
	if threshold := c.QueryParam("threshold"); threshold != "" {
		f, err := strconv.ParseFloat(threshold, 32)
		if err != nil || f < 0 || f > 1 {
			return writeError(c, apperr.Validation("threshold must be a number in [0,1]"))
		}
		t := float32(f)
		req.Threshold = &t
	}

	resp, err := s.Ingest.Search(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}

	hits := make([]searchHit, 0, len(resp.Results))
	for _, r := range resp.Results {
		hits = append(hits, searchHit{
			DocumentUID: r.Document.UID,
			Filename:    r.Document.Filename,
			SourceKind:  string(r.Document.SourceKind),
			Ordinal:     r.Chunk.Ordinal,
			Text:        r.Chunk.Text,
			Score:       r.Score,
			Degraded:    r.Degraded,
		})
	}
	return c.JSON(http.StatusOK, searchResponse{Hits: hits, Degraded: resp.Degraded})
}

type statsResponse struct {
	DocumentCount int            `json:"documentCount"`
	ChunkCount    int            `json:"chunkCount"`
	ByKind        map[string]int `json:"byKind"`
	TotalBytes    int64          `json:"totalBytes"`
}

// GetStats returns per-owner storage counters.
func (s *APIV1Service) GetStats(c echo.Context) error {
	owner := ownerName(c)
	if owner == "" {
		return writeError(c, apperr.Validation("X-Owner header is required"))
	}
	stats, err := s.Ingest.GetStats(c.Request().Context(), owner)
	if err != nil {
		return writeError(c, err)
	}
	byKind := make(map[string]int, len(stats.ByKind))
	for k, v := range stats.ByKind {
		byKind[string(k)] = v
	}
	return c.JSON(http.StatusOK, statsResponse{
		DocumentCount: stats.DocumentCount,
		ChunkCount:    stats.ChunkCount,
		ByKind:        byKind,
		TotalBytes:    stats.TotalBytes,
	})
}

// VerifyIsolation runs the ownership self-check for the calling owner.
func (s *APIV1Service) VerifyIsolation(c echo.Context) error {
	owner := ownerName(c)
	if owner == "" {
		return writeError(c, apperr.Validation("X-Owner header is required"))
	}
	report, err := s.Ingest.VerifyIsolation(c.Request().Context(), owner)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}
