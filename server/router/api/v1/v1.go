// Package v1 exposes the REST surface. Handlers stay thin: they parse the
// request, resolve the owner from the X-Owner header, call the ingest
// service and translate tagged pipeline errors to HTTP statuses. No
// ownership decision is made here; the service and store enforce scoping.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	apperr "github.com/hrygo/docsense/internal/errors"
	"github.com/hrygo/docsense/internal/profile"
	"github.com/hrygo/docsense/server/ingest"
	ownermw "github.com/hrygo/docsense/server/middleware"
	"github.com/hrygo/docsense/store"
)

// ownerHeader identifies the calling owner. Authentication is out of scope;
// the header is trusted the way a reverse proxy would inject it.
const ownerHeader = "X-Owner"

type APIV1Service struct {
	Profile *profile.Profile
	Store   *store.Store
	Ingest  *ingest.Service
}

func NewAPIV1Service(p *profile.Profile, st *store.Store, ingestService *ingest.Service) *APIV1Service {
	return &APIV1Service{
		Profile: p,
		Store:   st,
		Ingest:  ingestService,
	}
}

// Register mounts all routes on the given Echo instance.
func (s *APIV1Service) Register(e *echo.Echo) {
	e.GET("/healthz", s.Healthz)

	g := e.Group("/api/v1")
	g.Use(middleware.CORS())
	g.Use(ownermw.NewRateLimiter(10, 20).PerOwner(ownerHeader))

	g.POST("/documents", s.CreateDocument)
	g.GET("/documents", s.ListDocuments)
	g.GET("/documents/:uid", s.GetDocument)
	g.DELETE("/documents/:uid", s.DeleteDocument)
	g.GET("/search", s.Search)
	g.GET("/stats", s.GetStats)
	g.GET("/debug/isolation", s.VerifyIsolation)
}

func (s *APIV1Service) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.Profile.Version,
	})
}

func ownerName(c echo.Context) string {
	return c.Request().Header.Get(ownerHeader)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps the pipeline error taxonomy to HTTP statuses.
func writeError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch apperr.CodeOf(err, apperr.ErrCodePersistenceFailed) {
	case apperr.ErrCodeValidation:
		status = http.StatusBadRequest
	case apperr.ErrCodeUnsupportedFileType:
		status = http.StatusUnsupportedMediaType
	case apperr.ErrCodeExtractionFailed:
		status = http.StatusUnprocessableEntity
	case apperr.ErrCodeNotFound:
		status = http.StatusNotFound
	case apperr.ErrCodeEmbeddingUnavailable:
		status = http.StatusServiceUnavailable
	case apperr.ErrCodeDimensionMismatch, apperr.ErrCodePersistenceFailed:
		status = http.StatusInternalServerError
	}
	return c.JSON(status, errorResponse{
		Code:    string(apperr.CodeOf(err, apperr.ErrCodePersistenceFailed)),
		Message: err.Error(),
	})
}
