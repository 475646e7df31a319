// Package blob provides object storage for raw uploaded documents. The
// relational store holds metadata and vectors; the original bytes live here,
// keyed by {owner}/{category}/{sanitizedFilename}.
package blob

import (
	"context"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// Categories group objects by media class.
const (
	CategoryDocs  = "docs"
	CategoryAudio = "audio"
	CategoryVideo = "video"
)

// Store is the blob storage capability. It is not transactional with the
// relational store; callers compensate (delete) on rollback.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// CategoryForMime maps a mimetype to its storage category.
func CategoryForMime(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "audio/"):
		return CategoryAudio
	case strings.HasPrefix(mimeType, "video/"):
		return CategoryVideo
	default:
		return CategoryDocs
	}
}

// BuildKey derives the object key for an upload. A short random suffix keeps
// repeated uploads of the same filename from clobbering each other.
func BuildKey(ownerName, mimeType, filename string) string {
	name := SanitizeFilename(filename)
	suffix := uuid.NewString()[:8]
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		name = name[:i] + "_" + suffix + name[i:]
	} else {
		name = name + "_" + suffix
	}
	return SanitizeFilename(ownerName) + "/" + CategoryForMime(mimeType) + "/" + name
}

// SanitizeFilename strips path separators and control characters so a key
// component can never escape its directory.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == ':':
			b.WriteByte('_')
		case unicode.IsControl(r):
			// dropped
		default:
			b.WriteRune(r)
		}
	}
	cleaned := strings.Trim(b.String(), ". ")
	// ".." segments collapse to "_" so relative traversal is impossible.
	cleaned = strings.ReplaceAll(cleaned, "..", "_")
	if cleaned == "" {
		cleaned = "unnamed"
	}
	return cleaned
}
