// Package textextract turns uploaded bytes into plain text for chunking.
// Plain text, markdown and HTML are handled in-process; PDF and Office
// formats are delegated to an Apache Tika server. Audio and video are
// accepted as opaque placeholders (transcription happens upstream, if ever).
package textextract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
	"golang.org/x/net/html"

	apperr "github.com/hrygo/docsense/internal/errors"
	"github.com/hrygo/docsense/store"
)

// Result is the outcome of extraction.
type Result struct {
	Text       string
	Metadata   map[string]string
	SourceKind store.SourceKind
}

// Extractor converts raw document bytes into text.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeType, filename string) (*Result, error)
	IsSupported(mimeType string) bool
}

// Mimetypes handled by the composite extractor.
var supportedMimeTypes = map[string]store.SourceKind{
	"text/plain":         store.SourceKindText,
	"text/markdown":      store.SourceKindText,
	"text/csv":           store.SourceKindText,
	"text/html":          store.SourceKindWebpage,
	"application/pdf":    store.SourceKindPDF,
	"application/msword": store.SourceKindDocx,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": store.SourceKindDocx,
	"application/rtf": store.SourceKindText,
}

// KindForMime derives the source kind for a mimetype, also covering the
// audio/video placeholder classes.
func KindForMime(mimeType string) (store.SourceKind, bool) {
	mimeType = normalizeMime(mimeType)
	if kind, ok := supportedMimeTypes[mimeType]; ok {
		return kind, true
	}
	if strings.HasPrefix(mimeType, "audio/") {
		return store.SourceKindAudio, true
	}
	if strings.HasPrefix(mimeType, "video/") {
		return store.SourceKindVideo, true
	}
	return "", false
}

func normalizeMime(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// Composite routes each mimetype to the in-process handler or the Tika
// client.
type Composite struct {
	tika *TikaClient
}

// NewComposite creates the standard extractor. tika may be nil; PDF and
// Office extraction then fail with an extraction error instead of reaching
// out to a server.
func NewComposite(tika *TikaClient) *Composite {
	return &Composite{tika: tika}
}

// IsSupported checks whether a mimetype can be ingested at all.
func (c *Composite) IsSupported(mimeType string) bool {
	_, ok := KindForMime(mimeType)
	return ok
}

// Extract converts document bytes to plain text plus metadata.
func (c *Composite) Extract(ctx context.Context, data []byte, mimeType, filename string) (*Result, error) {
	kind, ok := KindForMime(mimeType)
	if !ok {
		return nil, apperr.UnsupportedFileType(mimeType)
	}

	switch kind {
	case store.SourceKindAudio, store.SourceKindVideo:
		// Opaque placeholder: the blob is stored, the searchable text is
		// just the filename until something upstream transcribes it.
		return &Result{
			Text:       fmt.Sprintf("%s (%s, %d bytes, not transcribed)", filename, kind, len(data)),
			SourceKind: kind,
		}, nil
	}

	switch normalizeMime(mimeType) {
	case "text/plain", "text/csv", "application/rtf":
		return &Result{Text: string(data), SourceKind: kind}, nil
	case "text/markdown":
		text, err := markdownToText(data)
		if err != nil {
			return nil, apperr.ExtractionFailed("failed to parse markdown", err)
		}
		return &Result{Text: text, SourceKind: kind}, nil
	case "text/html":
		text, err := htmlToText(data)
		if err != nil {
			return nil, apperr.ExtractionFailed("failed to parse html", err)
		}
		return &Result{Text: text, SourceKind: kind}, nil
	}

	if c.tika == nil {
		return nil, apperr.ExtractionFailed("no extraction backend for "+mimeType, nil)
	}
	text, metadata, err := c.tika.Extract(ctx, data, mimeType)
	if err != nil {
		return nil, apperr.ExtractionFailed("tika extraction failed", err)
	}
	return &Result{Text: text, Metadata: metadata, SourceKind: kind}, nil
}

// markdownToText walks the goldmark AST and collects raw text segments,
// dropping formatting syntax.
func markdownToText(data []byte) (string, error) {
	md := goldmark.New()
	doc := md.Parser().Parse(gmtext.NewReader(data))

	var b strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(data))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.Paragraph, *ast.Heading:
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}

// htmlToText strips tags, skipping script and style subtrees.
func htmlToText(data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return b.String(), nil
}
