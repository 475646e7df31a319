package ai

import (
	"strings"
)

const (
	// DefaultChunkSize is the maximum character count per chunk.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the character count overlap between chunks.
	DefaultChunkOverlap = 200
	// MaxChunksPerDocument caps how many chunks a single document may
	// produce. Hitting the cap truncates the tail but is not an error.
	MaxChunksPerDocument = 1000
)

// DefaultSeparators is the cut-point priority order: paragraph break before
// sentence break before word break.
var DefaultSeparators = []string{"\n\n", ". ", " "}

// ChunkOptions configures the chunker. Zero values take the documented
// defaults.
type ChunkOptions struct {
	ChunkSize  int
	Overlap    int
	Separators []string
}

func (o ChunkOptions) withDefaults() ChunkOptions {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	} else if o.Overlap == 0 {
		o.Overlap = DefaultChunkOverlap
	}
	if o.Overlap >= o.ChunkSize {
		o.Overlap = o.ChunkSize / 2
	}
	if len(o.Separators) == 0 {
		o.Separators = DefaultSeparators
	}
	return o
}

// ChunkDocument splits text into bounded, overlapping segments.
//
// The scan moves forward in windows of ChunkSize characters. Within each
// window the separators are tried in priority order; the first one with an
// occurrence in the second half of the window determines the cut, with the
// separator kept at the end of the emitted chunk. Without a qualifying
// separator the cut falls on the raw window boundary. Output is fully
// deterministic and never contains an empty string.
func ChunkDocument(text string, opts ChunkOptions) []string {
	opts = opts.withDefaults()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if len(text) <= opts.ChunkSize {
		return []string{trimmed}
	}

	var chunks []string
	start := 0
	for start < len(text) && len(chunks) < MaxChunksPerDocument {
		end := start + opts.ChunkSize
		if end >= len(text) {
			if c := strings.TrimSpace(text[start:]); c != "" {
				chunks = append(chunks, c)
			}
			break
		}

		cut := findCut(text, start, end, opts.Separators)
		if c := strings.TrimSpace(text[start:cut]); c != "" {
			chunks = append(chunks, c)
		}

		// Progress must be strictly monotonic on every iteration; a next
		// start at or before the current one would loop forever.
		next := cut - opts.Overlap
		if next <= start {
			next = cut
		}
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// findCut searches backward through the separators, in priority order, for
// the last occurrence before the window end but no earlier than halfway into
// the window. The returned cut includes the separator itself.
func findCut(text string, start, end int, separators []string) int {
	minCut := start + (end-start)/2
	for _, sep := range separators {
		idx := strings.LastIndex(text[start:end], sep)
		if idx < 0 {
			continue
		}
		pos := start + idx
		if pos >= minCut {
			return pos + len(sep)
		}
	}
	return end
}
