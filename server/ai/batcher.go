package ai

import (
	"context"
	"hash/fnv"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/hrygo/docsense/internal/vector"
)

// Embedding is one vector produced by the batcher. Degraded marks fallback
// vectors substituted when the provider was unavailable or a batch failed.
type Embedding struct {
	Vector   []float32
	Dims     int
	Degraded bool
}

// Embedder is the capability the batcher drives. Satisfied by *Provider and
// by test doubles.
type Embedder interface {
	Dims() int
	Configured() bool
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Batcher turns chunk lists into embedding vectors: fixed-size batches
// submitted sequentially, paced to respect provider rate limits, with a
// per-batch degraded fallback so one failing batch never aborts the rest.
type Batcher struct {
	embedder  Embedder
	batchSize int
	limiter   *rate.Limiter
}

// NewBatcher creates a batcher. pause is the minimum interval between batch
// submissions; zero disables pacing.
func NewBatcher(embedder Embedder, batchSize int, pause time.Duration) *Batcher {
	if batchSize <= 0 {
		batchSize = 100
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if pause > 0 {
		limiter = rate.NewLimiter(rate.Every(pause), 1)
	}
	return &Batcher{
		embedder:  embedder,
		batchSize: batchSize,
		limiter:   limiter,
	}
}

// EmbedMany embeds every text, preserving input order and index
// correspondence: result[i] belongs to texts[i], and the output length
// always equals the input length regardless of provider failures.
func (b *Batcher) EmbedMany(ctx context.Context, texts []string) []Embedding {
	results := make([]Embedding, len(texts))
	if len(texts) == 0 {
		return results
	}

	available := b.embedder.Configured()
	for batchStart := 0; batchStart < len(texts); batchStart += b.batchSize {
		batchEnd := batchStart + b.batchSize
		if batchEnd > len(texts) {
			batchEnd = len(texts)
		}
		batch := texts[batchStart:batchEnd]

		if !available {
			b.fillFallback(results, texts, batchStart, batchEnd)
			continue
		}

		if err := b.limiter.Wait(ctx); err != nil {
			// Context gone: the remaining batches still get their
			// deterministic fallback so callers keep the length invariant.
			b.fillFallback(results, texts, batchStart, batchEnd)
			continue
		}

		vectors, err := b.embedder.EmbedBatch(ctx, batch)
		if err != nil {
			slog.Warn("embedding batch failed, using fallback vectors",
				"batch_start", batchStart,
				"batch_size", len(batch),
				"error", err)
			b.fillFallback(results, texts, batchStart, batchEnd)
			continue
		}
		for i, vec := range vectors {
			results[batchStart+i] = Embedding{Vector: vec, Dims: len(vec)}
		}
	}
	return results
}

// EmbedQuery embeds a single query text. The same degraded-fallback rule
// applies; callers should surface the flag as a quality warning.
func (b *Batcher) EmbedQuery(ctx context.Context, text string) Embedding {
	return b.EmbedMany(ctx, []string{text})[0]
}

func (b *Batcher) fillFallback(results []Embedding, texts []string, start, end int) {
	dims := b.embedder.Dims()
	for i := start; i < end; i++ {
		results[i] = Embedding{
			Vector:   FallbackVector(texts[i], dims),
			Dims:     dims,
			Degraded: true,
		}
	}
}

// FallbackVector derives a deterministic unit-length vector of the declared
// dimensionality from the text. It carries no semantic meaning; it only
// keeps the pipeline shape intact when the provider is down.
func FallbackVector(text string, dims int) []float32 {
	v := make([]float32, dims)
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()
	// xorshift64 keeps the sequence reproducible for a given text.
	x := seed
	if x == 0 {
		x = 0x9e3779b97f4a7c15
	}
	for i := range v {
		x ^= x << 13
		x ^= x >> 7
		x ^= x << 17
		v[i] = float32(int64(x%2048)-1024) / 1024
	}
	return vector.Normalize(v)
}
