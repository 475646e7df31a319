package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hrygo/docsense/server/ai"
	"github.com/hrygo/docsense/store"
)

// Runner re-embeds degraded chunks in the background. Chunks pick up
// fallback vectors when the provider is down at ingest time; once the
// provider is reachable again this loop upgrades them in place.
type Runner struct {
	store     *store.Store
	embedder  ai.Embedder
	interval  time.Duration
	batchSize int
}

// NewRunner creates a re-embedding runner. interval <= 0 disables it.
func NewRunner(st *store.Store, embedder ai.Embedder, interval time.Duration) *Runner {
	return &Runner{
		store:     st,
		embedder:  embedder,
		interval:  interval,
		batchSize: 8,
	}
}

// Run starts the background task and blocks until ctx is done.
func (r *Runner) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}

	// Process once on startup.
	r.processDegradedChunks(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.processDegradedChunks(ctx)
		case <-ctx.Done():
			slog.Info("re-embedding runner stopped")
			return
		}
	}
}

// RunOnce processes degraded chunks once (for manual trigger).
func (r *Runner) RunOnce(ctx context.Context) {
	r.processDegradedChunks(ctx)
}

func (r *Runner) processDegradedChunks(ctx context.Context) {
	if !r.embedder.Configured() {
		return
	}

	degraded := true
	limit := r.batchSize * 20
	chunks, err := r.store.ListChunks(ctx, &store.FindChunk{
		Degraded: &degraded,
		Limit:    &limit,
	})
	if err != nil {
		slog.Error("failed to find degraded chunks", "error", err)
		return
	}
	if len(chunks) == 0 {
		return
	}

	slog.Info("re-embedding degraded chunks", "count", len(chunks))

	for i := 0; i < len(chunks); i += r.batchSize {
		select {
		case <-ctx.Done():
			slog.Info("re-embedding cancelled", "processed", i, "total", len(chunks))
			return
		default:
		}

		end := i + r.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[i:end]

		if err := r.processBatch(ctx, batch); err != nil {
			slog.Error("failed to re-embed batch", "error", err)
			continue
		}
		slog.Info("batch re-embedded", "count", len(batch), "progress", fmt.Sprintf("%d/%d", end, len(chunks)))
	}
}

func (r *Runner) processBatch(ctx context.Context, chunks []*store.Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}

	for i, c := range chunks {
		if err := r.store.UpdateChunkEmbedding(ctx, c.ID, vectors[i], false); err != nil {
			slog.Error("failed to update chunk embedding", "chunk_id", c.ID, "error", err)
		}
	}
	return nil
}
