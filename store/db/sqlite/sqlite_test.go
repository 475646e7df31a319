package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	apperr "github.com/hrygo/docsense/internal/errors"
	"github.com/hrygo/docsense/internal/profile"
	"github.com/hrygo/docsense/store"
)

func newTestDB(t *testing.T) store.Driver {
	t.Helper()
	p := &profile.Profile{
		Mode:          "dev",
		Driver:        "sqlite",
		DSN:           filepath.Join(t.TempDir(), "test.db"),
		EmbeddingDims: 4,
	}
	driver, err := NewDB(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })
	require.NoError(t, driver.Migrate(context.Background()))
	return driver
}

func createDocument(t *testing.T, d store.Driver, ownerID int32, uid string, kind store.SourceKind, vectors ...[]float32) *store.Document {
	t.Helper()
	chunks := make([]*store.Chunk, len(vectors))
	for i, v := range vectors {
		chunks[i] = &store.Chunk{
			Ordinal:   int32(i),
			Text:      "chunk text",
			Embedding: v,
			CharCount: 10,
			WordCount: 2,
		}
	}
	doc, err := d.CreateDocumentWithChunks(context.Background(), &store.Document{
		UID:        uid,
		OwnerID:    ownerID,
		Filename:   uid + ".txt",
		MimeType:   "text/plain",
		SourceKind: kind,
		BlobKey:    "blob/" + uid,
		SizeBytes:  100,
		Processed:  true,
	}, chunks)
	require.NoError(t, err)
	return doc
}

func TestGetOrCreateOwnerIdempotent(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	a, err := d.GetOrCreateOwner(ctx, "alice")
	require.NoError(t, err)
	require.NotZero(t, a.ID)

	again, err := d.GetOrCreateOwner(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, a.ID, again.ID)

	b, err := d.GetOrCreateOwner(ctx, "bob")
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)

	found, err := d.GetOwner(ctx, &store.FindOwner{Name: &a.Name})
	require.NoError(t, err)
	require.Equal(t, a.ID, found.ID)

	missing := "nobody"
	found, err = d.GetOwner(ctx, &store.FindOwner{Name: &missing})
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestCreateDocumentWithChunksRoundTrip(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	owner, err := d.GetOrCreateOwner(ctx, "alice")
	require.NoError(t, err)

	doc := createDocument(t, d, owner.ID, "doc1", store.SourceKindText,
		[]float32{1, 0, 0, 0},
		[]float32{0, 1, 0, 0},
	)
	require.NotZero(t, doc.ID)

	docs, err := d.ListDocuments(ctx, &store.FindDocument{OwnerID: &owner.ID})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "doc1", docs[0].UID)
	require.Equal(t, store.SourceKindText, docs[0].SourceKind)
	require.True(t, docs[0].Processed)

	chunks, err := d.ListChunks(ctx, &store.FindChunk{DocumentID: &doc.ID})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.Equal(t, int32(0), chunks[0].Ordinal)
	require.Equal(t, int32(1), chunks[1].Ordinal)
	require.Equal(t, []float32{1, 0, 0, 0}, chunks[0].Embedding)
}

func TestCreateDocumentDimensionMismatchRollsBack(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	owner, err := d.GetOrCreateOwner(ctx, "alice")
	require.NoError(t, err)

	_, err = d.CreateDocumentWithChunks(ctx, &store.Document{
		UID:        "bad",
		OwnerID:    owner.ID,
		Filename:   "bad.txt",
		MimeType:   "text/plain",
		SourceKind: store.SourceKindText,
		BlobKey:    "blob/bad",
	}, []*store.Chunk{
		{Ordinal: 0, Text: "good", Embedding: []float32{1, 0, 0, 0}},
		{Ordinal: 1, Text: "bad", Embedding: []float32{1, 0, 0}},
	})
	require.Error(t, err)
	require.True(t, apperr.IsCode(err, apperr.ErrCodeDimensionMismatch))

	// Nothing from the failed transaction is visible.
	docs, err := d.ListDocuments(ctx, &store.FindDocument{OwnerID: &owner.ID})
	require.NoError(t, err)
	require.Empty(t, docs)
	chunks, err := d.ListChunks(ctx, &store.FindChunk{OwnerID: &owner.ID})
	require.NoError(t, err)
	require.Empty(t, chunks)
}

func TestVectorSearchScopingAndOrdering(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	alice, err := d.GetOrCreateOwner(ctx, "alice")
	require.NoError(t, err)
	bob, err := d.GetOrCreateOwner(ctx, "bob")
	require.NoError(t, err)

	createDocument(t, d, alice.ID, "a1", store.SourceKindText,
		[]float32{1, 0, 0, 0}, // identical to query, score 1
		[]float32{0.9, 0.1, 0, 0},
	)
	createDocument(t, d, alice.ID, "a2", store.SourceKindPDF,
		[]float32{0, 1, 0, 0}, // orthogonal, score 0
	)
	createDocument(t, d, bob.ID, "b1", store.SourceKindText,
		[]float32{1, 0, 0, 0}, // perfect match but wrong owner
	)

	results, err := d.VectorSearch(ctx, &store.VectorSearchOptions{
		OwnerID: alice.ID,
		Vector:  []float32{1, 0, 0, 0},
		Limit:   10,
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		require.Equal(t, alice.ID, r.Document.OwnerID)
	}
	// Non-increasing scores, best first.
	require.InDelta(t, 1.0, results[0].Score, 1e-4)
	require.GreaterOrEqual(t, results[0].Score, results[1].Score)
	require.GreaterOrEqual(t, results[1].Score, results[2].Score)

	// Kind filter narrows the scan.
	kind := store.SourceKindPDF
	results, err = d.VectorSearch(ctx, &store.VectorSearchOptions{
		OwnerID:    alice.ID,
		Vector:     []float32{1, 0, 0, 0},
		SourceKind: &kind,
		Limit:      10,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "a2", results[0].Document.UID)

	// Query dims must match stored dims.
	_, err = d.VectorSearch(ctx, &store.VectorSearchOptions{
		OwnerID: alice.ID,
		Vector:  []float32{1, 0},
		Limit:   10,
	})
	require.True(t, apperr.IsCode(err, apperr.ErrCodeDimensionMismatch))
}

// TestVectorSearchExactCosineScores pins the similarity figures themselves,
// not just their ordering. The values below are hand-computed cosines
// against the query (1,0,0,0); any backend answering vector search must
// reproduce them, so a drift here means the backends no longer rank alike.
func TestVectorSearchExactCosineScores(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	owner, err := d.GetOrCreateOwner(ctx, "alice")
	require.NoError(t, err)

	// Creation order fixes document IDs, which break the score tie
	// between "exact1" and "exact2".
	cases := []struct {
		uid       string
		embedding []float32
		score     float32
	}{
		{"exact1", []float32{1, 0, 0, 0}, 1.0},
		{"exact2", []float32{2, 0, 0, 0}, 1.0}, // same direction, longer vector
		{"diag", []float32{1, 1, 0, 0}, 0.70710678},
		{"tilt", []float32{3, 4, 0, 0}, 0.6},
		{"spread", []float32{1, 1, 1, 1}, 0.5},
		{"orth", []float32{0, 1, 0, 0}, 0},
		{"anti", []float32{-1, 0, 0, 0}, -1.0},
	}
	for _, c := range cases {
		createDocument(t, d, owner.ID, c.uid, store.SourceKindText, c.embedding)
	}

	results, err := d.VectorSearch(ctx, &store.VectorSearchOptions{
		OwnerID: owner.ID,
		Vector:  []float32{1, 0, 0, 0},
		Limit:   len(cases),
	})
	require.NoError(t, err)
	require.Len(t, results, len(cases))
	for i, c := range cases {
		require.Equal(t, c.uid, results[i].Document.UID, "rank %d", i)
		require.InDelta(t, c.score, results[i].Score, 1e-4, "score for %s", c.uid)
	}
}

func TestDeleteDocumentScopedCascade(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	alice, err := d.GetOrCreateOwner(ctx, "alice")
	require.NoError(t, err)
	bob, err := d.GetOrCreateOwner(ctx, "bob")
	require.NoError(t, err)

	doc := createDocument(t, d, alice.ID, "a1", store.SourceKindText, []float32{1, 0, 0, 0})

	// Another owner cannot delete it, and its chunks survive the attempt.
	err = d.DeleteDocument(ctx, &store.DeleteDocument{ID: doc.ID, OwnerID: bob.ID})
	require.True(t, apperr.IsCode(err, apperr.ErrCodeNotFound))
	chunks, err := d.ListChunks(ctx, &store.FindChunk{DocumentID: &doc.ID})
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	require.NoError(t, d.DeleteDocument(ctx, &store.DeleteDocument{ID: doc.ID, OwnerID: alice.ID}))
	chunks, err = d.ListChunks(ctx, &store.FindChunk{DocumentID: &doc.ID})
	require.NoError(t, err)
	require.Empty(t, chunks)
	docs, err := d.ListDocuments(ctx, &store.FindDocument{OwnerID: &alice.ID})
	require.NoError(t, err)
	require.Empty(t, docs)
}

func TestUpdateChunkEmbedding(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	owner, err := d.GetOrCreateOwner(ctx, "alice")
	require.NoError(t, err)
	doc := createDocument(t, d, owner.ID, "a1", store.SourceKindText, []float32{1, 0, 0, 0})

	chunks, err := d.ListChunks(ctx, &store.FindChunk{DocumentID: &doc.ID})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	id := chunks[0].ID

	// Mark degraded, then upgrade.
	require.NoError(t, d.UpdateChunkEmbedding(ctx, id, []float32{0, 0, 1, 0}, true))
	degraded := true
	chunks, err = d.ListChunks(ctx, &store.FindChunk{Degraded: &degraded})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, []float32{0, 0, 1, 0}, chunks[0].Embedding)

	require.NoError(t, d.UpdateChunkEmbedding(ctx, id, []float32{0, 1, 0, 0}, false))
	chunks, err = d.ListChunks(ctx, &store.FindChunk{Degraded: &degraded})
	require.NoError(t, err)
	require.Empty(t, chunks)

	err = d.UpdateChunkEmbedding(ctx, 9999, []float32{0, 1, 0, 0}, false)
	require.True(t, apperr.IsCode(err, apperr.ErrCodeNotFound))

	err = d.UpdateChunkEmbedding(ctx, id, []float32{0, 1}, false)
	require.True(t, apperr.IsCode(err, apperr.ErrCodeDimensionMismatch))
}

func TestGetOwnerStats(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	alice, err := d.GetOrCreateOwner(ctx, "alice")
	require.NoError(t, err)

	createDocument(t, d, alice.ID, "a1", store.SourceKindText, []float32{1, 0, 0, 0}, []float32{0, 1, 0, 0})
	createDocument(t, d, alice.ID, "a2", store.SourceKindPDF, []float32{0, 0, 1, 0})

	stats, err := d.GetOwnerStats(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, 2, stats.DocumentCount)
	require.Equal(t, 3, stats.ChunkCount)
	require.Equal(t, 1, stats.ByKind[store.SourceKindText])
	require.Equal(t, 1, stats.ByKind[store.SourceKindPDF])
	require.Equal(t, int64(200), stats.TotalBytes)

	stats, err = d.GetOwnerStats(ctx, 9999)
	require.NoError(t, err)
	require.Zero(t, stats.DocumentCount)
	require.Zero(t, stats.ChunkCount)
}
