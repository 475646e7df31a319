package ingest

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	apperr "github.com/hrygo/docsense/internal/errors"
	"github.com/hrygo/docsense/internal/profile"
	"github.com/hrygo/docsense/plugin/blob"
	"github.com/hrygo/docsense/plugin/textextract"
	"github.com/hrygo/docsense/server/ai"
	"github.com/hrygo/docsense/store"
	"github.com/hrygo/docsense/store/storetest"
)

// deterministicEmbedder returns reproducible unit vectors so identical
// texts always match with cosine 1.
type deterministicEmbedder struct {
	dims       int
	configured bool
}

func (e *deterministicEmbedder) Dims() int        { return e.dims }
func (e *deterministicEmbedder) Configured() bool { return e.configured }
func (e *deterministicEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = ai.FallbackVector(t, e.dims)
	}
	return out, nil
}

type testEnv struct {
	service  *Service
	driver   *storetest.Driver
	blobDir  string
	embedder *deterministicEmbedder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	driver := storetest.NewDriver()
	p := &profile.Profile{MaxUploadBytes: 1 << 20}
	st := store.New(driver, p)
	embedder := &deterministicEmbedder{dims: 16, configured: true}
	batcher := ai.NewBatcher(embedder, 10, 0)
	extractor := textextract.NewComposite(nil)
	blobDir := t.TempDir()
	blobs, err := blob.NewLocalStore(blobDir)
	require.NoError(t, err)
	return &testEnv{
		service:  NewService(p, st, batcher, extractor, blobs),
		driver:   driver,
		blobDir:  blobDir,
		embedder: embedder,
	}
}

func blobFileCount(t *testing.T, dir string) int {
	t.Helper()
	count := 0
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			count++
		}
		return nil
	})
	require.NoError(t, err)
	return count
}

func TestIngestAndSearch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.service.Ingest(ctx, &IngestRequest{
		OwnerName: "alice",
		Filename:  "note.txt",
		MimeType:  "text/plain",
		Data:      []byte("the quick brown fox jumps over the lazy dog"),
	})
	require.NoError(t, err)
	require.NotNil(t, result.Document)
	require.Equal(t, 1, result.ChunkCount)
	require.Equal(t, 0, result.DegradedChunks)
	require.True(t, result.Document.Processed)
	require.NotEmpty(t, result.Document.UID)
	require.Equal(t, 1, blobFileCount(t, env.blobDir))

	resp, err := env.service.Search(ctx, &SearchRequest{
		OwnerName: "alice",
		Query:     "the quick brown fox jumps over the lazy dog",
	})
	require.NoError(t, err)
	require.False(t, resp.Degraded)
	require.Len(t, resp.Results, 1)
	require.InDelta(t, 1.0, resp.Results[0].Score, 1e-4)
	require.Equal(t, result.Document.ID, resp.Results[0].Document.ID)
}

func TestIngestChunkingOverrides(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	body := bytes.Repeat([]byte("word "), 200) // 1000 chars
	result, err := env.service.Ingest(ctx, &IngestRequest{
		OwnerName: "alice",
		Filename:  "long.txt",
		MimeType:  "text/plain",
		Data:      body,
		Chunking:  ai.ChunkOptions{ChunkSize: 100, Overlap: 20},
	})
	require.NoError(t, err)
	require.Greater(t, result.ChunkCount, 1)

	chunks, err := env.driver.ListChunks(ctx, &store.FindChunk{})
	require.NoError(t, err)
	require.Len(t, chunks, result.ChunkCount)
	for i, c := range chunks {
		require.Equal(t, int32(i), c.Ordinal)
		require.LessOrEqual(t, len(c.Text), 100)
		require.NotEmpty(t, c.Text)
	}
}

func TestIngestValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.Ingest(ctx, &IngestRequest{Filename: "a.txt", MimeType: "text/plain", Data: []byte("x")})
	require.True(t, apperr.IsCode(err, apperr.ErrCodeValidation))

	_, err = env.service.Ingest(ctx, &IngestRequest{OwnerName: "a", MimeType: "text/plain", Data: []byte("x")})
	require.True(t, apperr.IsCode(err, apperr.ErrCodeValidation))

	_, err = env.service.Ingest(ctx, &IngestRequest{OwnerName: "a", Filename: "a.txt", MimeType: "text/plain"})
	require.True(t, apperr.IsCode(err, apperr.ErrCodeValidation))

	big := make([]byte, 2<<20)
	_, err = env.service.Ingest(ctx, &IngestRequest{OwnerName: "a", Filename: "a.txt", MimeType: "text/plain", Data: big})
	require.True(t, apperr.IsCode(err, apperr.ErrCodeValidation))
}

func TestIngestUnsupportedType(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.service.Ingest(context.Background(), &IngestRequest{
		OwnerName: "alice",
		Filename:  "pic.png",
		MimeType:  "image/png",
		Data:      []byte{0x89, 0x50, 0x4e, 0x47},
	})
	require.True(t, apperr.IsCode(err, apperr.ErrCodeUnsupportedFileType))
	require.Zero(t, blobFileCount(t, env.blobDir))
	require.Zero(t, env.driver.DocumentCount())

	// A rejected upload must not register the owner as a side effect.
	name := "alice"
	owner, err := env.driver.GetOwner(context.Background(), &store.FindOwner{Name: &name})
	require.NoError(t, err)
	require.Nil(t, owner)
}

func TestIngestCompensatesBlobOnPersistFailure(t *testing.T) {
	env := newTestEnv(t)
	env.driver.FailCreate = true

	_, err := env.service.Ingest(context.Background(), &IngestRequest{
		OwnerName: "alice",
		Filename:  "note.txt",
		MimeType:  "text/plain",
		Data:      []byte("some content"),
	})
	require.True(t, apperr.IsCode(err, apperr.ErrCodePersistenceFailed))
	require.Zero(t, blobFileCount(t, env.blobDir), "blob must be removed when persistence fails")
	require.Zero(t, env.driver.DocumentCount())
	require.Zero(t, env.driver.ChunkCount())
}

func TestOwnerIsolation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	aliceDoc, err := env.service.Ingest(ctx, &IngestRequest{
		OwnerName: "alice", Filename: "a.txt", MimeType: "text/plain",
		Data: []byte("alice secret notes"),
	})
	require.NoError(t, err)
	_, err = env.service.Ingest(ctx, &IngestRequest{
		OwnerName: "bob", Filename: "b.txt", MimeType: "text/plain",
		Data: []byte("bob private journal"),
	})
	require.NoError(t, err)

	// Bob searching with alice's exact text still sees only his own chunks.
	noThreshold := float32(-1)
	resp, err := env.service.Search(ctx, &SearchRequest{
		OwnerName: "bob",
		Query:     "alice secret notes",
		Threshold: &noThreshold,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	for _, r := range resp.Results {
		require.NotEqual(t, aliceDoc.Document.ID, r.Document.ID)
	}

	// Listing is scoped per owner.
	docs, err := env.service.ListDocuments(ctx, "bob", nil, 0, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "b.txt", docs[0].Filename)

	// Bob cannot delete alice's document even with a valid UID.
	err = env.service.DeleteDocument(ctx, "bob", aliceDoc.Document.UID)
	require.True(t, apperr.IsCode(err, apperr.ErrCodeNotFound))
	docs, err = env.service.ListDocuments(ctx, "alice", nil, 0, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
}

func TestDeleteDocumentRemovesEverything(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.service.Ingest(ctx, &IngestRequest{
		OwnerName: "alice", Filename: "note.txt", MimeType: "text/plain",
		Data: []byte("ephemeral content"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, blobFileCount(t, env.blobDir))

	require.NoError(t, env.service.DeleteDocument(ctx, "alice", result.Document.UID))

	require.Zero(t, env.driver.DocumentCount())
	require.Zero(t, env.driver.ChunkCount())
	require.Zero(t, blobFileCount(t, env.blobDir))

	resp, err := env.service.Search(ctx, &SearchRequest{OwnerName: "alice", Query: "ephemeral content"})
	require.NoError(t, err)
	require.Empty(t, resp.Results)

	err = env.service.DeleteDocument(ctx, "alice", result.Document.UID)
	require.True(t, apperr.IsCode(err, apperr.ErrCodeNotFound))
}

// failingDeleteStore delegates to a real store but refuses deletes,
// simulating backing storage going read-only mid-operation.
type failingDeleteStore struct {
	blob.Store
}

func (f *failingDeleteStore) Delete(ctx context.Context, key string) error {
	return errors.New("storage is read-only")
}

func TestDeleteDocumentSurvivesBlobDeleteFailure(t *testing.T) {
	driver := storetest.NewDriver()
	p := &profile.Profile{MaxUploadBytes: 1 << 20}
	st := store.New(driver, p)
	batcher := ai.NewBatcher(&deterministicEmbedder{dims: 16, configured: true}, 10, 0)
	blobDir := t.TempDir()
	local, err := blob.NewLocalStore(blobDir)
	require.NoError(t, err)
	svc := NewService(p, st, batcher, textextract.NewComposite(nil), &failingDeleteStore{Store: local})
	ctx := context.Background()

	result, err := svc.Ingest(ctx, &IngestRequest{
		OwnerName: "alice", Filename: "note.txt", MimeType: "text/plain",
		Data: []byte("content behind a stubborn blob"),
	})
	require.NoError(t, err)

	// The relational delete commits first; a failed blob delete orphans
	// the object but must not fail the call or resurrect the document.
	require.NoError(t, svc.DeleteDocument(ctx, "alice", result.Document.UID))
	require.Zero(t, driver.DocumentCount())
	require.Zero(t, driver.ChunkCount())
	require.Equal(t, 1, blobFileCount(t, blobDir))

	err = svc.DeleteDocument(ctx, "alice", result.Document.UID)
	require.True(t, apperr.IsCode(err, apperr.ErrCodeNotFound))
}

func TestSearchUnknownOwnerReturnsEmpty(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.service.Search(context.Background(), &SearchRequest{
		OwnerName: "nobody",
		Query:     "anything",
	})
	require.NoError(t, err)
	require.Empty(t, resp.Results)
}

func TestSearchValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.service.Search(context.Background(), &SearchRequest{OwnerName: "a", Query: "   "})
	require.True(t, apperr.IsCode(err, apperr.ErrCodeValidation))
	_, err = env.service.Search(context.Background(), &SearchRequest{Query: "q"})
	require.True(t, apperr.IsCode(err, apperr.ErrCodeValidation))
}

func TestSearchDegradedWhenProviderUnavailable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.embedder.configured = false
	result, err := env.service.Ingest(ctx, &IngestRequest{
		OwnerName: "alice", Filename: "note.txt", MimeType: "text/plain",
		Data: []byte("degraded but searchable"),
	})
	require.NoError(t, err)
	require.Equal(t, result.ChunkCount, result.DegradedChunks)

	resp, err := env.service.Search(ctx, &SearchRequest{
		OwnerName: "alice",
		Query:     "degraded but searchable",
	})
	require.NoError(t, err)
	require.True(t, resp.Degraded)
	require.Len(t, resp.Results, 1)
	require.True(t, resp.Results[0].Degraded)
}

func TestGetStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.Ingest(ctx, &IngestRequest{
		OwnerName: "alice", Filename: "a.txt", MimeType: "text/plain",
		Data: []byte("first document"),
	})
	require.NoError(t, err)
	_, err = env.service.Ingest(ctx, &IngestRequest{
		OwnerName: "alice", Filename: "b.md", MimeType: "text/markdown",
		Data: []byte("# second\n\ndocument"),
	})
	require.NoError(t, err)

	stats, err := env.service.GetStats(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 2, stats.DocumentCount)
	require.Equal(t, 2, stats.ByKind[store.SourceKindText])
	require.Positive(t, stats.ChunkCount)
	require.Positive(t, stats.TotalBytes)

	stats, err = env.service.GetStats(ctx, "nobody")
	require.NoError(t, err)
	require.Zero(t, stats.DocumentCount)
}

func TestVerifyIsolation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.Ingest(ctx, &IngestRequest{
		OwnerName: "alice", Filename: "a.txt", MimeType: "text/plain",
		Data: []byte("owned content"),
	})
	require.NoError(t, err)

	report, err := env.service.VerifyIsolation(ctx, "alice")
	require.NoError(t, err)
	require.True(t, report.Clean)
	require.Equal(t, 1, report.DocumentCount)
	require.Equal(t, 1, report.ChunkCount)
	require.Empty(t, report.Violations)
}

func TestGetDocumentScopedToOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.service.Ingest(ctx, &IngestRequest{
		OwnerName: "alice", Filename: "a.txt", MimeType: "text/plain",
		Data: []byte("readable content"),
	})
	require.NoError(t, err)

	doc, chunks, err := env.service.GetDocument(ctx, "alice", result.Document.UID)
	require.NoError(t, err)
	require.Equal(t, result.Document.ID, doc.ID)
	require.Len(t, chunks, 1)
	require.Equal(t, int32(0), chunks[0].Ordinal)

	_, _, err = env.service.GetDocument(ctx, "bob", result.Document.UID)
	require.True(t, apperr.IsCode(err, apperr.ErrCodeNotFound))
}
