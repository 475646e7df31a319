// Package storetest provides a map-backed store.Driver for tests. It
// mirrors the scoping and ordering semantics of the real drivers so
// pipeline tests exercise the same behavior without a database.
package storetest

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	apperr "github.com/hrygo/docsense/internal/errors"
	"github.com/hrygo/docsense/internal/vector"
	"github.com/hrygo/docsense/store"
)

// Driver is the in-memory store.Driver implementation.
type Driver struct {
	mu        sync.Mutex
	owners    map[string]*store.Owner
	documents map[int32]*store.Document
	chunks    map[int32]*store.Chunk
	nextID    int32

	// FailCreate forces CreateDocumentWithChunks to fail, for testing
	// compensation paths.
	FailCreate bool
}

func NewDriver() *Driver {
	return &Driver{
		owners:    map[string]*store.Owner{},
		documents: map[int32]*store.Document{},
		chunks:    map[int32]*store.Chunk{},
	}
}

func (d *Driver) GetDB() *sql.DB                    { return nil }
func (d *Driver) Close() error                      { return nil }
func (d *Driver) Migrate(ctx context.Context) error { return nil }

// DocumentCount reports stored documents across all owners.
func (d *Driver) DocumentCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.documents)
}

// ChunkCount reports stored chunks across all owners.
func (d *Driver) ChunkCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.chunks)
}

func (d *Driver) GetOrCreateOwner(ctx context.Context, name string) (*store.Owner, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if o, ok := d.owners[name]; ok {
		return o, nil
	}
	d.nextID++
	o := &store.Owner{ID: d.nextID, Name: name}
	d.owners[name] = o
	return o, nil
}

func (d *Driver) GetOwner(ctx context.Context, find *store.FindOwner) (*store.Owner, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, o := range d.owners {
		if find.Name != nil && o.Name != *find.Name {
			continue
		}
		if find.ID != nil && o.ID != *find.ID {
			continue
		}
		return o, nil
	}
	return nil, nil
}

func (d *Driver) CreateDocumentWithChunks(ctx context.Context, create *store.Document, chunks []*store.Chunk) (*store.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailCreate {
		return nil, apperr.PersistenceFailed("failed to create document", nil)
	}
	d.nextID++
	create.ID = d.nextID
	d.documents[create.ID] = create
	for _, c := range chunks {
		d.nextID++
		c.ID = d.nextID
		c.DocumentID = create.ID
		d.chunks[c.ID] = c
	}
	return create, nil
}

func (d *Driver) ListDocuments(ctx context.Context, find *store.FindDocument) ([]*store.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var list []*store.Document
	for _, doc := range d.documents {
		if find.ID != nil && doc.ID != *find.ID {
			continue
		}
		if find.UID != nil && doc.UID != *find.UID {
			continue
		}
		if find.OwnerID != nil && doc.OwnerID != *find.OwnerID {
			continue
		}
		if find.SourceKind != nil && doc.SourceKind != *find.SourceKind {
			continue
		}
		list = append(list, doc)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedTs != list[j].CreatedTs {
			return list[i].CreatedTs > list[j].CreatedTs
		}
		return list[i].ID > list[j].ID
	})
	if find.Offset != nil {
		if *find.Offset >= len(list) {
			list = nil
		} else {
			list = list[*find.Offset:]
		}
	}
	if find.Limit != nil && len(list) > *find.Limit {
		list = list[:*find.Limit]
	}
	return list, nil
}

func (d *Driver) DeleteDocument(ctx context.Context, cond *store.DeleteDocument) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.documents[cond.ID]
	if !ok || doc.OwnerID != cond.OwnerID {
		return apperr.NotFound("document not found")
	}
	for id, c := range d.chunks {
		if c.DocumentID == cond.ID {
			delete(d.chunks, id)
		}
	}
	delete(d.documents, cond.ID)
	return nil
}

func (d *Driver) ListChunks(ctx context.Context, find *store.FindChunk) ([]*store.Chunk, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var list []*store.Chunk
	for _, c := range d.chunks {
		if find.ID != nil && c.ID != *find.ID {
			continue
		}
		if find.DocumentID != nil && c.DocumentID != *find.DocumentID {
			continue
		}
		if find.OwnerID != nil {
			doc, ok := d.documents[c.DocumentID]
			if !ok || doc.OwnerID != *find.OwnerID {
				continue
			}
		}
		if find.Degraded != nil && c.Degraded != *find.Degraded {
			continue
		}
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	if find.Limit != nil && len(list) > *find.Limit {
		list = list[:*find.Limit]
	}
	return list, nil
}

func (d *Driver) UpdateChunkEmbedding(ctx context.Context, id int32, embedding []float32, degraded bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.chunks[id]
	if !ok {
		return apperr.NotFound("chunk not found")
	}
	c.Embedding = embedding
	c.Degraded = degraded
	return nil
}

func (d *Driver) VectorSearch(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.ChunkWithScore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var candidates []*store.ChunkWithScore
	for _, c := range d.chunks {
		doc, ok := d.documents[c.DocumentID]
		if !ok || doc.OwnerID != opts.OwnerID {
			continue
		}
		if opts.SourceKind != nil && doc.SourceKind != *opts.SourceKind {
			continue
		}
		candidates = append(candidates, &store.ChunkWithScore{
			Chunk:    c,
			Document: doc,
			Score:    vector.Cosine(opts.Vector, c.Embedding),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].Document.ID != candidates[j].Document.ID {
			return candidates[i].Document.ID < candidates[j].Document.ID
		}
		if candidates[i].Chunk.Ordinal != candidates[j].Chunk.Ordinal {
			return candidates[i].Chunk.Ordinal < candidates[j].Chunk.Ordinal
		}
		return candidates[i].Chunk.ID < candidates[j].Chunk.ID
	})
	if len(candidates) > opts.Limit {
		candidates = candidates[:opts.Limit]
	}
	return candidates, nil
}

func (d *Driver) GetOwnerStats(ctx context.Context, ownerID int32) (*store.OwnerStats, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	stats := &store.OwnerStats{ByKind: map[store.SourceKind]int{}}
	for _, doc := range d.documents {
		if doc.OwnerID != ownerID {
			continue
		}
		stats.DocumentCount++
		stats.ByKind[doc.SourceKind]++
		stats.TotalBytes += doc.SizeBytes
	}
	for _, c := range d.chunks {
		doc, ok := d.documents[c.DocumentID]
		if ok && doc.OwnerID == ownerID {
			stats.ChunkCount++
		}
	}
	return stats, nil
}
