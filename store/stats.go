package store

import "context"

// OwnerStats summarizes everything stored for one owner.
type OwnerStats struct {
	DocumentCount int
	ChunkCount    int
	ByKind        map[SourceKind]int
	TotalBytes    int64
}

// GetOwnerStats returns document/chunk counts, a per-kind breakdown and the
// total blob bytes for the owner.
func (s *Store) GetOwnerStats(ctx context.Context, ownerID int32) (*OwnerStats, error) {
	return s.driver.GetOwnerStats(ctx, ownerID)
}
