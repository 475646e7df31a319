package store

import (
	"context"

	"github.com/pkg/errors"
)

// Owner is the user or agent entity that documents and chunks belong to.
// It is the unit of access isolation.
type Owner struct {
	ID        int32
	Name      string
	CreatedTs int64
}

// FindOwner is the find condition for owners.
type FindOwner struct {
	ID   *int32
	Name *string
}

// GetOrCreateOwner resolves an owner by name, auto-registering it on first
// use.
func (s *Store) GetOrCreateOwner(ctx context.Context, name string) (*Owner, error) {
	if name == "" {
		return nil, errors.New("owner name is required")
	}
	return s.driver.GetOrCreateOwner(ctx, name)
}

// GetOwner gets a single owner, or nil when absent.
func (s *Store) GetOwner(ctx context.Context, find *FindOwner) (*Owner, error) {
	return s.driver.GetOwner(ctx, find)
}
