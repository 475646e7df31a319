package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/docsense/store"
)

// GetOrCreateOwner resolves an owner by name, registering it on first use.
func (d *DB) GetOrCreateOwner(ctx context.Context, name string) (*store.Owner, error) {
	stmt := `
		INSERT INTO owner (name, created_ts)
		VALUES (` + placeholders(2) + `)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, created_ts
	`
	owner := &store.Owner{}
	err := d.db.QueryRowContext(ctx, stmt, name, time.Now().Unix()).Scan(&owner.ID, &owner.Name, &owner.CreatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert owner")
	}
	return owner, nil
}

// GetOwner gets a single owner, or nil when absent.
func (d *DB) GetOwner(ctx context.Context, find *store.FindOwner) (*store.Owner, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.Name != nil {
		where, args = append(where, "name = "+placeholder(len(args)+1)), append(args, *find.Name)
	}

	query := `SELECT id, name, created_ts FROM owner WHERE ` + strings.Join(where, " AND ")
	owner := &store.Owner{}
	err := d.db.QueryRowContext(ctx, query, args...).Scan(&owner.ID, &owner.Name, &owner.CreatedTs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get owner")
	}
	return owner, nil
}
