package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/docsense/internal/profile"
	"github.com/hrygo/docsense/store"
	"github.com/hrygo/docsense/store/db/postgres"
	"github.com/hrygo/docsense/store/db/sqlite"
)

// NewDBDriver creates a new db driver based on profile.
//
// PostgreSQL is the native vector backend: similarity search is delegated to
// pgvector's indexed distance operator. SQLite is the fallback backend:
// vectors are stored opaquely and similarity is computed by a brute-force
// in-process scan. Ranking semantics are identical either way.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver %q: only 'postgres' and 'sqlite' are supported", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
