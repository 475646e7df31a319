package blob

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// LocalStore keeps blob objects on the local filesystem under a root
// directory, one file per key.
type LocalStore struct {
	root string
}

// NewLocalStore creates a filesystem-backed blob store rooted at dir.
func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("blob root directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create blob root %s", dir)
	}
	return &LocalStore{root: dir}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(key))
	// Keys are sanitized at build time; this guards direct callers.
	if !strings.HasPrefix(p, s.root+string(os.PathSeparator)) {
		return "", errors.Errorf("invalid blob key: %s", key)
	}
	return p, nil
}

// Put writes the object, creating parent directories as needed.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Wrap(err, "failed to create blob directory")
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write blob %s", key)
	}
	return nil
}

// Get reads the object.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read blob %s", key)
	}
	return data, nil
}

// Delete removes the object. Deleting a missing object is not an error: the
// compensation path may run after a partial failure.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to delete blob %s", key)
	}
	return nil
}
