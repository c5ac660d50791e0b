package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrInvalidKey is returned for keys that would escape the archive directory.
var ErrInvalidKey = errors.New("invalid archive key")

// LocalStore keeps archived call audio on the local filesystem.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

func (s *LocalStore) path(key string) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(key)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.dir, filepath.FromSlash(key)), nil
}

func (s *LocalStore) Store(ctx context.Context, key string, audio []byte, contentType string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	// Temp file + rename so a half-written call is never served.
	tmp, err := os.CreateTemp(dir, ".call-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(audio); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

// file returns the path of an archived call, or "" if it is not on disk.
func (s *LocalStore) file(key string) string {
	path, err := s.path(key)
	if err != nil {
		return ""
	}
	if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
		return path
	}
	return ""
}

func (s *LocalStore) Has(ctx context.Context, key string) bool {
	return s.file(key) != ""
}

func (s *LocalStore) Locate(ctx context.Context, key string) (Location, error) {
	if _, err := s.path(key); err != nil {
		return Location{}, err
	}
	if p := s.file(key); p != "" {
		return Location{Path: p}, nil
	}
	return Location{}, ErrNotArchived
}

func (s *LocalStore) Kind() string { return "local" }
