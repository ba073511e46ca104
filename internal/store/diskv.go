package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"

	"github.com/peterbourgon/diskv/v3"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// DiskvStore implements Repository with one file per key.
type DiskvStore struct {
	d        *diskv.Diskv
	basePath string
}

// NewDiskv creates a repository rooted at basePath.
func NewDiskv(basePath string) (*DiskvStore, error) {
	if err := os.MkdirAll(basePath, 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &DiskvStore{
		d: diskv.New(diskv.Options{
			BasePath:     basePath,
			Transform:    func(string) []string { return []string{} },
			CacheSizeMax: 64 * 1024,
			FilePerm:     0o600,
			PathPerm:     0o700,
		}),
		basePath: basePath,
	}, nil
}

func validKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("invalid key %q", key)
	}
	return nil
}

// Get returns the value stored under key.
func (s *DiskvStore) Get(_ context.Context, key string) (string, bool, error) {
	if err := validKey(key); err != nil {
		return "", false, err
	}
	val, err := s.d.Read(key)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return string(val), true, nil
}

// Set creates or replaces the value stored under key.
func (s *DiskvStore) Set(_ context.Context, key, value string) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := s.d.Write(key, []byte(value)); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *DiskvStore) Delete(_ context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	if !s.d.Has(key) {
		return nil
	}
	if err := s.d.Erase(key); err != nil {
		return fmt.Errorf("erase %s: %w", key, err)
	}
	return nil
}

// Keys lists every stored key.
func (s *DiskvStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	for k := range s.d.Keys(ctx.Done()) {
		keys = append(keys, k)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear removes every key and recreates the base directory.
func (s *DiskvStore) Clear(_ context.Context) error {
	if err := s.d.EraseAll(); err != nil {
		return fmt.Errorf("erase all: %w", err)
	}
	if err := os.MkdirAll(s.basePath, 0o700); err != nil {
		return fmt.Errorf("recreate store directory: %w", err)
	}
	return nil
}

// Ping checks the base directory is still there.
func (s *DiskvStore) Ping(_ context.Context) error {
	if _, err := os.Stat(s.basePath); err != nil {
		return fmt.Errorf("stat store directory: %w", err)
	}
	return nil
}

// Close is a no-op; diskv holds no open handles.
func (s *DiskvStore) Close() error { return nil }
