// Package files stores recordings as plain files in one directory, the
// layout checked into test fixtures.
package files

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kailas-cloud/clarityreplay/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Config holds the directory settings.
type Config struct {
	Dir string
	// Create makes the directory (and parents) if it does not exist.
	Create bool
}

// Store is a directory of recording files.
type Store struct {
	dir string
}

// NewStore opens a directory store.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	if cfg.Create {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", cfg.Dir, err)
		}
	}
	return &Store{dir: filepath.Clean(cfg.Dir)}, nil
}

// Dir returns the directory holding the recordings.
func (s *Store) Dir() string { return s.dir }

// Ping checks that the directory exists.
func (s *Store) Ping(_ context.Context) error {
	fi, err := os.Stat(s.dir)
	if err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	if !fi.IsDir() {
		return &db.Error{Op: db.OpPing, Err: fmt.Errorf("%s is not a directory", s.dir)}
	}
	return nil
}

// Close is a no-op.
func (s *Store) Close() {}

// WaitForReady returns the Ping result; a directory is ready or it is not.
func (s *Store) WaitForReady(ctx context.Context, _ time.Duration) error {
	return s.Ping(ctx)
}

// Get reads a recording file.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, db.ErrKeyNotFound
		}
		return nil, &db.Error{Op: db.OpGet, Key: key, Err: err}
	}
	return data, nil
}

// Set writes a recording file. The content is written to a temporary file
// first and renamed so readers never see a partial document.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-"+key+"-*")
	if err != nil {
		return &db.Error{Op: db.OpSet, Key: key, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &db.Error{Op: db.OpSet, Key: key, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &db.Error{Op: db.OpSet, Key: key, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return &db.Error{Op: db.OpSet, Key: key, Err: err}
	}
	return nil
}

// SetNX creates the file exclusively.
func (s *Store) SetNX(_ context.Context, key string, value []byte) (bool, error) {
	path, err := s.path(key)
	if err != nil {
		return false, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, &db.Error{Op: db.OpSetNX, Key: key, Err: err}
	}
	if _, err := f.Write(value); err != nil {
		_ = f.Close()
		return false, &db.Error{Op: db.OpSetNX, Key: key, Err: err}
	}
	if err := f.Close(); err != nil {
		return false, &db.Error{Op: db.OpSetNX, Key: key, Err: err}
	}
	return true, nil
}

// Exists checks for a recording file.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	path, err := s.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, &db.Error{Op: db.OpExists, Key: key, Err: err}
	}
	return true, nil
}

// Del removes a recording file. Missing files are not an error.
func (s *Store) Del(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &db.Error{Op: db.OpDel, Key: key, Err: err}
	}
	return nil
}

// Scan lists file names matching a glob pattern.
func (s *Store) Scan(_ context.Context, pattern string) ([]string, error) {
	if strings.ContainsRune(pattern, filepath.Separator) {
		return nil, fmt.Errorf("%w: pattern %q", db.ErrInvalidKey, pattern)
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, pattern))
	if err != nil {
		return nil, &db.Error{Op: db.OpScan, Err: err}
	}
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		name := filepath.Base(m)
		if strings.HasPrefix(name, ".tmp-") {
			continue
		}
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("%w: %q", db.ErrInvalidKey, key)
	}
	return filepath.Join(s.dir, key), nil
}
