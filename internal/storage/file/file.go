// Package file implements storage.Store as one file per slot in a directory.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/grifitth12/absen-siswa/internal/storage"
)

var _ storage.Store = (*Store)(nil)

var validKey = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Store keeps each slot in <dir>/<key>, readable only by the current user.
type Store struct {
	dir string
}

// New creates the directory if needed and returns a store rooted there.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("storage/file: creating %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	path, err := s.path(key)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	} else if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	return writeFileAtomically(path, []byte(value), 0o600)
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	var errs []error
	for _, key := range keys {
		path, err := s.path(key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("storage/file: invalid key %q", key)
	}
	return filepath.Join(s.dir, key), nil
}

// writeFileAtomically writes to a temporary file in the same directory and
// renames it over path, so readers never observe a partial slot.
func writeFileAtomically(path string, data []byte, mode os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp")
	if err != nil {
		return err
	}
	tmpPath := f.Name()

	if err := writeAndClose(f, data, mode); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func writeAndClose(f *os.File, data []byte, mode os.FileMode) error {
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
