// Package memory implements storage.Store in process memory.
package memory

import (
	"context"
	"sync"

	"github.com/grifitth12/absen-siswa/internal/storage"
)

var _ storage.Store = (*Store)(nil)

type Store struct {
	mu      sync.Mutex
	entries map[string]string
}

func New() *Store {
	return &Store{entries: make(map[string]string)}
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.entries[key]
	return value, ok, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = value
	return nil
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.entries, key)
	}
	return nil
}

// Len reports how many slots are held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

func (s *Store) Close() error {
	return nil
}
