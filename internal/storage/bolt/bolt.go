// Package bolt implements storage.Store on a bbolt database file.
package bolt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/grifitth12/absen-siswa/internal/storage"
)

var _ storage.Store = (*Store)(nil)

const defaultBucket = "slots"

type Store struct {
	db     *bolt.DB
	bucket []byte
}

type Options struct {
	// Path of the database file. Its directory is created if missing.
	Path string
	// Bucket holding the slots; one bucket per service namespace.
	Bucket string
}

func New(o Options) (*Store, error) {
	if o.Path == "" {
		return nil, fmt.Errorf("storage/bolt: path is required")
	}
	if o.Bucket == "" {
		o.Bucket = defaultBucket
	}
	if err := os.MkdirAll(filepath.Dir(o.Path), 0o700); err != nil {
		return nil, fmt.Errorf("storage/bolt: creating directory: %w", err)
	}

	db, err := bolt.Open(o.Path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage/bolt: opening %s: %w", o.Path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(o.Bucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, bucket: []byte(o.Bucket)}, nil
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		// only valid inside the transaction
		raw := tx.Bucket(s.bucket).Get([]byte(key))
		if raw != nil {
			value, ok = string(raw), true
		}
		return nil
	})
	return value, ok, err
}

func (s *Store) Set(_ context.Context, key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), []byte(value))
	})
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		for _, key := range keys {
			if err := b.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}
