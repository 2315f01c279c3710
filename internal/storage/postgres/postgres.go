// Package postgres implements storage.Store on a postgres table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/grifitth12/absen-siswa/internal/storage"
)

var _ storage.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS absen_slots (
  namespace  TEXT        NOT NULL,
  key        TEXT        NOT NULL,
  value      TEXT        NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  PRIMARY KEY (namespace, key)
)`

type Store struct {
	pool      *pgxpool.Pool
	namespace string
}

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 4
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// New opens a pool, makes sure the slot table exists and returns a store
// scoped to namespace.
func New(ctx context.Context, databaseURL, namespace string) (*Store, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("storage/postgres: database url is required")
	}
	pool, err := NewPool(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage/postgres: creating schema: %w", err)
	}
	return &Store{pool: pool, namespace: namespace}, nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	row := s.pool.QueryRow(ctx, `
    SELECT value
    FROM absen_slots
    WHERE namespace = $1 AND key = $2
  `, s.namespace, key)
	err := row.Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	} else if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
    INSERT INTO absen_slots (namespace, key, value, updated_at)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
  `, s.namespace, key, value, time.Now().UTC())
	return err
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
    DELETE FROM absen_slots
    WHERE namespace = $1 AND key = ANY($2)
  `, s.namespace, keys)
	return err
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
