// Package redis implements storage.Store on a redis server, for kiosks that
// share one session slot across several front ends.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/grifitth12/absen-siswa/internal/storage"
)

var _ storage.Store = (*Store)(nil)

type Store struct {
	client *redis.Client
	prefix string
}

type Options struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every slot key.
	Prefix string
}

// New connects and pings the server.
func New(ctx context.Context, o Options) (*Store, error) {
	if o.Addr == "" {
		return nil, fmt.Errorf("storage/redis: connection address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("storage/redis: ping failed: %w", err)
	}
	return NewFromClient(client, o.Prefix), nil
}

func NewFromClient(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	} else if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, s.key(key), value, 0).Err()
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = s.key(key)
	}
	return s.client.Del(ctx, full...).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(key string) string {
	return s.prefix + key
}
