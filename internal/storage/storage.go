// Package storage defines the persisted slot store that holds the session
// token and the cached profile between runs.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Well-known slot names.
const (
	KeyAuthToken = "authToken"
	KeyUser      = "user"
)

// A Store persists string slots. Get reports ok=false for a missing slot;
// Delete of a missing slot is not an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Namespace derives a short stable namespace from a service base URL so that
// sessions against different services do not share slots.
func Namespace(baseURL string) string {
	sum := sha256.Sum256([]byte(baseURL))
	return hex.EncodeToString(sum[:8])
}
