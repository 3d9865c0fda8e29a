// Package storage persists encoded progress snapshots. Local stores hold the
// device's own replica under a single key; remote stores hold one shared
// replica per user and are only ever written with merged payloads.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key or user has no stored snapshot.
var ErrNotFound = errors.New("storage: not found")

// Local is the device-private key/value store.
type Local interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Remote is the user-keyed store shared by all of a user's devices. Upsert
// must be safe to repeat with the same payload.
type Remote interface {
	Fetch(ctx context.Context, userID string) ([]byte, error)
	Upsert(ctx context.Context, userID string, payload []byte) error
}
