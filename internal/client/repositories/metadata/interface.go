// Package metadata is a small key/value store living next to the queue.
// It records the active asset-cache generation, the at-rest sealing salt and
// a sealed check value used to verify the passphrase.
package metadata

import (
	"context"
)

const (
	KeyActiveGeneration = "active_generation"
	KeyStorageSalt      = "storage_salt"
	KeyStorageCheck     = "storage_check"
)

// Repository reads and writes metadata values. Get returns (nil, nil) for a
// missing key.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
}
