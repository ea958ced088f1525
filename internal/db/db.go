package db

import (
	"context"
	"time"
)

// Store is the recording store facade. Keys are recording names such as
// "Sample-GAO9862A146.xml"; values are the documents.
type Store interface {
	Pinger
	BlobStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BlobStore provides named document operations.
type BlobStore interface {
	// Get returns ErrKeyNotFound for missing keys.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetNX stores value only if key does not exist yet and reports
	// whether it did.
	SetNX(ctx context.Context, key string, value []byte) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, key string) error
	// Scan returns the keys matching a glob pattern (*, ?, [...]), sorted.
	Scan(ctx context.Context, pattern string) ([]string, error)
}
