// Package filestore is the external attachment store. Attachments are kept
// in an object store under a key derived from their content hash, so equal
// content is stored once.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	att := filestore.NewAttachments(store, cfg.Location)
//	id, err := att.PutFile(ctx, "/data/session1.npy")
package filestore

import (
	"context"
	"io"
	"time"
)

// Store is the interface every object storage provider implements.
// Keys are relative to the provider's configured bucket.
type Store interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources.
	Close() error

	// Put uploads size bytes from r under key.
	Put(ctx context.Context, key string, r io.Reader, size int64, opts PutOptions) (*ObjectInfo, error)

	// Get opens a streaming handle to the object at key.
	// The caller MUST call Object.Close() after reading.
	Get(ctx context.Context, key string) (Object, error)

	// Stat returns metadata for the object at key without its content.
	Stat(ctx context.Context, key string) (*ObjectInfo, error)

	// List returns the objects whose keys match opts.
	List(ctx context.Context, opts ListOptions) ([]ObjectInfo, error)

	// Remove deletes the object at key.
	Remove(ctx context.Context, key string) error

	// PresignGetURL returns a time-limited URL that allows anyone to
	// download the object at key without credentials.
	PresignGetURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
