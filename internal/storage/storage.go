// Package storage persists audit artifacts: screenshots, markdown
// reports, and batch outputs. Implementations live in subpackages for
// the local filesystem, Google Cloud Storage, and an in-memory store
// used by tests and ephemeral runs.
package storage

import (
	"context"
	"io"
)

// BlobStore writes named artifacts and returns a stable URI for each.
type BlobStore interface {
	// PutObject stores the reader's contents under key and returns the
	// object's URI. Keys use forward slashes regardless of platform.
	PutObject(ctx context.Context, key, contentType string, r io.Reader) (string, error)

	// Close releases any underlying clients. The store is unusable
	// afterwards.
	Close(ctx context.Context) error
}
