// Package memory keeps audit artifacts in process memory. It backs
// tests and ephemeral runs where nothing should touch disk.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/leadfoundry/siteauditor/internal/storage"
)

// Object is one stored artifact.
type Object struct {
	ContentType string
	Data        []byte
}

// BlobStore stores artifacts in a map and returns mem:// URIs.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string]Object
}

var _ storage.BlobStore = (*BlobStore)(nil)

// NewBlobStore creates an empty in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{objects: make(map[string]Object)}
}

// PutObject copies the reader's contents into the store.
func (s *BlobStore) PutObject(_ context.Context, key, contentType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("memory store: read object: %w", err)
	}

	s.mu.Lock()
	s.objects[key] = Object{ContentType: contentType, Data: append([]byte(nil), data...)}
	s.mu.Unlock()

	return "mem://" + key, nil
}

// Object returns a stored artifact by key.
func (s *BlobStore) Object(key string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	return obj, ok
}

// Keys lists stored object keys in no particular order.
func (s *BlobStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}

// Len reports the number of stored objects.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Close is a no-op.
func (s *BlobStore) Close(context.Context) error { return nil }
