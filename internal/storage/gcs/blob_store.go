// Package gcs stores audit artifacts in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"fmt"
	"io"
	"strings"

	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/leadfoundry/siteauditor/internal/storage"
)

// BlobStore uploads artifacts to a configured bucket and returns gs://
// URIs for them.
type BlobStore struct {
	client *gstorage.Client
	bucket string
	log    *zap.Logger
}

var _ storage.BlobStore = (*BlobStore)(nil)

// NewBlobStore dials GCS with ambient credentials.
func NewBlobStore(ctx context.Context, bucket string, log *zap.Logger) (*BlobStore, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("gcs store: bucket name is required")
	}
	client, err := gstorage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs store: create client: %w", err)
	}
	return NewBlobStoreWithClient(client, bucket, log)
}

// NewBlobStoreWithClient wraps an existing client, which the store takes
// ownership of.
func NewBlobStoreWithClient(client *gstorage.Client, bucket string, log *zap.Logger) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("gcs store: client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("gcs store: bucket name is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BlobStore{client: client, bucket: bucket, log: log}, nil
}

// PutObject uploads the object and returns its gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("gcs store: object key is required")
	}

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, r); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			return "", fmt.Errorf("gcs store: upload %s: %w (close writer: %v)", key, err, closeErr)
		}
		return "", fmt.Errorf("gcs store: upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs store: finalize %s: %w", key, err)
	}

	uri := fmt.Sprintf("gs://%s/%s", s.bucket, key)
	s.log.Debug("stored artifact", zap.String("uri", uri))
	return uri, nil
}

// Close releases the underlying client.
func (s *BlobStore) Close(context.Context) error { return s.client.Close() }
