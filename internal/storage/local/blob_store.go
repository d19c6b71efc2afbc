// Package local stores audit artifacts on the local filesystem under a
// single base directory.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/leadfoundry/siteauditor/internal/storage"
)

// BlobStore writes artifacts beneath a base directory and returns
// file:// URIs for them.
type BlobStore struct {
	baseDir string
	log     *zap.Logger
}

var _ storage.BlobStore = (*BlobStore)(nil)

// NewBlobStore creates the base directory if needed and verifies it is
// writable before accepting any objects.
func NewBlobStore(baseDir string, log *zap.Logger) (*BlobStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(baseDir) == "" {
		baseDir = "."
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("local store: resolve base dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("local store: create base dir: %w", err)
	}

	probe := filepath.Join(abs, ".write-probe")
	if err := os.WriteFile(probe, nil, 0o600); err != nil {
		return nil, fmt.Errorf("local store: base dir not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("local store: remove write probe: %w", err)
	}

	return &BlobStore{baseDir: abs, log: log}, nil
}

// BaseDir returns the absolute directory artifacts are written under.
func (s *BlobStore) BaseDir() string { return s.baseDir }

// PutObject writes the object to <baseDir>/<key>, creating intermediate
// directories. Keys that would escape the base directory are rejected.
func (s *BlobStore) PutObject(_ context.Context, key, _ string, r io.Reader) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("local store: invalid object key %q", key)
	}
	dst := filepath.Join(s.baseDir, clean)
	if !strings.HasPrefix(dst, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("local store: object key %q escapes base dir", key)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return "", fmt.Errorf("local store: create dir for %s: %w", key, err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("local store: create %s: %w", key, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dst)
		return "", fmt.Errorf("local store: write %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("local store: close %s: %w", key, err)
	}

	s.log.Debug("stored artifact", zap.String("path", dst))
	return "file://" + filepath.ToSlash(dst), nil
}

// Close is a no-op; the filesystem needs no teardown.
func (s *BlobStore) Close(context.Context) error { return nil }
