package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/leadfoundry/siteauditor/internal/artifact"
	"github.com/leadfoundry/siteauditor/internal/audit"
	"github.com/leadfoundry/siteauditor/internal/batch"
	"github.com/leadfoundry/siteauditor/internal/storage"
)

// Writer renders reports and persists them through a blob store.
type Writer struct {
	store storage.BlobStore
	log   *zap.Logger
}

var _ audit.ReportSink = (*Writer)(nil)

// BatchArtifacts holds the URIs of a stored batch's outputs.
type BatchArtifacts struct {
	CSV     string
	Summary string
}

// NewWriter builds a Writer over the given store.
func NewWriter(store storage.BlobStore, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{store: store, log: log}
}

// SaveReport renders the per-site Markdown report and stores it under a
// key derived from the URL and audit timestamp.
func (w *Writer) SaveReport(ctx context.Context, res *audit.Result) (string, error) {
	key := artifact.ReportKey(res.URL, res.Timestamp)
	uri, err := w.store.PutObject(ctx, key, "text/markdown", strings.NewReader(RenderMarkdown(res)))
	if err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	w.log.Debug("saved site report", zap.String("uri", uri))
	return uri, nil
}

// SaveBatch writes the results CSV first, then the summary that links to
// it. Both land under the batch's timestamped directory.
func (w *Writer) SaveBatch(ctx context.Context, res *batch.Result) (BatchArtifacts, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, res.Results); err != nil {
		return BatchArtifacts{}, fmt.Errorf("render batch csv: %w", err)
	}
	csvURI, err := w.store.PutObject(ctx, artifact.BatchCSVKey(res.StartedAt), "text/csv", &buf)
	if err != nil {
		return BatchArtifacts{}, fmt.Errorf("save batch csv: %w", err)
	}

	summary := RenderSummary(res, csvURI)
	sumURI, err := w.store.PutObject(ctx, artifact.BatchSummaryKey(res.StartedAt), "text/markdown", strings.NewReader(summary))
	if err != nil {
		return BatchArtifacts{}, fmt.Errorf("save batch summary: %w", err)
	}

	w.log.Info("saved batch artifacts",
		zap.String("csv", csvURI),
		zap.String("summary", sumURI))
	return BatchArtifacts{CSV: csvURI, Summary: sumURI}, nil
}
