package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	gcs "cloud.google.com/go/storage"

	"github.com/installhub/api/internal/services"
)

const reportContentType = "application/json"

// objectOpener returns a writer for bucket/object. The upload commits on Close.
type objectOpener func(ctx context.Context, bucket, object string) io.WriteCloser

// ReportWriter uploads backfill reports as JSON objects to Cloud Storage.
type ReportWriter struct {
	bucket string
	prefix string
	open   objectOpener
}

var _ services.ReportWriter = (*ReportWriter)(nil)

// NewReportWriter constructs a ReportWriter storing objects under bucket/prefix.
func NewReportWriter(client *gcs.Client, bucket, prefix string) (*ReportWriter, error) {
	if client == nil {
		return nil, errors.New("storage report writer: client is required")
	}
	return newReportWriter(bucket, prefix, func(ctx context.Context, bucket, object string) io.WriteCloser {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		w.ContentType = reportContentType
		w.CacheControl = "no-store"
		return w
	})
}

func newReportWriter(bucket, prefix string, open objectOpener) (*ReportWriter, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage report writer: bucket is required")
	}
	return &ReportWriter{bucket: bucket, prefix: strings.Trim(strings.TrimSpace(prefix), "/"), open: open}, nil
}

// WriteBackfillReport uploads report and returns its gs:// location.
func (w *ReportWriter) WriteBackfillReport(ctx context.Context, report services.BackfillReport) (string, error) {
	object, err := ReportObjectPath(w.prefix, report.RunID)
	if err != nil {
		return "", err
	}
	writer := w.open(ctx, w.bucket, object)
	enc := json.NewEncoder(writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("storage report writer: encode: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("storage report writer: upload gs://%s/%s: %w", w.bucket, object, err)
	}
	return fmt.Sprintf("gs://%s/%s", w.bucket, object), nil
}

// ReportObjectPath composes "<prefix>/<runID>.json".
func ReportObjectPath(prefix, runID string) (string, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" || strings.ContainsAny(runID, "/\\") || strings.Contains(runID, "..") {
		return "", fmt.Errorf("storage: invalid run id %q", runID)
	}
	return path.Join(strings.Trim(prefix, "/"), runID+".json"), nil
}
