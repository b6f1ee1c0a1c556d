package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/installhub/api/internal/services"
)

type bufferObject struct {
	bytes.Buffer
	closeErr error
	closed   bool
}

func (b *bufferObject) Close() error {
	b.closed = true
	return b.closeErr
}

func TestWriteBackfillReportUploadsJSON(t *testing.T) {
	objects := map[string]*bufferObject{}
	writer, err := newReportWriter("ih-exports", "/backfill/shipments/", func(_ context.Context, bucket, object string) io.WriteCloser {
		obj := &bufferObject{}
		objects[bucket+"/"+object] = obj
		return obj
	})
	if err != nil {
		t.Fatalf("newReportWriter: %v", err)
	}

	location, err := writer.WriteBackfillReport(context.Background(), services.BackfillReport{RunID: "01RUN", Processed: 3, Created: 2, Skipped: 1})
	if err != nil {
		t.Fatalf("WriteBackfillReport: %v", err)
	}
	if location != "gs://ih-exports/backfill/shipments/01RUN.json" {
		t.Fatalf("unexpected location %s", location)
	}
	obj, ok := objects["ih-exports/backfill/shipments/01RUN.json"]
	if !ok || !obj.closed {
		t.Fatalf("expected closed object, got %v", objects)
	}
	var decoded services.BackfillReport
	if err := json.Unmarshal(obj.Bytes(), &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.Processed != 3 || decoded.Created != 2 || decoded.Skipped != 1 {
		t.Fatalf("unexpected report %+v", decoded)
	}
}

func TestWriteBackfillReportSurfacesUploadError(t *testing.T) {
	writer, err := newReportWriter("ih-exports", "", func(context.Context, string, string) io.WriteCloser {
		return &bufferObject{closeErr: errors.New("quota")}
	})
	if err != nil {
		t.Fatalf("newReportWriter: %v", err)
	}
	if _, err := writer.WriteBackfillReport(context.Background(), services.BackfillReport{RunID: "01RUN"}); err == nil {
		t.Fatal("expected upload error")
	}
}

func TestReportObjectPathValidatesRunID(t *testing.T) {
	if got, err := ReportObjectPath("", "abc"); err != nil || got != "abc.json" {
		t.Fatalf("unexpected result %q %v", got, err)
	}
	for _, runID := range []string{"", "a/b", "..", `a\b`} {
		if _, err := ReportObjectPath("reports", runID); err == nil {
			t.Errorf("expected error for run id %q", runID)
		}
	}
}

func TestNewReportWriterRequiresBucket(t *testing.T) {
	if _, err := NewReportWriter(nil, "b", ""); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := newReportWriter(" ", "", nil); err == nil {
		t.Fatal("expected error for empty bucket")
	}
}
