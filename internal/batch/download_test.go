package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/toinfinity/infinity-go/internal/model"
)

func downloadableBatch(stub *stubTransport) *Batch {
	stub.artifacts = map[string][]byte{
		"http://r/1": []byte("artifact one"),
		"http://r/2": []byte("artifact two"),
	}
	return &Batch{
		ID:        "batch-dl",
		Generator: "roomscene",
		Kind:      model.JobKindPreview,
		Jobs: []*model.Job{
			{ID: "j1", BatchID: "batch-dl", State: model.JobStateSucceeded, ResultURL: "http://r/1"},
			{ID: "j2", BatchID: "batch-dl", State: model.JobStateSucceeded, ResultURL: "http://r/2"},
			{ID: "j3", BatchID: "batch-dl", State: model.JobStateFailed, Error: "boom"},
			{ID: "j4", BatchID: "batch-dl", State: model.JobStatePending},
		},
		transport: stub,
		log:       zerolog.Nop(),
	}
}

func TestDownloadReportAndFiles(t *testing.T) {
	stub := &stubTransport{}
	b := downloadableBatch(stub)
	dest := t.TempDir()

	report, err := b.Download(context.Background(), dest)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if !reflect.DeepEqual(report.Downloaded, []string{"j1", "j2"}) {
		t.Errorf("downloaded: %v", report.Downloaded)
	}
	if len(report.SkippedPending) != 1 || report.SkippedPending[0] != "j4" {
		t.Errorf("skipped pending: %v", report.SkippedPending)
	}
	if len(report.SkippedFailed) != 1 || report.SkippedFailed[0] != "j3" {
		t.Errorf("skipped failed: %v", report.SkippedFailed)
	}

	data, err := os.ReadFile(filepath.Join(dest, "j1_preview.zip"))
	if err != nil || string(data) != "artifact one" {
		t.Errorf("artifact j1 wrong: %q, %v", data, err)
	}
	marker, err := os.ReadFile(filepath.Join(dest, "batch_id.txt"))
	if err != nil {
		t.Fatalf("marker missing: %v", err)
	}
	if string(marker) != "batch-dl\n" {
		t.Errorf("marker content: %q", marker)
	}
}

func TestDownloadStandardNaming(t *testing.T) {
	stub := &stubTransport{}
	b := downloadableBatch(stub)
	b.Kind = model.JobKindStandard
	dest := t.TempDir()
	if _, err := b.Download(context.Background(), dest); err != nil {
		t.Fatalf("download: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "j2.zip")); err != nil {
		t.Errorf("standard artifact name missing: %v", err)
	}
}

func TestDownloadPartialFailure(t *testing.T) {
	stub := &stubTransport{}
	b := downloadableBatch(stub)
	stub.fetchErr = map[string]error{"http://r/2": fmt.Errorf("connection reset")}
	dest := t.TempDir()

	report, err := b.Download(context.Background(), dest)
	var partial *PartialDownloadError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialDownloadError, got %v", err)
	}
	if len(partial.Failures) != 1 || partial.Failures[0].JobID != "j2" {
		t.Errorf("failures: %+v", partial.Failures)
	}
	// The healthy artifact was still downloaded.
	if !reflect.DeepEqual(report.Downloaded, []string{"j1"}) {
		t.Errorf("downloaded: %v", report.Downloaded)
	}
	if _, err := os.Stat(filepath.Join(dest, "j1_preview.zip")); err != nil {
		t.Errorf("artifact j1 missing after partial failure: %v", err)
	}
}

func TestDownloadIsIdempotent(t *testing.T) {
	stub := &stubTransport{}
	b := downloadableBatch(stub)
	dest := t.TempDir()

	if _, err := b.Download(context.Background(), dest); err != nil {
		t.Fatalf("first download: %v", err)
	}
	// Remote artifact changed; a re-download overwrites deterministically.
	stub.artifacts["http://r/1"] = []byte("artifact one v2")
	report, err := b.Download(context.Background(), dest)
	if err != nil {
		t.Fatalf("second download: %v", err)
	}
	if len(report.Downloaded) != 2 {
		t.Errorf("re-download should attempt all succeeded jobs, got %v", report.Downloaded)
	}
	data, _ := os.ReadFile(filepath.Join(dest, "j1_preview.zip"))
	if string(data) != "artifact one v2" {
		t.Errorf("artifact not overwritten: %q", data)
	}
	entries, _ := os.ReadDir(dest)
	// marker + two artifacts, no duplicate accumulation
	if len(entries) != 3 {
		t.Errorf("expected 3 entries, got %d", len(entries))
	}
}

func TestDownloadRefusesForeignDirectory(t *testing.T) {
	stub := &stubTransport{}
	b := downloadableBatch(stub)
	dest := t.TempDir()
	if err := os.WriteFile(filepath.Join(dest, "batch_id.txt"), []byte("some-other-batch\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := b.Download(context.Background(), dest)
	if !errors.Is(err, ErrDirectoryInUse) {
		t.Fatalf("expected ErrDirectoryInUse, got %v", err)
	}
}
