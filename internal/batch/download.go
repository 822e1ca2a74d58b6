package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/toinfinity/infinity-go/internal/model"
)

// batchMarkerFile records which batch a download directory belongs to.
const batchMarkerFile = "batch_id.txt"

// downloadWorkers bounds concurrent artifact fetches during a download pass.
const downloadWorkers = 4

// DownloadReport is the structured result of a download pass. Job IDs in
// each bucket keep submission order.
type DownloadReport struct {
	Downloaded     []string
	SkippedPending []string
	SkippedFailed  []string
	Failed         []DownloadFailure
}

// artifactFileName derives a deterministic, collision-free file name from
// the job ID. Previews carry a distinguishing suffix since preview and
// standard artifacts may differ in format.
func artifactFileName(jobID string, kind model.JobKind) string {
	if kind == model.JobKindPreview {
		return jobID + "_preview.zip"
	}
	return jobID + ".zip"
}

// Download fetches the artifact of every succeeded job and writes it under
// dest. Jobs not yet terminal and jobs that failed are skipped and reported,
// not silently ignored. A fetch or write failure for one job is recorded and
// does not abort the rest; when any job failed, the report is returned
// together with a PartialDownloadError. Re-invoking Download overwrites
// existing artifacts deterministically.
func (b *Batch) Download(ctx context.Context, dest string) (*DownloadReport, error) {
	if err := b.claimDirectory(dest); err != nil {
		return nil, err
	}

	report := &DownloadReport{}
	var candidates []*model.Job
	for _, j := range b.Jobs {
		switch j.State {
		case model.JobStateSucceeded:
			candidates = append(candidates, j)
		case model.JobStatePending:
			report.SkippedPending = append(report.SkippedPending, j.ID)
		default:
			report.SkippedFailed = append(report.SkippedFailed, j.ID)
		}
	}

	errs := make([]error, len(candidates))
	sem := make(chan struct{}, downloadWorkers)
	var wg sync.WaitGroup
	for i, job := range candidates {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, job *model.Job) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = b.downloadOne(ctx, job, dest)
		}(i, job)
	}
	wg.Wait()

	for i, job := range candidates {
		if errs[i] != nil {
			b.log.Warn().Str("batch_id", b.ID).Str("job_id", job.ID).Err(errs[i]).Msg("artifact download failed")
			report.Failed = append(report.Failed, DownloadFailure{JobID: job.ID, Err: errs[i]})
			continue
		}
		report.Downloaded = append(report.Downloaded, job.ID)
	}
	if len(report.Failed) > 0 {
		return report, &PartialDownloadError{Failures: report.Failed}
	}
	b.log.Info().Str("batch_id", b.ID).Int("downloaded", len(report.Downloaded)).
		Int("skipped_pending", len(report.SkippedPending)).Int("skipped_failed", len(report.SkippedFailed)).
		Msg("batch download complete")
	return report, nil
}

func (b *Batch) downloadOne(ctx context.Context, job *model.Job, dest string) error {
	data, err := b.transport.FetchArtifact(ctx, job.ResultURL)
	if err != nil {
		return fmt.Errorf("failed to fetch artifact: %w", err)
	}
	path := filepath.Join(dest, artifactFileName(job.ID, b.Kind))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}

// claimDirectory creates dest and stamps it with this batch's ID. A
// directory already stamped by a different batch is refused so artifacts of
// two batches can never be interleaved.
func (b *Batch) claimDirectory(dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}
	markerPath := filepath.Join(dest, batchMarkerFile)
	existing, err := os.ReadFile(markerPath)
	if err == nil {
		if id := strings.TrimSpace(string(existing)); id != b.ID {
			return fmt.Errorf("%w: %s holds batch %s, not %s", ErrDirectoryInUse, dest, id, b.ID)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read batch marker: %w", err)
	}
	if err := os.WriteFile(markerPath, []byte(b.ID+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write batch marker: %w", err)
	}
	return nil
}
