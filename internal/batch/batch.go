// Package batch implements the batch lifecycle manager: submission with
// schema validation, state polling, completion awaiting, artifact download
// orchestration, and snapshot persistence for resumable tracking.
package batch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/toinfinity/infinity-go/internal/api"
	"github.com/toinfinity/infinity-go/internal/model"
)

// Transport is the remote capability the manager drives. *api.Client
// implements it; tests substitute stubs. Implementations must be safe for
// concurrent use.
type Transport interface {
	SubmitBatch(ctx context.Context, generator, name string, kind model.JobKind, params []model.JobParams) (*api.BatchRecord, error)
	GetBatch(ctx context.Context, batchID string) (*api.BatchRecord, error)
	GetJobStatuses(ctx context.Context, batchID string, jobIDs []string) ([]api.JobStatusRecord, error)
	GetGenerator(ctx context.Context, name string) (*model.GeneratorInfo, error)
	FetchArtifact(ctx context.Context, resultURL string) ([]byte, error)
}

// Batch tracks a set of jobs submitted together. The remote batch ID is
// authoritative; Name is a non-unique display label. Jobs are kept in
// submission order. A Batch is meant to be driven by a single owner at a
// time and does no internal locking.
type Batch struct {
	ID        string
	Name      string
	Generator string
	Kind      model.JobKind
	Created   time.Time
	Jobs      []*model.Job

	// SnapshotPath is where the batch snapshot is persisted. Empty
	// disables persistence.
	SnapshotPath string

	transport Transport
	log       zerolog.Logger
}

// SubmitOptions parameterizes a batch submission.
type SubmitOptions struct {
	Generator string
	Name      string
	Kind      model.JobKind
	Params    []model.JobParams
	// StorageDir is where the snapshot is written (<batch id>.json).
	// Empty disables persistence.
	StorageDir string
	// Schema is the generator's parameter schema. Fetched via the
	// transport when nil.
	Schema *model.GeneratorInfo
}

// Submit validates every job spec against the generator schema, posts the
// batch, and persists a snapshot before returning so a crash cannot lose the
// identifiers needed to resume tracking. Validation reports all violations
// at once; nothing is submitted unless every spec is valid.
func Submit(ctx context.Context, t Transport, log zerolog.Logger, opts SubmitOptions) (*Batch, error) {
	if len(opts.Params) == 0 {
		return nil, ErrEmptyBatch
	}
	schema := opts.Schema
	if schema == nil {
		var err error
		schema, err = t.GetGenerator(ctx, opts.Generator)
		if err != nil {
			return nil, err
		}
	}
	if err := ValidateParams(schema, opts.Params); err != nil {
		return nil, err
	}

	record, err := t.SubmitBatch(ctx, opts.Generator, opts.Name, opts.Kind, opts.Params)
	if err != nil {
		return nil, err
	}
	if len(record.JobRuns) != len(opts.Params) {
		return nil, &SubmissionError{
			Reason:   "job count in response does not match submitted specs",
			Expected: len(opts.Params),
			Got:      len(record.JobRuns),
		}
	}
	if err := checkUniqueJobIDs(record.JobRuns); err != nil {
		return nil, err
	}

	created := record.Created
	if created.IsZero() {
		created = time.Now().UTC()
	}
	b := &Batch{
		ID:        record.ID,
		Name:      record.Name,
		Generator: opts.Generator,
		Kind:      opts.Kind,
		Created:   created,
		transport: t,
		log:       log,
	}
	for i, jr := range record.JobRuns {
		b.Jobs = append(b.Jobs, &model.Job{
			ID:      jr.ID,
			BatchID: record.ID,
			Params:  opts.Params[i],
			State:   model.JobStatePending,
		})
	}
	if opts.StorageDir != "" {
		b.SnapshotPath = filepath.Join(opts.StorageDir, record.ID+".json")
		if err := b.Save(); err != nil {
			return nil, fmt.Errorf("failed to persist batch snapshot: %w", err)
		}
	}
	log.Info().Str("batch_id", b.ID).Int("jobs", len(b.Jobs)).Str("kind", string(b.Kind)).Msg("batch submitted")
	return b, nil
}

// FromRemote reconstructs a batch purely from the remote service's record,
// for the case where no local snapshot exists. Job order is the submission
// order recorded remotely.
func FromRemote(ctx context.Context, t Transport, log zerolog.Logger, batchID, storageDir string) (*Batch, error) {
	record, err := t.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if len(record.JobRuns) == 0 {
		return nil, ErrEmptyBatch
	}
	if err := checkUniqueJobIDs(record.JobRuns); err != nil {
		return nil, err
	}
	kind := model.JobKindStandard
	if record.JobRuns[0].IsPreview {
		kind = model.JobKindPreview
	}
	b := &Batch{
		ID:        record.ID,
		Name:      record.Name,
		Generator: record.JobRuns[0].Name,
		Kind:      kind,
		Created:   record.Created,
		transport: t,
		log:       log,
	}
	for _, jr := range record.JobRuns {
		b.Jobs = append(b.Jobs, &model.Job{
			ID:        jr.ID,
			BatchID:   record.ID,
			Params:    jr.ParamValues,
			State:     remoteState(jr.State, jr.ResultURL),
			ResultURL: jr.ResultURL,
			Error:     jr.Error,
		})
	}
	if storageDir != "" {
		b.SnapshotPath = filepath.Join(storageDir, record.ID+".json")
	}
	return b, nil
}

func checkUniqueJobIDs(runs []api.JobRunRecord) error {
	seen := make(map[string]bool, len(runs))
	for _, jr := range runs {
		if jr.ID == "" || seen[jr.ID] {
			return &SubmissionError{
				Reason:   "duplicate or empty job ID in response",
				Expected: len(runs),
				Got:      len(seen),
			}
		}
		seen[jr.ID] = true
	}
	return nil
}

// remoteState maps a remote status string to a local job state. Anything
// unrecognized goes to the errored bucket rather than being dropped.
func remoteState(state, resultURL string) model.JobState {
	switch state {
	case "pending", "queued", "running", "in_progress":
		return model.JobStatePending
	case "succeeded", "completed", "success":
		if resultURL != "" {
			return model.JobStateSucceeded
		}
		// Completed without a result is a definitive failure.
		return model.JobStateFailed
	case "failed", "error":
		return model.JobStateFailed
	default:
		return model.JobStateErrored
	}
}

func statusState(st api.JobStatusRecord) model.JobState {
	if st.InProgress {
		return model.JobStatePending
	}
	return remoteState(st.State, st.ResultURL)
}

// NumRemaining returns the number of jobs not yet in a terminal state.
func (b *Batch) NumRemaining() int {
	n := 0
	for _, j := range b.Jobs {
		if !j.State.Terminal() {
			n++
		}
	}
	return n
}

// Done reports whether every job is terminal.
func (b *Batch) Done() bool {
	return b.NumRemaining() == 0
}

// JobIDs returns job identifiers in submission order.
func (b *Batch) JobIDs() []string {
	ids := make([]string, len(b.Jobs))
	for i, j := range b.Jobs {
		ids[i] = j.ID
	}
	return ids
}

func (b *Batch) pendingJobIDs() []string {
	var ids []string
	for _, j := range b.Jobs {
		if !j.State.Terminal() {
			ids = append(ids, j.ID)
		}
	}
	return ids
}

// Poll queries current status of every still-pending job in one round trip
// and applies state transitions. Jobs already terminal are never re-queried
// and never transition again. When all jobs are terminal, Poll returns
// immediately without a network call. The snapshot is re-persisted whenever
// a poll changes state.
func (b *Batch) Poll(ctx context.Context) error {
	pending := b.pendingJobIDs()
	if len(pending) == 0 {
		return nil
	}
	statuses, err := b.transport.GetJobStatuses(ctx, b.ID, pending)
	if err != nil {
		return err
	}
	byID := make(map[string]api.JobStatusRecord, len(statuses))
	for _, st := range statuses {
		byID[st.ID] = st
	}
	changed := false
	for _, j := range b.Jobs {
		if j.State.Terminal() {
			continue
		}
		st, ok := byID[j.ID]
		if !ok {
			continue
		}
		next := statusState(st)
		if next == j.State {
			continue
		}
		b.log.Debug().Str("batch_id", b.ID).Str("job_id", j.ID).
			Str("from", string(j.State)).Str("to", string(next)).Msg("job state transition")
		j.State = next
		j.ResultURL = st.ResultURL
		j.Error = st.Error
		changed = true
	}
	if changed && b.SnapshotPath != "" {
		if err := b.Save(); err != nil {
			return fmt.Errorf("failed to persist batch snapshot: %w", err)
		}
	}
	return nil
}

// AwaitCompletion polls until every job is terminal, sleeping interval
// between polls. It returns a TimeoutError once timeout elapses with jobs
// still pending; progress made up to that point is preserved on the batch.
// The sleep honors context cancellation.
func (b *Batch) AwaitCompletion(ctx context.Context, interval, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if err := b.Poll(ctx); err != nil {
			return err
		}
		remaining := b.NumRemaining()
		if remaining == 0 {
			b.log.Info().Str("batch_id", b.ID).Msg("all jobs completed")
			return nil
		}
		if !time.Now().Before(deadline) {
			return &TimeoutError{Timeout: timeout, Remaining: remaining}
		}
		b.log.Debug().Str("batch_id", b.ID).Int("remaining", remaining).Msg("jobs still pending")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
