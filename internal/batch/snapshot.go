package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/toinfinity/infinity-go/internal/model"
)

// SnapshotSchemaVersion is bumped when the snapshot document gains fields
// that older readers must not silently misread. Unknown fields are ignored
// on read, so additive changes stay backward-readable.
const SnapshotSchemaVersion = 1

type snapshotDocument struct {
	SchemaVersion int           `json:"schema_version"`
	BatchID       string        `json:"batch_id"`
	Name          string        `json:"name"`
	Generator     string        `json:"generator"`
	JobKind       model.JobKind `json:"job_kind"`
	Created       time.Time     `json:"created"`
	Jobs          []snapshotJob `json:"jobs"`
}

type snapshotJob struct {
	ID        string          `json:"id"`
	Params    model.JobParams `json:"params"`
	State     model.JobState  `json:"state"`
	ResultURL string          `json:"result_url,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// MarshalSnapshot serializes the batch to its versioned snapshot document.
// Every field of the batch and job model survives the round trip.
func (b *Batch) MarshalSnapshot() ([]byte, error) {
	doc := snapshotDocument{
		SchemaVersion: SnapshotSchemaVersion,
		BatchID:       b.ID,
		Name:          b.Name,
		Generator:     b.Generator,
		JobKind:       b.Kind,
		Created:       b.Created,
	}
	for _, j := range b.Jobs {
		doc.Jobs = append(doc.Jobs, snapshotJob{
			ID:        j.ID,
			Params:    j.Params,
			State:     j.State,
			ResultURL: j.ResultURL,
			Error:     j.Error,
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Save writes the snapshot to SnapshotPath via a temp file and rename, so a
// crash mid-write cannot corrupt the previous snapshot.
func (b *Batch) Save() error {
	if b.SnapshotPath == "" {
		return fmt.Errorf("batch has no snapshot path")
	}
	data, err := b.MarshalSnapshot()
	if err != nil {
		return err
	}
	dir := filepath.Dir(b.SnapshotPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.SnapshotPath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// FromSnapshot reconstructs a batch from a snapshot document, ready to
// resume polling or downloading without resubmitting.
func FromSnapshot(data []byte, t Transport, log zerolog.Logger) (*Batch, error) {
	var doc snapshotDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse batch snapshot: %w", err)
	}
	if doc.SchemaVersion > SnapshotSchemaVersion {
		return nil, fmt.Errorf("batch snapshot schema version %d is newer than supported version %d", doc.SchemaVersion, SnapshotSchemaVersion)
	}
	if doc.BatchID == "" {
		return nil, fmt.Errorf("batch snapshot is missing batch_id")
	}
	if len(doc.Jobs) == 0 {
		return nil, ErrEmptyBatch
	}
	b := &Batch{
		ID:        doc.BatchID,
		Name:      doc.Name,
		Generator: doc.Generator,
		Kind:      doc.JobKind,
		Created:   doc.Created,
		transport: t,
		log:       log,
	}
	seen := make(map[string]bool, len(doc.Jobs))
	for _, sj := range doc.Jobs {
		if seen[sj.ID] {
			return nil, fmt.Errorf("batch snapshot has duplicate job ID %s", sj.ID)
		}
		seen[sj.ID] = true
		b.Jobs = append(b.Jobs, &model.Job{
			ID:        sj.ID,
			BatchID:   doc.BatchID,
			Params:    sj.Params,
			State:     sj.State,
			ResultURL: sj.ResultURL,
			Error:     sj.Error,
		})
	}
	return b, nil
}

// LoadSnapshot reads a snapshot file and reconstructs the batch. The loaded
// batch keeps the same path, so subsequent polls persist in place.
func LoadSnapshot(path string, t Transport, log zerolog.Logger) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch snapshot: %w", err)
	}
	b, err := FromSnapshot(data, t, log)
	if err != nil {
		return nil, err
	}
	b.SnapshotPath = path
	return b, nil
}
