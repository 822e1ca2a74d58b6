package mockapi

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/toinfinity/infinity-go/internal/model"
)

type storedJob struct {
	ID        string
	BatchID   string
	Generator string
	IsPreview bool
	Params    model.JobParams
	State     string
	ResultURL string
	Error     string
	Artifact  []byte
	Created   time.Time
}

type storedBatch struct {
	ID      string
	Name    string
	Created time.Time
	JobIDs  []string
}

// store is the in-memory state of the fake service. Unlike library-side
// batches, the store is shared by handlers and test code, so it locks.
type store struct {
	mu         sync.Mutex
	generators map[string]model.GeneratorInfo
	batches    map[string]*storedBatch
	batchOrder []string
	jobs       map[string]*storedJob
}

func newStore(generators []model.GeneratorInfo) *store {
	s := &store{
		generators: make(map[string]model.GeneratorInfo),
		batches:    make(map[string]*storedBatch),
		jobs:       make(map[string]*storedJob),
	}
	for _, g := range generators {
		s.generators[g.Name] = g
	}
	return s
}

func (s *store) generator(name string) (model.GeneratorInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.generators[name]
	return g, ok
}

func (s *store) allGenerators() []model.GeneratorInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.GeneratorInfo, 0, len(s.generators))
	for _, g := range s.generators {
		out = append(out, g)
	}
	return out
}

func (s *store) createBatch(name string, runs []jobRunInput) *storedBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := &storedBatch{
		ID:      uuid.NewString(),
		Name:    name,
		Created: time.Now().UTC(),
	}
	for _, r := range runs {
		j := &storedJob{
			ID:        uuid.NewString(),
			BatchID:   b.ID,
			Generator: r.Name,
			IsPreview: r.IsPreview,
			Params:    r.ParamValues,
			State:     "pending",
			Created:   b.Created,
		}
		s.jobs[j.ID] = j
		b.JobIDs = append(b.JobIDs, j.ID)
	}
	s.batches[b.ID] = b
	s.batchOrder = append(s.batchOrder, b.ID)
	return b
}

func (s *store) batch(id string) (*storedBatch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	return b, ok
}

func (s *store) batchJobs(b *storedBatch) []*storedJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]*storedJob, 0, len(b.JobIDs))
	for _, id := range b.JobIDs {
		jobs = append(jobs, s.jobs[id])
	}
	return jobs
}

func (s *store) listBatches(start, end time.Time) []*storedBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*storedBatch
	for _, id := range s.batchOrder {
		b := s.batches[id]
		if b.Created.Before(start) || b.Created.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func (s *store) usage(start, end time.Time) *model.UsageStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &model.UsageStats{Counts: make(map[string]int)}
	for _, j := range s.jobs {
		if j.Created.Before(start) || j.Created.After(end) {
			continue
		}
		stats.Counts[j.Generator]++
		stats.Total++
	}
	return stats
}

func (s *store) setJobState(jobID, state string, resultURL, errMsg string, artifact []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("unknown job %s", jobID)
	}
	j.State = state
	j.ResultURL = resultURL
	j.Error = errMsg
	j.Artifact = artifact
	return nil
}

func (s *store) pendingJobs() []*storedJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*storedJob
	for _, j := range s.jobs {
		if j.State == "pending" {
			out = append(out, j)
		}
	}
	return out
}

func (s *store) job(id string) (*storedJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	return j, ok
}
