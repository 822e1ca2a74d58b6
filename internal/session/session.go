// Package session provides the ergonomic entry point: it binds a token and
// generator to the batch lifecycle manager, caches the generator's parameter
// schema, and offers default/random parameter construction, submission,
// reruns, reconstruction, and account-level queries.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/toinfinity/infinity-go/internal/batch"
	"github.com/toinfinity/infinity-go/internal/model"
)

// Remote is the full API surface a session consumes. *api.Client implements
// it.
type Remote interface {
	batch.Transport
	GetGenerators(ctx context.Context) ([]model.GeneratorInfo, error)
	ListBatches(ctx context.Context, start, end time.Time) ([]model.BatchListEntry, error)
	GetUsageRange(ctx context.Context, start, end time.Time) (*model.UsageStats, error)
}

// Session binds a generator to the remote API. Batches created or retrieved
// through the session are tracked in submission order for AwaitAll; the
// durable source of truth remains the remote service plus local snapshots.
type Session struct {
	Generator string

	client     Remote
	info       *model.GeneratorInfo
	storageDir string
	validate   *validator.Validate
	log        zerolog.Logger
	batches    []*batch.Batch
}

// New creates a session for one generator, fetching its parameter schema up
// front so submissions validate locally without extra round trips.
func New(ctx context.Context, client Remote, generator, storageDir string, log zerolog.Logger) (*Session, error) {
	info, err := client.GetGenerator(ctx, generator)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch generator %q: %w", generator, err)
	}
	return &Session{
		Generator:  generator,
		client:     client,
		info:       info,
		storageDir: storageDir,
		validate:   validator.New(),
		log:        log,
	}, nil
}

// ParameterInfo returns the cached generator schema.
func (s *Session) ParameterInfo() *model.GeneratorInfo {
	return s.info
}

// DefaultParams returns a parameter map populated with the generator's
// declared default for every parameter.
func (s *Session) DefaultParams() model.JobParams {
	params := make(model.JobParams, len(s.info.Params))
	for _, p := range s.info.Params {
		params[p.Name] = p.DefaultValue
	}
	return params
}

// RandomParams returns a parameter map sampled uniformly over each
// parameter's choices or min/max range. Parameters without such constraints
// take their default value.
func (s *Session) RandomParams() model.JobParams {
	params := make(model.JobParams, len(s.info.Params))
	for _, p := range s.info.Params {
		params[p.Name] = sampleParam(p)
	}
	return params
}

func sampleParam(p model.ParamInfo) any {
	if p.Options == nil {
		return p.DefaultValue
	}
	if len(p.Options.Choices) > 0 {
		return p.Options.Choices[rand.Intn(len(p.Options.Choices))]
	}
	if p.Options.Min != nil && p.Options.Max != nil {
		mn, mx := *p.Options.Min, *p.Options.Max
		switch p.Type {
		case "int":
			return int(mn) + rand.Intn(int(mx)-int(mn)+1)
		case "float":
			return mn + rand.Float64()*(mx-mn)
		}
	}
	return p.DefaultValue
}

// ValidateParams checks job parameter maps against the generator schema and
// reports every violation at once.
func (s *Session) ValidateParams(params []model.JobParams) error {
	return batch.ValidateParams(s.info, params)
}

// SubmitRequest describes a batch submission. Each entry of Params may be
// partial; unspecified parameters are filled with defaults, or with random
// samples when FillRandom is set.
type SubmitRequest struct {
	Params []model.JobParams `validate:"required,min=1"`
	Kind   model.JobKind     `validate:"omitempty,oneof=preview standard"`
	// Name is a display label for the batch; a generated one is used when
	// empty.
	Name       string
	FillRandom bool
}

// Submit validates, completes, and submits a batch of job specs. The
// returned batch has a persisted snapshot and all jobs pending.
func (s *Session) Submit(ctx context.Context, req *SubmitRequest) (*batch.Batch, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid submit request: %w", err)
	}
	kind := req.Kind
	if kind == "" {
		kind = model.JobKindStandard
	}
	if kind == model.JobKindPreview && !s.info.Options.Preview {
		return nil, &batch.ValidationError{Violations: []batch.Violation{{
			JobIndex:   -1,
			Kind:       batch.ViolationPreview,
			Constraint: s.Generator,
		}}}
	}

	// Validate the user-supplied values on their own first so error
	// reports point at caller input, not filled-in values.
	if err := batch.ValidateParams(s.info, req.Params); err != nil {
		return nil, err
	}
	complete := make([]model.JobParams, len(req.Params))
	for i, jp := range req.Params {
		base := s.DefaultParams()
		if req.FillRandom {
			base = s.RandomParams()
		}
		for k, v := range jp {
			base[k] = v
		}
		complete[i] = base
	}
	if err := batch.ValidateParams(s.info, complete); err != nil {
		return nil, err
	}

	name := req.Name
	if name == "" {
		name = s.Generator + "-" + uuid.NewString()[:8]
	}
	b, err := batch.Submit(ctx, s.client, s.log, batch.SubmitOptions{
		Generator:  s.Generator,
		Name:       name,
		Kind:       kind,
		Params:     complete,
		StorageDir: s.storageDir,
		Schema:     s.info,
	})
	if err != nil {
		return nil, err
	}
	s.batches = append(s.batches, b)
	return b, nil
}

// Rerun submits a new batch built from an existing batch's job specs, with
// overrides applied to every job's parameters.
func (s *Session) Rerun(ctx context.Context, b *batch.Batch, overrides model.JobParams, name string) (*batch.Batch, error) {
	params := make([]model.JobParams, len(b.Jobs))
	for i, j := range b.Jobs {
		p := j.Params.Clone()
		if p == nil {
			p = make(model.JobParams, len(overrides))
		}
		for k, v := range overrides {
			p[k] = v
		}
		params[i] = p
	}
	return s.Submit(ctx, &SubmitRequest{Params: params, Kind: b.Kind, Name: name})
}

// BatchFromRemote reconstructs a previously submitted batch from the remote
// record and tracks it in the session.
func (s *Session) BatchFromRemote(ctx context.Context, batchID string) (*batch.Batch, error) {
	b, err := batch.FromRemote(ctx, s.client, s.log, batchID, s.storageDir)
	if err != nil {
		return nil, err
	}
	s.batches = append(s.batches, b)
	return b, nil
}

// BatchFromSnapshot reloads a batch from a snapshot file and tracks it in
// the session.
func (s *Session) BatchFromSnapshot(path string) (*batch.Batch, error) {
	b, err := batch.LoadSnapshot(path, s.client, s.log)
	if err != nil {
		return nil, err
	}
	s.batches = append(s.batches, b)
	return b, nil
}

// Batches returns the batches tracked by this session, in creation order.
func (s *Session) Batches() []*batch.Batch {
	return s.batches
}

// AwaitAll waits for every tracked batch to complete within one shared
// timeout budget. On timeout it keeps polling the remaining batches once
// each so partial progress is captured, then reports the total number of
// jobs still pending.
func (s *Session) AwaitAll(ctx context.Context, interval, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	remaining := 0
	for _, b := range s.batches {
		budget := time.Until(deadline)
		if budget < 0 {
			budget = 0
		}
		if err := b.AwaitCompletion(ctx, interval, budget); err != nil {
			var te *batch.TimeoutError
			if errors.As(err, &te) {
				remaining += te.Remaining
				continue
			}
			return err
		}
	}
	if remaining > 0 {
		return &batch.TimeoutError{Timeout: timeout, Remaining: remaining}
	}
	return nil
}

// ListBatches returns summaries of batches submitted over the trailing n
// days.
func (s *Session) ListBatches(ctx context.Context, days int) ([]model.BatchListEntry, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive, got %d", days)
	}
	end := time.Now()
	return s.client.ListBatches(ctx, end.AddDate(0, 0, -days), end)
}

// UsageStats returns per-generator job counts over the trailing n days.
func (s *Session) UsageStats(ctx context.Context, days int) (*model.UsageStats, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive, got %d", days)
	}
	end := time.Now()
	return s.client.GetUsageRange(ctx, end.AddDate(0, 0, -days), end)
}
