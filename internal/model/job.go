package model

// JobParams maps generator parameter names to scalar values.
type JobParams map[string]any

// Clone returns a shallow copy of the parameter map. Parameter values are
// scalars, so a shallow copy is a full copy.
func (p JobParams) Clone() JobParams {
	if p == nil {
		return nil
	}
	out := make(JobParams, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// JobKind distinguishes cheap preview renders from full-fidelity jobs.
type JobKind string

const (
	JobKindPreview  JobKind = "preview"
	JobKindStandard JobKind = "standard"
)

// JobState is the locally tracked lifecycle state of a remote job.
type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
	// JobStateErrored is the forward-compatible bucket for remote statuses
	// this client does not recognize.
	JobStateErrored JobState = "errored"
)

// Terminal reports whether the state can no longer change.
func (s JobState) Terminal() bool {
	return s == JobStateSucceeded || s == JobStateFailed || s == JobStateErrored
}

// Job is one unit of remote work derived from one parameter specification.
// Jobs are created on batch submission and mutated only by polling.
type Job struct {
	ID        string    `json:"id"`
	BatchID   string    `json:"batchId"`
	Params    JobParams `json:"params"`
	State     JobState  `json:"state"`
	ResultURL string    `json:"resultUrl,omitempty"`
	Error     string    `json:"error,omitempty"`
}
