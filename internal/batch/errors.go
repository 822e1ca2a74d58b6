package batch

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyBatch rejects submissions with zero job specs.
var ErrEmptyBatch = errors.New("batch must contain at least one job spec")

// ErrDirectoryInUse means a download destination already holds artifacts of a
// different batch.
var ErrDirectoryInUse = errors.New("destination directory belongs to a different batch")

// ViolationKind classifies a single parameter constraint violation.
type ViolationKind string

const (
	ViolationUnsupported ViolationKind = "unsupported"
	ViolationType        ViolationKind = "type"
	ViolationMin         ViolationKind = "min"
	ViolationMax         ViolationKind = "max"
	ViolationChoices     ViolationKind = "choices"
	ViolationPreview     ViolationKind = "preview"
)

// Violation records one constraint violation in one job spec. JobIndex is
// the spec's position in the submitted sequence; -1 for batch-level
// violations such as preview gating.
type Violation struct {
	JobIndex   int
	Param      string
	Kind       ViolationKind
	Constraint any
	Value      any
}

func (v Violation) String() string {
	switch v.Kind {
	case ViolationUnsupported:
		return fmt.Sprintf("job %d: parameter %q is not supported by the generator", v.JobIndex, v.Param)
	case ViolationType:
		return fmt.Sprintf("job %d: parameter %q expected type %v, got %v (%T)", v.JobIndex, v.Param, v.Constraint, v.Value, v.Value)
	case ViolationPreview:
		return fmt.Sprintf("previews are not supported by generator %v", v.Constraint)
	default:
		return fmt.Sprintf("job %d: parameter %q violated constraint %s (%v) with value %v", v.JobIndex, v.Param, v.Kind, v.Constraint, v.Value)
	}
}

// ValidationError enumerates every constraint violation found across all job
// specs of an attempted submission.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return fmt.Sprintf("invalid job parameters (%d violations): %s", len(e.Violations), strings.Join(msgs, "; "))
}

// SubmissionError is a protocol-contract violation between the submission
// request and the remote response.
type SubmissionError struct {
	Reason   string
	Expected int
	Got      int
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("batch submission failed: %s (expected %d, got %d)", e.Reason, e.Expected, e.Got)
}

// TimeoutError means AwaitCompletion exceeded its budget with jobs still
// pending. Batch state up to the timeout is preserved.
type TimeoutError struct {
	Timeout   time.Duration
	Remaining int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("batch completion exceeded timeout of %s with %d jobs still pending", e.Timeout, e.Remaining)
}

// DownloadFailure records a fetch or write failure for one job's artifact.
type DownloadFailure struct {
	JobID string
	Err   error
}

// PartialDownloadError aggregates per-job failures from a download pass.
// Remaining artifacts were still attempted.
type PartialDownloadError struct {
	Failures []DownloadFailure
}

func (e *PartialDownloadError) Error() string {
	ids := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		ids[i] = f.JobID
	}
	return fmt.Sprintf("%d artifacts failed to download (job IDs: %s)", len(e.Failures), strings.Join(ids, ", "))
}
