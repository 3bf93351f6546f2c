package translate

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest is returned (wrapped) when a request fails validation.
// Nothing has been looked up, generated or stored when it is returned.
var ErrInvalidRequest = errors.New("translate: invalid request")

// Stage names used in spans, metrics and [OrchestrationError].
const (
	StageLookup    = "knowledge_lookup"
	StageSearch    = "web_search"
	StageAnalysis  = "analysis"
	StageEmbedding = "embedding"
	StagePersist   = "persist"
	StageAnalytics = "analytics"
)

// Outcome is how a single pipeline stage finished.
type Outcome int

const (
	// OutcomeSuccess means the stage produced its value.
	OutcomeSuccess Outcome = iota

	// OutcomeDegraded means the stage failed or was unavailable and the
	// pipeline continued with a substitute value.
	OutcomeDegraded

	// OutcomeSkipped means the stage did not need to run.
	OutcomeSkipped

	// OutcomeFailed means the stage failed and the request cannot complete.
	OutcomeFailed
)

// String returns the lower-case name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeDegraded:
		return "degraded"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StageResult carries the value of one stage together with how it finished.
// Err is set for degraded and failed outcomes.
type StageResult[T any] struct {
	Value   T
	Outcome Outcome
	Err     error
}

func succeeded[T any](v T) StageResult[T] {
	return StageResult[T]{Value: v, Outcome: OutcomeSuccess}
}

func degraded[T any](v T, err error) StageResult[T] {
	return StageResult[T]{Value: v, Outcome: OutcomeDegraded, Err: err}
}

func skipped[T any](v T) StageResult[T] {
	return StageResult[T]{Value: v, Outcome: OutcomeSkipped}
}

// OrchestrationError reports the stage at which a translation failed.
type OrchestrationError struct {
	Stage string
	Err   error
}

// Error implements error.
func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("translate: stage %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *OrchestrationError) Unwrap() error { return e.Err }
