package flow

import (
	"errors"
	"fmt"
	"time"
)

// Tag classifies a failure for recovery decisions and fallback matching.
type Tag string

// Failure tags surfaced by the engine.
const (
	TagInvalidGraph          Tag = "invalid_graph"
	TagInvalidStepReturn     Tag = "invalid_step_return"
	TagTimeout               Tag = "timeout"
	TagCancelled             Tag = "cancelled"
	TagSelectorError         Tag = "selector_error"
	TagNoMatchingBranch      Tag = "no_matching_branch"
	TagNestedEffectFailed    Tag = "nested_effect_failed"
	TagIterationFailed       Tag = "iteration_failed"
	TagRaceAllFailed         Tag = "race_all_failed"
	TagRaceTimeout           Tag = "race_timeout"
	TagAcquireFailed         Tag = "acquire_failed"
	TagReleaseFailed         Tag = "release_failed"
	TagBodyFailed            Tag = "body_failed"
	TagCheckpointStoreFailed Tag = "checkpoint_store_failed"
	TagCheckpointNotFound    Tag = "checkpoint_not_found"
	TagEffectMismatch        Tag = "effect_mismatch"
	TagMaxAttemptsExceeded   Tag = "max_attempts_exceeded"
	TagTransient             Tag = "transient"
	TagRateLimited           Tag = "rate_limited"
)

// ErrInvalidRetryPolicy is returned by RetryPolicy.Validate for policies
// that cannot be scheduled (non-positive attempts, cap below base).
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// Error is the structured failure produced when a run aborts. It carries
// everything needed to debug the failure after the fact: the failing step,
// the underlying reason, how many attempts were made, the context at the
// point of failure, and the outcome of every compensation that ran.
type Error struct {
	// Step is the name of the failing step, or "dag" for build failures.
	Step string

	// Reason is the underlying error returned by the step.
	Reason error

	// Tag classifies the failure; empty when the reason carries no tag.
	Tag Tag

	// Attempts is the number of execution attempts made (>= 1), zero for
	// failures outside a step body.
	Attempts int

	// Duration is the wall time spent in the failing step across attempts.
	Duration time.Duration

	// ContextSnapshot is the context at the point of failure.
	ContextSnapshot map[string]any

	// RollbackErrors collects compensations that themselves failed, in the
	// order they were attempted. Empty when every rollback succeeded or no
	// rollback ran.
	RollbackErrors []RollbackError

	// ExecID identifies the run; Workflow names the workflow.
	ExecID   string
	Workflow string

	// Meta carries kind-specific detail (nested errors, branch keys).
	Meta map[string]any
}

// RollbackError records a compensation that failed during rollback.
type RollbackError struct {
	Step string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("workflow %s: step %s: %v", e.Workflow, e.Step, e.Reason)
	}
	return fmt.Sprintf("workflow %s: %v", e.Workflow, e.Reason)
}

// Unwrap returns the underlying reason for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Reason
}

// Recoverable reports whether the failure is worth retrying at a higher
// level: timeouts, rate limits, and transient faults qualify.
func (e *Error) Recoverable() bool {
	switch e.Tag {
	case TagTimeout, TagRateLimited, TagTransient:
		return true
	}
	return false
}

// TaggedError attaches a Tag to an underlying error. Step bodies can return
// one (via Tagged) to drive fallback matching and recoverability; the engine
// builds them internally for every structured failure mode.
type TaggedError struct {
	Tag Tag
	Err error
}

// Tagged wraps err with a classification tag.
func Tagged(tag Tag, err error) error {
	return &TaggedError{Tag: tag, Err: err}
}

// Tagf wraps a formatted error with a classification tag.
func Tagf(tag Tag, format string, args ...any) error {
	return &TaggedError{Tag: tag, Err: fmt.Errorf(format, args...)}
}

// Error implements the error interface.
func (e *TaggedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Tag, e.Err)
}

// Unwrap returns the wrapped error.
func (e *TaggedError) Unwrap() error {
	return e.Err
}

// TagOf extracts the classification tag from an error chain, or "" when the
// chain carries none.
func TagOf(err error) Tag {
	var te *TaggedError
	if errors.As(err, &te) {
		return te.Tag
	}
	return ""
}

// haltError is the sentinel a body returns through Halt to end the run
// early without failure. It never triggers rollback.
type haltError struct {
	reason string
}

func (h *haltError) Error() string {
	return "halt: " + h.reason
}

// Halt builds the cooperative early-exit sentinel. A body that returns it
// ends the run with a halted outcome carrying reason; completed steps are
// not rolled back.
func Halt(reason string) error {
	return &haltError{reason: reason}
}

// haltReason reports whether err is (or wraps) a halt sentinel.
func haltReason(err error) (string, bool) {
	var h *haltError
	if errors.As(err, &h) {
		return h.reason, true
	}
	return "", false
}

// IterationError identifies the failing item when an each step aborts.
type IterationError struct {
	Index int
	Err   error
}

// Error implements the error interface.
func (e *IterationError) Error() string {
	return fmt.Sprintf("iteration failed at index %d: %v", e.Index, e.Err)
}

// Unwrap returns the per-item error.
func (e *IterationError) Unwrap() error {
	return e.Err
}

// RaceFailure records one losing participant of a race.
type RaceFailure struct {
	Index int
	Err   error
}

// RaceError aggregates the failures of a race in which no participant
// succeeded. Failures keep participant declaration order.
type RaceError struct {
	Failures []RaceFailure
	TimedOut bool
}

// Error implements the error interface.
func (e *RaceError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("race timed out with %d failures", len(e.Failures))
	}
	return fmt.Sprintf("race: all %d participants failed", len(e.Failures))
}
