package flow

import (
	"context"
	"time"

	"github.com/tidelake/flow/flow/store"
)

// Kind identifies what a step does and which executor interprets it.
type Kind string

// Step kinds.
const (
	KindStep       Kind = "step"
	KindParallel   Kind = "parallel"
	KindBranch     Kind = "branch"
	KindEmbed      Kind = "embed"
	KindEach       Kind = "each"
	KindRace       Kind = "race"
	KindUsing      Kind = "using"
	KindCheckpoint Kind = "checkpoint"
	KindValidate   Kind = "validate"
	KindRequire    Kind = "require"
	KindTap        Kind = "tap"
	KindAssign     Kind = "assign"
)

// Body is a step's operation. It receives the execution context and returns
// the mapping of attributes it produced; the runtime merges that mapping
// into the run's context. Returning (nil, nil) is the empty success.
// Returning Halt(reason) as the error ends the run early without rollback.
//
// Run metadata (exec ID, step name, attempt) and the per-run Services are
// available through the context.Context accessors in this package.
type Body func(ctx context.Context, c *Context) (map[string]any, error)

// RollbackFunc compensates a completed step after the run fails. Rollback is
// best-effort: an error is collected on the run's Error, never surfaced as
// its own failure.
type RollbackFunc func(ctx context.Context, c *Context) error

// Predicate gates a step on the current context; false means skip.
type Predicate func(c *Context) bool

// CatchFunc maps a step failure to a replacement result. Returning a nil
// error recovers the step with the returned mapping.
type CatchFunc func(err error, c *Context) (map[string]any, error)

// Fallback supplies a default result when a step fails. With Tags set, the
// fallback applies only when the failure's tag matches one of them;
// otherwise it applies to any failure.
type Fallback struct {
	Value map[string]any
	Tags  []Tag
}

func (f *Fallback) matches(tag Tag) bool {
	if len(f.Tags) == 0 {
		return true
	}
	for _, t := range f.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ErrorMode controls what a step failure does to the rest of the run.
type ErrorMode int

const (
	// ErrorFail aborts the run and triggers rollback (the default).
	ErrorFail ErrorMode = iota

	// ErrorSkip records the failing step as skipped and proceeds.
	ErrorSkip

	// ErrorContinue records the failure on the report and proceeds.
	ErrorContinue
)

// FailureMode selects parallel group semantics on substep failure.
type FailureMode int

const (
	// FailFast cancels outstanding substeps on the first error.
	FailFast FailureMode = iota

	// Continue awaits every substep and surfaces the first error afterwards.
	Continue
)

// Group declares a parallel step: an ordered bag of substeps that all read
// the same pre-group context snapshot and whose results merge back in
// declaration order.
type Group struct {
	// Substeps run concurrently; declaration order fixes merge order.
	Substeps []Substep

	// OnError selects fail-fast or continue semantics.
	OnError FailureMode

	// Timeout bounds the whole group. Zero means the 30s default.
	Timeout time.Duration

	// MaxConcurrency bounds fan-out. Zero means twice GOMAXPROCS.
	MaxConcurrency int
}

// Substep is one member of a parallel Group.
type Substep struct {
	Name string
	Body Body
}

// Selector chooses a branch route key from the context.
type Selector func(c *Context) (string, error)

// Routes declares a branch step: a selector over the context and a route
// table. Route values are either a Body or a nested *Workflow.
type Routes struct {
	Selector Selector
	Routes   map[string]any

	// Default runs when the selected key has no route. Nil means an
	// unmatched key fails the step.
	Default any
}

// ContextFunc derives the context handed to a nested workflow from the
// parent context.
type ContextFunc func(c *Context) map[string]any

// ForEach declares an iteration step: a nested workflow executed once per
// extracted item, sequentially or with bounded concurrency.
type ForEach struct {
	// Extract produces the items from the context. An empty slice is valid
	// and binds Collect to an empty list without running Item.
	Extract func(c *Context) ([]any, error)

	// Item is the nested workflow run per item.
	Item *Workflow

	// As names the key under which each item is exposed to Item.
	As string

	// Collect names the key under which the per-item added mappings are
	// gathered, in input order.
	Collect string

	// Concurrency bounds parallel items; 0 or 1 iterates in order.
	Concurrency int
}

// RaceGroup declares a race step: nested workflows started concurrently
// where the first success wins and contributes the sole context merge.
type RaceGroup struct {
	Participants []*Workflow

	// Timeout bounds the race. Zero means the 30s default.
	Timeout time.Duration
}

// AcquireFunc obtains a scoped resource for a using step.
type AcquireFunc func(ctx context.Context, c *Context) (any, error)

// ReleaseFunc releases a scoped resource. It receives the final local
// context, the acquired resource, and the body's outcome (nil on success).
type ReleaseFunc func(ctx context.Context, c *Context, resource any, bodyErr error) error

// Resource declares a using step: scoped acquisition with guaranteed
// release around a nested workflow.
type Resource struct {
	Acquire AcquireFunc
	Release ReleaseFunc

	// Body runs against the parent snapshot plus the acquired resource
	// bound under As.
	Body *Workflow
	As   string
}

// embedSpec carries the meta of an embed step.
type embedSpec struct {
	wf        *Workflow
	contextFn ContextFunc
}

// checkpointSpec carries the meta of a checkpoint step.
type checkpointSpec struct {
	store store.Store
}

// Step is the immutable descriptor of one operation in a workflow. Steps
// are created by the Builder and never mutated afterwards.
type Step struct {
	name      string
	kind      Kind
	body      Body
	after     []string
	when      Predicate
	timeout   time.Duration
	retry     *RetryPolicy
	catch     CatchFunc
	fallback  *Fallback
	rollback  RollbackFunc
	onError   ErrorMode
	circuit   string
	rateLimit string
	meta      any
}

// Name returns the step's unique identifier within its workflow.
func (s *Step) Name() string { return s.name }

// Kind returns the step's kind.
func (s *Step) Kind() Kind { return s.kind }

// After returns the declared predecessor names.
func (s *Step) After() []string {
	out := make([]string, len(s.after))
	copy(out, s.after)
	return out
}

// HasRollback reports whether the step declares a compensation.
func (s *Step) HasRollback() bool { return s.rollback != nil }

// Circuit returns the declarative circuit-breaker tag, if any. The engine
// carries the tag for wrapper middleware; it does not enforce it.
func (s *Step) Circuit() string { return s.circuit }

// RateLimit returns the declarative rate-limit tag, if any. The engine
// carries the tag for wrapper middleware; it does not enforce it.
func (s *Step) RateLimit() string { return s.rateLimit }

// StepOption configures a step declaration.
type StepOption func(*Step)

// After declares explicit predecessors. A step with no After inherits a
// single implicit edge from the immediately prior declared step.
func After(names ...string) StepOption {
	return func(s *Step) { s.after = append(s.after, names...) }
}

// When gates the step on a context predicate; false marks it skipped.
func When(pred Predicate) StepOption {
	return func(s *Step) { s.when = pred }
}

// Timeout bounds a single attempt of the step.
func Timeout(d time.Duration) StepOption {
	return func(s *Step) { s.timeout = d }
}

// Retry attaches a retry policy to the step.
func Retry(p *RetryPolicy) StepOption {
	return func(s *Step) { s.retry = p }
}

// Rollback attaches a compensation invoked if the run fails after this step
// completed.
func Rollback(fn RollbackFunc) StepOption {
	return func(s *Step) { s.rollback = fn }
}

// Catch attaches an error handler that may transform a failure into a
// result.
func Catch(fn CatchFunc) StepOption {
	return func(s *Step) { s.catch = fn }
}

// WithFallback supplies a default result applied to any failure of the
// step.
func WithFallback(value map[string]any) StepOption {
	return func(s *Step) { s.fallback = &Fallback{Value: value} }
}

// FallbackOn supplies a default result applied only when the failure's tag
// matches one of tags.
func FallbackOn(value map[string]any, tags ...Tag) StepOption {
	return func(s *Step) { s.fallback = &Fallback{Value: value, Tags: tags} }
}

// OnError sets what a non-recovered failure of this step does to the run.
func OnError(mode ErrorMode) StepOption {
	return func(s *Step) { s.onError = mode }
}

// Circuit tags the step for an external circuit-breaker wrapper.
func Circuit(name string) StepOption {
	return func(s *Step) { s.circuit = name }
}

// RateLimit tags the step for an external rate-limiter wrapper.
func RateLimit(name string) StepOption {
	return func(s *Step) { s.rateLimit = name }
}
