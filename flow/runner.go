package flow

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/tidelake/flow/flow/emit"
	"github.com/tidelake/flow/flow/store"
)

// Status is the terminal state of a run.
type Status int

const (
	// StatusOK means every step finished (or was skipped) cleanly.
	StatusOK Status = iota

	// StatusFailed means a step failed and completed steps were rolled
	// back.
	StatusFailed

	// StatusHalted means a body ended the run early with Halt; no
	// rollback.
	StatusHalted

	// StatusCheckpointed means the run paused at a checkpoint; resume with
	// Runner.Resume.
	StatusCheckpointed

	// StatusCancelled means the run's context was cancelled; completed
	// steps were rolled back.
	StatusCancelled
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	case StatusHalted:
		return "halted"
	case StatusCheckpointed:
		return "checkpointed"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Outcome is the result of one Run or Resume invocation.
type Outcome struct {
	Status   Status
	Workflow string
	ExecID   string

	// Context is the attribute mapping at the end of the run: the final
	// context for ok, the pause-point context for checkpointed, and the
	// context at failure otherwise.
	Context *Context

	// Checkpoint names the pause point for checkpointed outcomes.
	Checkpoint string

	// HaltReason carries the Halt reason for halted outcomes.
	HaltReason string

	// Err is the structured failure for failed and cancelled outcomes.
	Err *Error

	// Report is populated when the run was started with WithReport.
	Report *Report
}

// Runner executes workflows. A Runner is immutable after construction and
// safe for concurrent runs of any number of workflows.
type Runner struct {
	emitter emit.Emitter
	metrics *Metrics
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithEmitter directs telemetry events to e.
func WithEmitter(e emit.Emitter) RunnerOption {
	return func(r *Runner) {
		if e != nil {
			r.emitter = e
		}
	}
}

// WithMetrics enables Prometheus collection through m.
func WithMetrics(m *Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner creates a Runner. Without options, telemetry is discarded and
// metrics are disabled.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{emitter: emit.NewNullEmitter()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// runConfig is the per-run configuration assembled from RunOptions.
type runConfig struct {
	timeout  time.Duration
	report   bool
	debug    bool
	services Services
}

// RunOption configures a single run.
type RunOption func(*runConfig)

// WithTimeout bounds the whole run; exceeding it fails the run with a
// timeout error and triggers rollback.
func WithTimeout(d time.Duration) RunOption {
	return func(c *runConfig) { c.timeout = d }
}

// WithReport collects a per-step execution report on the Outcome.
func WithReport() RunOption {
	return func(c *runConfig) { c.report = true }
}

// WithDebug enriches step telemetry with context keys.
func WithDebug() RunOption {
	return func(c *runConfig) { c.debug = true }
}

// WithServices overrides the workflow's services mapping for this run.
func WithServices(s Services) RunOption {
	return func(c *runConfig) { c.services = s }
}

// defaultRunner backs the package-level Run/Resume conveniences.
var defaultRunner = NewRunner()

// Run executes wf with the default runner (no telemetry, no metrics).
func Run(ctx context.Context, wf *Workflow, initial map[string]any, opts ...RunOption) (*Outcome, error) {
	return defaultRunner.Run(ctx, wf, initial, opts...)
}

// Resume continues a checkpointed execution with the default runner.
func Resume(ctx context.Context, wf *Workflow, execID string, opts ...RunOption) (*Outcome, error) {
	return defaultRunner.Resume(ctx, wf, execID, opts...)
}

// Run executes the workflow from the beginning with the given initial
// context. The returned error is non-nil exactly when the outcome is failed
// or cancelled, and is always the Outcome's *Error. A nil workflow returns a
// nil Outcome and an invalid-graph *Error.
func (r *Runner) Run(ctx context.Context, wf *Workflow, initial map[string]any, opts ...RunOption) (*Outcome, error) {
	if wf == nil {
		return nil, &Error{Step: "dag", Tag: TagInvalidGraph, Reason: errors.New("nil workflow")}
	}
	execID := uuid.NewString()
	return r.start(ctx, wf, execID, NewContext(initial), nil, 0, opts)
}

// Resume loads the checkpointed state for execID and continues with the
// steps after the checkpoint. Every checkpoint registered on the workflow
// is probed in declaration order; the first store holding state for the ID
// wins.
func (r *Runner) Resume(ctx context.Context, wf *Workflow, execID string, opts ...RunOption) (*Outcome, error) {
	if wf == nil {
		return nil, &Error{Step: "dag", Tag: TagInvalidGraph, Reason: errors.New("nil workflow")}
	}

	snap, err := r.loadSnapshot(ctx, wf, execID)
	if err != nil {
		e := &Error{
			Step:     "checkpoint",
			Workflow: wf.name,
			ExecID:   execID,
			Tag:      TagOf(err),
			Reason:   err,
		}
		return &Outcome{Status: StatusFailed, Workflow: wf.name, ExecID: execID, Err: e}, e
	}

	if snap.Workflow != wf.name {
		reason := Tagf(TagEffectMismatch, "checkpoint belongs to workflow %q, not %q", snap.Workflow, wf.name)
		e := &Error{Step: snap.Checkpoint, Workflow: wf.name, ExecID: execID, Tag: TagEffectMismatch, Reason: reason}
		return &Outcome{Status: StatusFailed, Workflow: wf.name, ExecID: execID, Err: e}, e
	}

	resumeAt := -1
	for i, name := range wf.order {
		if name == snap.Checkpoint {
			resumeAt = i + 1
			break
		}
	}
	if resumeAt < 0 {
		reason := Tagf(TagEffectMismatch, "checkpoint %q does not exist in workflow %q", snap.Checkpoint, wf.name)
		e := &Error{Step: snap.Checkpoint, Workflow: wf.name, ExecID: execID, Tag: TagEffectMismatch, Reason: reason}
		return &Outcome{Status: StatusFailed, Workflow: wf.name, ExecID: execID, Err: e}, e
	}

	data := contextFromSnapshot(snap)
	completed := append([]string(nil), snap.Completed...)
	return r.start(ctx, wf, execID, data, completed, resumeAt, opts)
}

// loadSnapshot probes the workflow's registered checkpoints for execID.
func (r *Runner) loadSnapshot(ctx context.Context, wf *Workflow, execID string) (store.Snapshot, error) {
	if len(wf.checkpoints) == 0 {
		return store.Snapshot{}, Tagf(TagCheckpointNotFound, "workflow %q registers no checkpoints", wf.name)
	}
	var lastErr error
	for _, cp := range wf.checkpoints {
		spec := cp.meta.(*checkpointSpec)
		snap, err := spec.store.Load(ctx, execID)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			lastErr = err
		}
	}
	if lastErr != nil {
		return store.Snapshot{}, Tagged(TagCheckpointNotFound, lastErr)
	}
	return store.Snapshot{}, Tagf(TagCheckpointNotFound, "no checkpoint state for execution %q", execID)
}

// contextFromSnapshot rebuilds a Context preserving the snapshot's key
// order. Keys recorded without a value (pruned externally) are dropped.
func contextFromSnapshot(snap store.Snapshot) *Context {
	c := &Context{values: make(map[string]any, len(snap.Context))}
	for _, k := range snap.ContextKeys {
		if v, ok := snap.Context[k]; ok {
			c.keys = append(c.keys, k)
			c.values[k] = v
		}
	}
	return c
}

// newRunRNG seeds the per-run random source (retry jitter) from the
// execution ID, so two runs never share a jitter sequence and a given run's
// delays are reproducible.
func newRunRNG(execID string) *rand.Rand {
	sum := sha256.Sum256([]byte(execID))
	seed := int64(binary.BigEndian.Uint64(sum[:8])) // #nosec G115 -- seed derivation
	return rand.New(rand.NewSource(seed))           // #nosec G404 -- jitter timing, not security
}

// run carries the mutable state of one execution.
type run struct {
	runner *Runner
	wf     *Workflow
	cfg    runConfig
	execID string

	data *Context

	// completed holds finished step names, most recent first, which is
	// exactly the rollback order.
	completed []string

	attempts  map[string]int
	durations map[string]time.Duration
	report    *Report
	services  Services
	rng       *rand.Rand
	started   time.Time
}

// start assembles the run state and walks the order from startIdx.
func (r *Runner) start(ctx context.Context, wf *Workflow, execID string, data *Context, completed []string, startIdx int, opts []RunOption) (*Outcome, error) {
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	services := wf.services
	if cfg.services != nil {
		services = cfg.services
	}

	rn := &run{
		runner:    r,
		wf:        wf,
		cfg:       cfg,
		execID:    execID,
		data:      data,
		completed: completed,
		attempts:  make(map[string]int),
		durations: make(map[string]time.Duration),
		services:  services,
		rng:       newRunRNG(execID),
		started:   time.Now(),
	}
	if cfg.report {
		rn.report = &Report{Workflow: wf.name, ExecID: execID}
	}

	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}
	ctx = context.WithValue(ctx, execIDKey, execID)
	ctx = context.WithValue(ctx, workflowKey, wf.name)
	if services != nil {
		ctx = context.WithValue(ctx, servicesKey, services)
	}

	rn.event(emit.RunStart, "", 0, "", 0, nil)
	rn.fireStartHooks()

	out := rn.walk(ctx, startIdx)

	rn.runEnsure(out)
	if out.Err != nil {
		return out, out.Err
	}
	return out, nil
}

// walk executes the topological order from startIdx and produces the
// outcome.
func (rn *run) walk(ctx context.Context, startIdx int) *Outcome {
	order := rn.wf.order
	for i := startIdx; i < len(order); i++ {
		if err := ctx.Err(); err != nil {
			return rn.finishInterrupted(ctx, err)
		}

		s := rn.wf.index[order[i]]

		if s.when != nil && !s.when(rn.data) {
			rn.event(emit.StepSkip, s.name, 0, "skipped", 0, nil)
			rn.addReport(StepReport{Name: s.name, Status: StepSkipped})
			continue
		}

		delta, err := rn.executeStep(ctx, s)
		if err == nil {
			added := rn.data.Merge(delta)
			rn.completed = append([]string{s.name}, rn.completed...)
			rn.addReport(StepReport{
				Name:      s.name,
				Status:    StepOK,
				Duration:  rn.durations[s.name],
				Attempts:  rn.attempts[s.name],
				AddedKeys: added,
			})
			rn.stepStop(s, "ok", nil)
			continue
		}

		if reason, ok := haltReason(err); ok {
			rn.stepStop(s, "halted", nil)
			return rn.finish(&Outcome{Status: StatusHalted, HaltReason: reason}, true)
		}

		var pause *pauseError
		if errors.As(err, &pause) {
			// A paused run is not complete: no completion hooks.
			return rn.finish(&Outcome{Status: StatusCheckpointed, Checkpoint: pause.name}, false)
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return rn.finishInterrupted(ctx, ctxErr)
		}

		switch s.onError {
		case ErrorSkip:
			rn.event(emit.StepSkip, s.name, rn.attempts[s.name], "skipped", rn.durations[s.name],
				map[string]any{"error": err.Error()})
			rn.addReport(StepReport{
				Name:     s.name,
				Status:   StepSkipped,
				Duration: rn.durations[s.name],
				Attempts: rn.attempts[s.name],
				Reason:   err,
			})
			continue
		case ErrorContinue:
			rn.stepStop(s, "error", err)
			rn.addReport(StepReport{
				Name:     s.name,
				Status:   StepError,
				Duration: rn.durations[s.name],
				Attempts: rn.attempts[s.name],
				Reason:   err,
			})
			continue
		}

		return rn.fail(ctx, s, err)
	}

	return rn.finish(&Outcome{Status: StatusOK}, true)
}

// fail builds the structured error for the failing step, runs the rollback
// coordinator, and produces the failed outcome.
func (rn *run) fail(ctx context.Context, s *Step, err error) *Outcome {
	rn.stepStop(s, "error", err)
	rn.addReport(StepReport{
		Name:     s.name,
		Status:   StepError,
		Duration: rn.durations[s.name],
		Attempts: rn.attempts[s.name],
		Reason:   err,
	})
	rn.fireErrorHooks(s.name, err)

	e := &Error{
		Step:            s.name,
		Workflow:        rn.wf.name,
		ExecID:          rn.execID,
		Reason:          err,
		Tag:             TagOf(err),
		Attempts:        rn.attempts[s.name],
		Duration:        rn.durations[s.name],
		ContextSnapshot: rn.data.Map(),
	}
	var nested *NestedError
	if errors.As(err, &nested) {
		e.Meta = map[string]any{"nested_effect": nested.Workflow, "nested_error": nested.Err}
	}

	// A failed parallel group names the failing substep; the group itself
	// is recorded as metadata. When substeps completed before the failure,
	// the group's own compensation cleans up their side effects even though
	// the group never completed.
	var perr *ParallelError
	if errors.As(err, &perr) && perr.Failed != "" {
		e.Step = perr.Failed
		if e.Meta == nil {
			e.Meta = map[string]any{}
		}
		e.Meta["group"] = perr.Group
		e.Meta["completed_before_failure"] = perr.Completed
		if s.rollback != nil && len(perr.Completed) > 0 {
			rn.completed = append([]string{s.name}, rn.completed...)
		}
	}

	rn.rollback(ctx, e)

	out := &Outcome{Status: StatusFailed, Err: e}
	return rn.finish(out, false)
}

// finishInterrupted handles run-level cancellation and timeout: completed
// work is rolled back and the run ends cancelled (or failed with a timeout
// tag when the run deadline expired).
func (rn *run) finishInterrupted(ctx context.Context, ctxErr error) *Outcome {
	tag := TagCancelled
	status := StatusCancelled
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		tag = TagTimeout
		status = StatusFailed
	}
	e := &Error{
		Workflow:        rn.wf.name,
		ExecID:          rn.execID,
		Reason:          Tagged(tag, ctxErr),
		Tag:             tag,
		ContextSnapshot: rn.data.Map(),
	}
	rn.event(emit.StepCancel, "", 0, "cancelled", 0, map[string]any{"error": ctxErr.Error()})
	rn.rollback(ctx, e)
	return rn.finish(&Outcome{Status: status, Err: e}, false)
}

// finish fills the shared outcome fields and emits run.stop.
func (rn *run) finish(out *Outcome, complete bool) *Outcome {
	out.Workflow = rn.wf.name
	out.ExecID = rn.execID
	out.Context = rn.data
	if rn.report != nil {
		rn.report.Duration = time.Since(rn.started)
		out.Report = rn.report
	}
	if complete && out.Status == StatusOK {
		rn.fireCompleteHooks()
	}
	rn.event(emit.RunStop, "", 0, out.Status.String(), time.Since(rn.started), nil)
	rn.runner.metrics.recordRun(rn.wf.name, out.Status.String())
	return out
}

// executeStep runs one step through the middleware stack with retry,
// timeout, catch, and fallback handling. The returned mapping is the
// step's context contribution.
func (rn *run) executeStep(ctx context.Context, s *Step) (map[string]any, error) {
	handler := chain(rn.wf.middleware, func(ctx context.Context, _ string, c *Context) (map[string]any, error) {
		return rn.dispatch(ctx, s, c)
	})

	rn.runner.metrics.stepStarted()
	defer rn.runner.metrics.stepFinished()

	start := time.Now()
	defer func() {
		rn.durations[s.name] = time.Since(start)
	}()

	attempt := 0
	for {
		attempt++
		rn.attempts[s.name] = attempt

		stepCtx := context.WithValue(ctx, stepKey, s.name)
		stepCtx = context.WithValue(stepCtx, attemptKey, attempt)

		rn.event(emit.StepStart, s.name, attempt, "", 0, nil)
		delta, err := rn.attemptOnce(stepCtx, s, handler)
		if err == nil {
			rn.runner.metrics.recordStep(rn.wf.name, s.kind, s.name, "ok", time.Since(start))
			return delta, nil
		}

		// Halt, pause, and run interruption are never retried or recovered.
		if _, halted := haltReason(err); halted {
			return nil, err
		}
		var pause *pauseError
		if errors.As(err, &pause) {
			return nil, err
		}
		if ctx.Err() != nil {
			rn.runner.metrics.recordStep(rn.wf.name, s.kind, s.name, "cancelled", time.Since(start))
			return nil, err
		}

		if s.retry != nil && attempt < s.retry.MaxAttempts && s.retry.retryable(err) {
			delay := s.retry.Delay(attempt, rn.rng)
			rn.event(emit.StepRetry, s.name, attempt, "error", time.Since(start),
				map[string]any{"error": err.Error(), "delay_ms": delay.Milliseconds()})
			rn.runner.metrics.recordRetry(rn.wf.name, s.name)
			if serr := sleep(ctx, delay); serr != nil {
				return nil, Tagged(TagCancelled, serr)
			}
			continue
		}
		if s.retry != nil && attempt >= s.retry.MaxAttempts && s.retry.MaxAttempts > 1 {
			err = Tagged(TagMaxAttemptsExceeded, err)
		}

		if s.catch != nil {
			delta, cerr := s.catch(err, rn.data)
			if cerr == nil {
				rn.runner.metrics.recordStep(rn.wf.name, s.kind, s.name, "ok", time.Since(start))
				return delta, nil
			}
			err = cerr
		}

		if s.fallback != nil && s.fallback.matches(TagOf(err)) {
			rn.runner.metrics.recordStep(rn.wf.name, s.kind, s.name, "ok", time.Since(start))
			return s.fallback.Value, nil
		}

		rn.runner.metrics.recordStep(rn.wf.name, s.kind, s.name, "error", time.Since(start))
		return nil, err
	}
}

// attemptOnce runs a single attempt, enforcing the step's per-attempt
// timeout and recovering panics into step exceptions.
func (rn *run) attemptOnce(ctx context.Context, s *Step, h Handler) (map[string]any, error) {
	if s.timeout <= 0 {
		return rn.invoke(ctx, s, h)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		delta map[string]any
		err   error
	}
	done := make(chan result, 1)
	go func() {
		delta, err := rn.invoke(attemptCtx, s, h)
		done <- result{delta, err}
	}()

	select {
	case res := <-done:
		if res.err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, Tagf(TagTimeout, "step %q exceeded timeout of %v", s.name, s.timeout)
		}
		return res.delta, res.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, Tagged(TagCancelled, ctx.Err())
		}
		// The body was signalled to stop; it may still be winding down.
		return nil, Tagf(TagTimeout, "step %q exceeded timeout of %v", s.name, s.timeout)
	}
}

// invoke calls the handler with panic recovery.
func (rn *run) invoke(ctx context.Context, s *Step, h Handler) (delta map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("step %q panicked: %v", s.name, rec)
			rn.event(emit.StepException, s.name, rn.attempts[s.name], "error", 0,
				map[string]any{"panic": fmt.Sprintf("%v", rec)})
		}
	}()
	return h(ctx, s.name, rn.data)
}

// dispatch routes a step to its kind-specific executor.
func (rn *run) dispatch(ctx context.Context, s *Step, c *Context) (map[string]any, error) {
	switch s.kind {
	case KindParallel:
		return rn.runParallel(ctx, s, c)
	case KindBranch:
		return rn.runBranch(ctx, s, c)
	case KindEmbed:
		return rn.runEmbed(ctx, s, c)
	case KindEach:
		return rn.runEach(ctx, s, c)
	case KindRace:
		return rn.runRace(ctx, s, c)
	case KindUsing:
		return rn.runUsing(ctx, s, c)
	case KindCheckpoint:
		return rn.runCheckpoint(ctx, s, c)
	default:
		return s.body(ctx, c)
	}
}

// runNested executes a nested workflow inline: a full sub-run sharing the
// parent's runner, services, and cancellation, with its own execution ID.
// The nested run rolls back its own completed steps on failure.
func (rn *run) runNested(ctx context.Context, wf *Workflow, initial *Context) (*Context, error) {
	var opts []RunOption
	if wf.services == nil && rn.services != nil {
		opts = append(opts, WithServices(rn.services))
	}
	out, err := rn.runner.start(ctx, wf, uuid.NewString(), initial, nil, 0, opts)
	if err != nil {
		return nil, &NestedError{Workflow: wf.name, Err: err}
	}
	switch out.Status {
	case StatusOK:
		return out.Context, nil
	case StatusHalted:
		return nil, Halt(out.HaltReason)
	case StatusCheckpointed:
		return nil, &NestedError{
			Workflow: wf.name,
			Err:      Tagf(TagNestedEffectFailed, "nested workflow %q paused at checkpoint %q", wf.name, out.Checkpoint),
		}
	default:
		return nil, &NestedError{Workflow: wf.name, Err: fmt.Errorf("nested workflow %q ended %s", wf.name, out.Status)}
	}
}

// NestedError wraps a nested workflow failure surfaced by embed, branch,
// each, race, or using steps.
type NestedError struct {
	Workflow string
	Err      error
}

// Error implements the error interface.
func (e *NestedError) Error() string {
	return fmt.Sprintf("nested workflow %s failed: %v", e.Workflow, e.Err)
}

// Unwrap returns the nested failure.
func (e *NestedError) Unwrap() error {
	return e.Err
}

// stepStop emits the step.stop event for a finished step.
func (rn *run) stepStop(s *Step, result string, err error) {
	meta := map[string]any{}
	if err != nil {
		meta["error"] = err.Error()
	}
	if rn.cfg.debug {
		meta["context_keys"] = rn.data.Keys()
	}
	if len(meta) == 0 {
		meta = nil
	}
	rn.event(emit.StepStop, s.name, rn.attempts[s.name], result, rn.durations[s.name], meta)
}

// event emits one telemetry event with the run identity filled in.
func (rn *run) event(name, step string, attempt int, result string, d time.Duration, meta map[string]any) {
	rn.runner.emitter.Emit(emit.Event{
		Name:      name,
		Workflow:  rn.wf.name,
		ExecID:    rn.execID,
		Step:      step,
		Attempt:   attempt,
		Result:    result,
		Duration:  d,
		Monotonic: int64(time.Since(rn.started)),
		Meta:      meta,
	})
}

func (rn *run) addReport(sr StepReport) {
	if rn.report != nil {
		rn.report.add(sr)
	}
}

// Hooks are best-effort: panics are recovered and reported as exceptions.

func (rn *run) fireStartHooks() {
	for _, fn := range rn.wf.hooks.OnStart {
		rn.safeHook("on_start", func() { fn(rn.wf.name, rn.data) })
	}
}

func (rn *run) fireCompleteHooks() {
	for _, fn := range rn.wf.hooks.OnComplete {
		rn.safeHook("on_complete", func() { fn(rn.wf.name, rn.data) })
	}
}

func (rn *run) fireErrorHooks(step string, err error) {
	for _, fn := range rn.wf.hooks.OnError {
		rn.safeHook("on_error", func() { fn(step, err, rn.data) })
	}
}

func (rn *run) fireRollbackHooks(step string) {
	for _, fn := range rn.wf.hooks.OnRollback {
		rn.safeHook("on_rollback", func() { fn(step, rn.data) })
	}
}

func (rn *run) safeHook(name string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			rn.event(emit.RunException, "", 0, "", 0,
				map[string]any{"hook": name, "panic": fmt.Sprintf("%v", rec)})
		}
	}()
	fn()
}

// runEnsure invokes the workflow's ensure functions exactly once with the
// terminal outcome. Their panics are swallowed.
func (rn *run) runEnsure(out *Outcome) {
	for _, fn := range rn.wf.ensure {
		rn.safeHook("ensure", func() { fn(out) })
	}
}
