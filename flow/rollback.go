package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/tidelake/flow/flow/emit"
)

// rollback invokes the compensations of the completed steps in
// reverse-completion order. Rollback is best-effort: a failing compensation
// is appended to the run error's RollbackErrors and the coordinator
// continues with the rest. It never runs for halted or checkpointed runs.
//
// The completed list is maintained most-recent-first during execution, so
// iterating it forward is already the reverse-completion order.
func (rn *run) rollback(ctx context.Context, cause *Error) {
	// Compensations run even when the run was cancelled; cleanup must not
	// be skipped because the trigger was a dead context.
	ctx = context.WithoutCancel(ctx)

	for _, name := range rn.completed {
		s, ok := rn.wf.index[name]
		if !ok || s.rollback == nil {
			continue
		}

		rn.fireRollbackHooks(name)
		rn.event(emit.RollbackStart, name, 0, "", 0, nil)
		start := time.Now()

		err := rn.invokeRollback(ctx, name, s.rollback)

		result := "ok"
		if err != nil {
			result = "error"
			cause.RollbackErrors = append(cause.RollbackErrors, RollbackError{Step: name, Err: err})
		}
		rn.event(emit.RollbackStop, name, 0, result, time.Since(start), nil)
		rn.runner.metrics.recordRollback(rn.wf.name, name, result)
		if rn.report != nil {
			rn.report.markRolledBack(name, err)
		}
	}
}

// invokeRollback calls one compensation with panic recovery.
func (rn *run) invokeRollback(ctx context.Context, name string, fn RollbackFunc) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("rollback of %q panicked: %v", name, rec)
			rn.event(emit.RollbackException, name, 0, "error", 0,
				map[string]any{"panic": fmt.Sprintf("%v", rec)})
		}
	}()
	return fn(ctx, rn.data)
}
