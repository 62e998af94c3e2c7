package flow

import "context"

// Services is a named mapping from service identifier to implementation,
// injected per run. Bodies that need collaborators (repositories, clients,
// clocks) read them back with ServicesFrom instead of closing over globals,
// which keeps workflows testable with substitute implementations.
type Services map[string]any

// contextKey is a private type for context value keys to avoid collisions.
type contextKey string

const (
	// execIDKey carries the unique execution identifier.
	execIDKey contextKey = "flow.exec_id"

	// workflowKey carries the running workflow's name.
	workflowKey contextKey = "flow.workflow"

	// stepKey carries the currently executing step name.
	stepKey contextKey = "flow.step"

	// attemptKey carries the current retry attempt (1-based).
	attemptKey contextKey = "flow.attempt"

	// servicesKey carries the per-run Services mapping.
	servicesKey contextKey = "flow.services"
)

// ServicesFrom returns the Services injected for the current run, or nil
// when the body is executing outside a run.
func ServicesFrom(ctx context.Context) Services {
	s, _ := ctx.Value(servicesKey).(Services)
	return s
}

// WorkflowFrom returns the name of the running workflow.
func WorkflowFrom(ctx context.Context) string {
	name, _ := ctx.Value(workflowKey).(string)
	return name
}

// ExecIDFrom returns the execution identifier for the current run.
func ExecIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(execIDKey).(string)
	return id
}

// StepFrom returns the name of the currently executing step.
func StepFrom(ctx context.Context) string {
	s, _ := ctx.Value(stepKey).(string)
	return s
}

// AttemptFrom returns the 1-based attempt number of the current execution.
func AttemptFrom(ctx context.Context) int {
	a, _ := ctx.Value(attemptKey).(int)
	return a
}
