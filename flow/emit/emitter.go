package emit

import "context"

// Emitter receives telemetry events from workflow execution.
//
// Implementations must be safe for concurrent use, must not block execution,
// and must not panic; delivery failures are theirs to log or drop.
type Emitter interface {
	// Emit sends one event.
	Emit(event Event)

	// EmitBatch sends multiple events in order. Individual delivery
	// failures are logged, not returned; an error indicates the emitter
	// itself is unusable.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until buffered events are delivered or ctx expires.
	// Safe to call repeatedly.
	Flush(ctx context.Context) error
}
