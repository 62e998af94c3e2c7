package emit

import "context"

// NullEmitter discards every event. It is the default when no emitter is
// configured, keeping the hot path free of nil checks.
type NullEmitter struct{}

// NewNullEmitter creates an emitter that drops everything.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit discards the event.
func (*NullEmitter) Emit(Event) {}

// EmitBatch discards the events.
func (*NullEmitter) EmitBatch(context.Context, []Event) error { return nil }

// Flush has nothing to deliver.
func (*NullEmitter) Flush(context.Context) error { return nil }
