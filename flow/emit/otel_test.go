package emit

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingEmitter() (*OTelEmitter, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return NewOTelEmitter(tp.Tracer("flow-test")), recorder
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestOTelEmitter_SpanPerEvent(t *testing.T) {
	emitter, recorder := newRecordingEmitter()

	emitter.Emit(Event{
		Name:     StepStop,
		Workflow: "order",
		ExecID:   "exec-9",
		Step:     "charge",
		Attempt:  2,
		Result:   "ok",
		Duration: 40 * time.Millisecond,
	})

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name() != StepStop {
		t.Errorf("span name = %q", span.Name())
	}
	if v, ok := spanAttr(span, "flow.workflow"); !ok || v.AsString() != "order" {
		t.Errorf("flow.workflow attribute = %v", v)
	}
	if v, ok := spanAttr(span, "flow.step"); !ok || v.AsString() != "charge" {
		t.Errorf("flow.step attribute = %v", v)
	}
	if v, ok := spanAttr(span, "flow.attempt"); !ok || v.AsInt64() != 2 {
		t.Errorf("flow.attempt attribute = %v", v)
	}
	if v, ok := spanAttr(span, "flow.duration_ms"); !ok || v.AsInt64() != 40 {
		t.Errorf("flow.duration_ms attribute = %v", v)
	}
}

func TestOTelEmitter_ErrorResultSetsStatus(t *testing.T) {
	emitter, recorder := newRecordingEmitter()

	emitter.Emit(Event{
		Name:     StepStop,
		Workflow: "order",
		ExecID:   "exec-9",
		Step:     "charge",
		Result:   "error",
		Meta:     map[string]any{"error": "card declined"},
	})

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Description != "card declined" {
		t.Errorf("status = %+v", spans[0].Status())
	}
}

func TestOTelEmitter_EmitBatch(t *testing.T) {
	emitter, recorder := newRecordingEmitter()

	events := []Event{
		{Name: RunStart, Workflow: "w", ExecID: "x"},
		{Name: RunStop, Workflow: "w", ExecID: "x", Result: "ok"},
	}
	if err := emitter.EmitBatch(context.Background(), events); err != nil {
		t.Fatalf("EmitBatch: %v", err)
	}
	if got := len(recorder.Ended()); got != 2 {
		t.Errorf("expected 2 spans, got %d", got)
	}
}
