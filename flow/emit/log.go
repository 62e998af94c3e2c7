package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// LogEmitter writes structured event lines to a writer.
//
// Text mode (default) is a human-readable key=value line:
//
//	[step.stop] workflow=order exec=V1StGXR8 step=charge attempt=1 result=ok duration=12ms
//
// JSON mode writes one JSON object per line for machine consumption.
type LogEmitter struct {
	mu       sync.Mutex
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter creates a LogEmitter writing to w (os.Stdout when nil).
func NewLogEmitter(w io.Writer, jsonMode bool) *LogEmitter {
	if w == nil {
		w = os.Stdout
	}
	return &LogEmitter{writer: w, jsonMode: jsonMode}
}

// Emit writes one event line.
func (l *LogEmitter) Emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.write(event)
}

// EmitBatch writes the events in order under a single lock acquisition.
func (l *LogEmitter) EmitBatch(_ context.Context, events []Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range events {
		l.write(e)
	}
	return nil
}

// Flush is a no-op; lines go straight to the writer.
func (l *LogEmitter) Flush(context.Context) error { return nil }

func (l *LogEmitter) write(event Event) {
	if l.jsonMode {
		l.writeJSON(event)
		return
	}
	l.writeText(event)
}

func (l *LogEmitter) writeJSON(event Event) {
	data, err := json.Marshal(struct {
		Name     string         `json:"name"`
		Workflow string         `json:"workflow"`
		ExecID   string         `json:"exec_id"`
		Step     string         `json:"step,omitempty"`
		Attempt  int            `json:"attempt,omitempty"`
		Result   string         `json:"result,omitempty"`
		Duration int64          `json:"duration_ms,omitempty"`
		Meta     map[string]any `json:"meta,omitempty"`
	}{
		Name:     event.Name,
		Workflow: event.Workflow,
		ExecID:   event.ExecID,
		Step:     event.Step,
		Attempt:  event.Attempt,
		Result:   event.Result,
		Duration: event.Duration.Milliseconds(),
		Meta:     event.Meta,
	})
	if err != nil {
		_, _ = fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
		return
	}
	_, _ = fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) writeText(event Event) {
	_, _ = fmt.Fprintf(l.writer, "[%s] workflow=%s exec=%s", event.Name, event.Workflow, event.ExecID)
	if event.Step != "" {
		_, _ = fmt.Fprintf(l.writer, " step=%s", event.Step)
	}
	if event.Attempt > 0 {
		_, _ = fmt.Fprintf(l.writer, " attempt=%d", event.Attempt)
	}
	if event.Result != "" {
		_, _ = fmt.Fprintf(l.writer, " result=%s", event.Result)
	}
	if event.Duration > 0 {
		_, _ = fmt.Fprintf(l.writer, " duration=%s", event.Duration)
	}
	if len(event.Meta) > 0 {
		if metaJSON, err := json.Marshal(event.Meta); err == nil {
			_, _ = fmt.Fprintf(l.writer, " meta=%s", metaJSON)
		}
	}
	_, _ = fmt.Fprintln(l.writer)
}
