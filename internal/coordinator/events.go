package coordinator

import (
	"context"
	"time"
)

// EventRunStarted is the one lifecycle event with no history counterpart;
// all others reuse the blackboard.Event* history event names.
const EventRunStarted = "run_started"

// RunEvent is a run lifecycle notification. Events carry plain data only so
// sinks can serialize them to any transport.
type RunEvent struct {
	RunID       string    `json:"run_id"`
	Path        string    `json:"path"`
	Event       string    `json:"event"`
	Status      RunStatus `json:"status"`
	Stage       string    `json:"stage,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	TimestampMs int64     `json:"timestamp_ms"`
}

// EventSink receives run lifecycle events. Implementations must tolerate
// being called from multiple run driver goroutines; failures are the sink's
// problem - the engine never blocks a run on a sink error.
type EventSink interface {
	RunEvent(ctx context.Context, e RunEvent)
}

type nopSink struct{}

func (nopSink) RunEvent(context.Context, RunEvent) {}

// emit publishes an event for the run. Caller must hold r.mu (the fields
// read here are guarded by it). Events are published on a background
// context: a cancelled run still reports its own abort.
func (c *Coordinator) emit(r *run, event, stage, detail string) {
	c.sink.RunEvent(context.Background(), RunEvent{
		RunID:       r.id,
		Path:        r.path,
		Event:       event,
		Status:      r.status,
		Stage:       stage,
		Detail:      detail,
		TimestampMs: time.Now().UnixMilli(),
	})
}
