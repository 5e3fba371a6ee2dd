// Package eventbus fans instance lifecycle events (§3 "IPC Message"
// event family: STATE_CHANGED, ERROR, MEMORY_WARNING, plus the Instance
// Manager's own create/delete transitions) out to external subscribers,
// beyond the in-process callback the Manager already gets from the
// Supervisor. Disabled by default; a Redis-backed publisher is used when
// configured.
package eventbus

import (
	"context"
	"encoding/json"
	"time"
)

// EventType names the lifecycle event being published.
type EventType string

const (
	EventInstanceCreated EventType = "instance.created"
	EventInstanceDeleted EventType = "instance.deleted"
	EventInstanceStarted EventType = "instance.started"
	EventInstanceStopped EventType = "instance.stopped"
	EventInstanceUpdated EventType = "instance.updated"
	EventStateChanged    EventType = "instance.state_changed"
	EventWorkerError     EventType = "worker.error"
	EventMemoryWarning   EventType = "worker.memory_warning"
)

// Event is the payload fanned out to subscribers. It mirrors the shape
// of the IPC event-family messages (§3) plus the instance id they
// concern.
type Event struct {
	Type       EventType   `json:"type"`
	InstanceID string      `json:"instanceId"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       interface{} `json:"data,omitempty"`
}

// Publisher fans an Event out to external subscribers. Implementations
// must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// noopPublisher discards every event; used when EventBusConfig.Enabled
// is false, so the Manager can always hold a non-nil Publisher.
type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, Event) error { return nil }
func (noopPublisher) Close() error                         { return nil }

// Noop returns a Publisher that discards every event.
func Noop() Publisher { return noopPublisher{} }

func marshal(evt Event) ([]byte, error) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	return json.Marshal(evt)
}
