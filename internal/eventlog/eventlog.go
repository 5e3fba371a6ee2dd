// Package eventlog provides an optional durable audit trail of instance
// state transitions (create/start/stop/crash/restart). Primary instance
// config persistence stays the JSON files in internal/instancestore;
// eventlog augments, it does not replace.
package eventlog

import (
	"context"
	"time"

	"github.com/oriys/nova/internal/eventbus"
)

// Entry is one durable audit-trail row.
type Entry struct {
	InstanceID string
	Event      eventbus.EventType
	OccurredAt time.Time
	Detail     string
}

// Sink records lifecycle entries durably. Implementations must be safe
// for concurrent use.
type Sink interface {
	Record(ctx context.Context, e Entry) error
	Close() error
}

type noopSink struct{}

func (noopSink) Record(context.Context, Entry) error { return nil }
func (noopSink) Close() error                        { return nil }

// Noop returns a Sink that discards every entry; used when
// EventLogConfig.Enabled is false.
func Noop() Sink { return noopSink{} }
