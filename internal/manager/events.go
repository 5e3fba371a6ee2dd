package manager

import (
	"context"
	"time"

	"github.com/oriys/nova/internal/eventbus"
	"github.com/oriys/nova/internal/eventlog"
)

// events bundles the two optional sinks a Manager backend publishes
// instance lifecycle transitions to: an eventbus.Publisher for external
// pub/sub fan-out and an eventlog.Sink for a durable audit trail. Both
// default to no-ops, so a Manager is always safe to use without either
// configured (§6 EventBusConfig/EventLogConfig default to disabled).
type events struct {
	pub eventbus.Publisher
	log eventlog.Sink
}

func newEvents() events {
	return events{pub: eventbus.Noop(), log: eventlog.Noop()}
}

// emit fans a lifecycle transition out to both sinks, best-effort: a
// sink failure is discarded, neither logged nor propagated, since these
// are observability side-channels rather than
// the source of truth (that is instancestore).
func (e events) emit(instanceID string, typ eventbus.EventType, detail string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = e.pub.Publish(ctx, eventbus.Event{Type: typ, InstanceID: instanceID, Timestamp: time.Now()})
	_ = e.log.Record(ctx, eventlog.Entry{InstanceID: instanceID, Event: typ, OccurredAt: time.Now(), Detail: detail})
}
