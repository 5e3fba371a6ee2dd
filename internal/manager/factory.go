package manager

import (
	"context"

	"github.com/oriys/nova/internal/config"
	"github.com/oriys/nova/internal/eventbus"
	"github.com/oriys/nova/internal/eventlog"
	"github.com/oriys/nova/internal/group"
	"github.com/oriys/nova/internal/instancestore"
	"github.com/oriys/nova/internal/logging"
	"github.com/oriys/nova/internal/solution"
	"github.com/oriys/nova/internal/supervisor"
)

// eventSetter is implemented by both backends; New uses it to plug in
// the configured eventbus.Publisher/eventlog.Sink without widening the
// Manager interface every caller sees.
type eventSetter interface {
	SetEvents(e events)
}

// New selects the in-process or subprocess-isolated backend according
// to cfg.ExecutionMode (§6: EDGE_AI_EXECUTION_MODE), wiring up a fresh
// RetryMonitor either way.
func New(cfg *config.Config, store *instancestore.Store, solutions *solution.Registry, groups *group.Registry) Manager {
	retry := NewRetryMonitor(cfg.Retry.WindowSize, cfg.Retry.Window)

	var mgr Manager
	if cfg.ExecutionMode != config.ExecutionModeSubprocess {
		mgr = NewInProcess(store, solutions, groups, retry)
	} else {
		sup := supervisor.New(supervisor.Options{
			WorkerBinary:           cfg.Supervisor.WorkerBinary,
			SocketDir:              cfg.Socket.RunDir,
			StartupTimeout:         cfg.Supervisor.StartupTimeout,
			RequestTimeout:         cfg.Socket.RequestTimeout,
			HeartbeatInterval:      cfg.Supervisor.HeartbeatInterval,
			HeartbeatMissThreshold: cfg.Supervisor.HeartbeatMissThreshold,
			MaxRestarts:            cfg.Supervisor.MaxRestarts,
			RestartDelay:           cfg.Supervisor.RestartDelay,
			ShutdownGracePeriod:    cfg.Socket.ShutdownGracePeriod,
		})
		mgr = NewSubprocess(store, solutions, groups, retry, sup)
	}

	if setter, ok := mgr.(eventSetter); ok {
		setter.SetEvents(buildEvents(cfg))
	}
	return mgr
}

// buildEvents constructs the optional eventbus.Publisher and
// eventlog.Sink from config, falling back to no-ops (and logging a
// warning rather than failing startup) when a configured backend
// can't be reached.
func buildEvents(cfg *config.Config) events {
	e := newEvents()

	if cfg.EventBus.Enabled {
		pub, err := eventbus.NewRedisPublisher(cfg.EventBus.Addr, cfg.EventBus.Channel)
		if err != nil {
			logging.Op().Warn("event bus disabled: cannot connect", "err", err)
		} else {
			e.pub = pub
		}
	}

	if cfg.EventLog.Enabled {
		sink, err := eventlog.NewPostgresSink(context.Background(), cfg.EventLog.DSN)
		if err != nil {
			logging.Op().Warn("event log disabled: cannot connect", "err", err)
		} else {
			e.log = sink
		}
	}

	return e
}
