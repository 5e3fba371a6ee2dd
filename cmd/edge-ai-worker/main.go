// Command edge-ai-worker is the subprocess the Worker Supervisor forks
// and execs for each isolated instance (§4.F/§4.G). It owns exactly one
// instance's pipeline and IPC socket server, and exits once that
// pipeline is torn down.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/oriys/nova/internal/config"
	"github.com/oriys/nova/internal/domain"
	"github.com/oriys/nova/internal/instancestore"
	"github.com/oriys/nova/internal/logging"
	"github.com/oriys/nova/internal/pipeline"
	"github.com/oriys/nova/internal/solution"
	"github.com/oriys/nova/internal/solutionstore"
	"github.com/oriys/nova/internal/workerproc"
)

func main() {
	os.Exit(run())
}

func run() int {
	var instanceID, socketPath, configJSON string
	flag.StringVar(&instanceID, "instance-id", "", "instance id this process owns")
	flag.StringVar(&socketPath, "socket", "", "unix socket path to bind")
	flag.StringVar(&configJSON, "config", "", "instance record, JSON-encoded")
	flag.Parse()

	if instanceID == "" || socketPath == "" || configJSON == "" {
		fmt.Fprintln(os.Stderr, "edge-ai-worker: --instance-id, --socket and --config are required")
		return 1
	}

	inst, err := instancestore.DecodeRecord([]byte(configJSON))
	if err != nil {
		logging.Op().Error("invalid --config payload", "instance", instanceID, "err", err)
		return 1
	}

	registry, err := buildRegistry()
	if err != nil {
		logging.Op().Error("failed to build solution registry", "instance", instanceID, "err", err)
		return 1
	}

	sol, ok := registry.Get(inst.Solution)
	if !ok {
		logging.Op().Error("unknown solution", "instance", instanceID, "solution", inst.Solution)
		return 1
	}

	w := workerproc.New(instanceID, registry)
	req := requestFromInstance(inst)
	if err := w.BuildInitial(sol, req); err != nil {
		logging.Op().Error("pipeline build failed", "instance", instanceID, "err", err)
		return 1
	}

	installSignalHandler(w)

	if err := w.Serve(socketPath); err != nil {
		logging.Op().Error("socket server exited with error", "instance", instanceID, "socket", socketPath, "err", err)
		return 1
	}
	return 0
}

// installSignalHandler routes SIGTERM/SIGINT through the same teardown
// path as an IPC SHUTDOWN/DELETE_INSTANCE, and ignores SIGPIPE so a
// supervisor-side socket close never kills the process outright.
func installSignalHandler(w *workerproc.Worker) {
	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGPIPE)
	go func() {
		for sig := range sigCh {
			if sig == syscall.SIGPIPE {
				continue
			}
			w.Close()
			return
		}
	}()
}

func requestFromInstance(inst *domain.Instance) pipeline.Request {
	return pipeline.Request{
		InstanceID:           inst.InstanceID,
		FrameRateLimit:       inst.FrameRateLimit,
		DetectionSensitivity: inst.DetectionSensitivity,
		RTSPURL:              inst.RTSPURL,
		RTMPURL:              inst.RTMPURL,
		FilePath:             inst.FilePath,
		AdditionalParams:     inst.AdditionalParams,
	}
}

// buildRegistry loads the same default-plus-custom solution catalog the
// daemon sees, so a solution patched or added while an instance was
// already running resolves the same way on a restart.
func buildRegistry() (*solution.Registry, error) {
	cfg := config.DefaultConfig()
	config.LoadFromEnv(cfg)

	store, err := solutionstore.New(cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}

	registry := solution.New(store)
	registry.InitializeDefaults()
	if err := registry.LoadPersisted(); err != nil {
		return nil, err
	}
	return registry, nil
}
