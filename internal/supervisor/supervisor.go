// Package supervisor implements the Worker Supervisor (§4.G): spawning
// one worker subprocess per instance, dialing its IPC socket, heart-
// beating it, detecting crashes, and bounding automatic restarts.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/oriys/nova/internal/domain"
	"github.com/oriys/nova/internal/ipc"
	"github.com/oriys/nova/internal/ipc/socket"
	"github.com/oriys/nova/internal/logging"
	"github.com/oriys/nova/internal/metrics"
)

// Options configures spawn/heartbeat/restart behavior, sourced from
// config.SupervisorConfig and config.SocketConfig.
type Options struct {
	WorkerBinary           string
	SocketDir              string
	StartupTimeout         time.Duration
	RequestTimeout         time.Duration
	HeartbeatInterval      time.Duration
	HeartbeatMissThreshold int
	MaxRestarts            int
	RestartDelay           time.Duration
	ShutdownGracePeriod    time.Duration
}

func (o Options) withDefaults() Options {
	if o.WorkerBinary == "" {
		o.WorkerBinary = "edge_ai_worker"
	}
	if o.SocketDir == "" {
		o.SocketDir = "/opt/edge_ai_api/run"
	}
	if o.StartupTimeout == 0 {
		o.StartupTimeout = 10 * time.Second
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = 5 * time.Second
	}
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = 2 * time.Second
	}
	if o.HeartbeatMissThreshold == 0 {
		o.HeartbeatMissThreshold = 3
	}
	if o.MaxRestarts == 0 {
		o.MaxRestarts = 5
	}
	if o.RestartDelay == 0 {
		o.RestartDelay = time.Second
	}
	if o.ShutdownGracePeriod == 0 {
		o.ShutdownGracePeriod = 500 * time.Millisecond
	}
	return o
}

// worker is the Supervisor's private bookkeeping for one spawned
// subprocess: its record, its IPC client, and its OS process handle.
type worker struct {
	record *domain.WorkerRecord
	client *socket.Client
	cmd    *exec.Cmd

	mu            sync.Mutex
	consecutiveMisses int
}

// Supervisor owns every worker subprocess for subprocess-backend
// instances. The worker map is behind a single mutex per §5's
// shared-resource policy; no I/O happens under that lock.
type Supervisor struct {
	opts Options

	mu      sync.Mutex
	workers map[string]*worker

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Supervisor and starts its background monitor loop.
func New(opts Options) *Supervisor {
	s := &Supervisor{
		opts:    opts.withDefaults(),
		workers: make(map[string]*worker),
		stopCh:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.monitorLoop()
	return s
}

// socketPath computes the per-instance socket path per §6.
func (s *Supervisor) socketPath(instanceID string) string {
	return filepath.Join(s.opts.SocketDir, fmt.Sprintf("edge_ai_worker_%s.sock", instanceID))
}

// Spawn starts a worker subprocess for instanceID with the given inline
// JSON config string, waits for it to become Ready (with exponential
// backoff up to StartupTimeout), and registers it.
func (s *Supervisor) Spawn(ctx context.Context, instanceID, configJSON string) (*domain.WorkerRecord, error) {
	s.mu.Lock()
	if _, exists := s.workers[instanceID]; exists {
		s.mu.Unlock()
		return nil, domain.ErrAlreadyExists
	}
	s.mu.Unlock()

	sockPath := s.socketPath(instanceID)
	_ = os.MkdirAll(filepath.Dir(sockPath), 0755)
	_ = os.Remove(sockPath)

	cmd := exec.CommandContext(ctx, s.opts.WorkerBinary,
		"--instance-id", instanceID,
		"--socket", sockPath,
		"--config", configJSON,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, domain.Wrap(domain.KindSubprocess, "spawn", err)
	}

	rec := &domain.WorkerRecord{
		InstanceID: instanceID,
		PID:        cmd.Process.Pid,
		State:      domain.WorkerStarting,
		SocketPath: sockPath,
		StartedAt:  time.Now(),
	}
	w := &worker{record: rec, cmd: cmd, client: socket.NewClient(sockPath)}

	s.mu.Lock()
	s.workers[instanceID] = w
	s.mu.Unlock()

	if err := s.waitForReady(w); err != nil {
		_ = killProcess(cmd)
		s.mu.Lock()
		delete(s.workers, instanceID)
		s.mu.Unlock()
		return nil, err
	}

	w.mu.Lock()
	w.record.State = domain.WorkerReady
	w.record.LastHeartbeat = time.Now()
	w.mu.Unlock()

	logging.Op().Info("worker spawned", "instance", instanceID, "pid", rec.PID)
	metrics.Global().RecordWorkerSpawned()
	return w.record, nil
}

// waitForReady polls the socket with exponential backoff (100ms doubling,
// capped at 1s) until it connects or the overall startup timeout elapses,
// the child process exits early, or ctx is cancelled.
func (s *Supervisor) waitForReady(w *worker) error {
	deadline := time.Now().Add(s.opts.StartupTimeout)
	backoff := 100 * time.Millisecond

	exited := make(chan error, 1)
	go func() { exited <- w.cmd.Wait() }()

	for {
		if err := w.client.Connect(200 * time.Millisecond); err == nil {
			return nil
		}

		select {
		case err := <-exited:
			return domain.Wrap(domain.KindSubprocess, "worker exited during startup", err)
		default:
		}

		if time.Now().After(deadline) {
			return domain.NewError(domain.KindSubprocess, "startup timeout waiting for worker "+w.record.InstanceID)
		}

		time.Sleep(backoff)
		backoff *= 2
		if backoff > time.Second {
			backoff = time.Second
		}
	}
}

// Send forwards a request frame to instanceID's worker, flipping its
// tracked state to Busy for the duration of the call.
func (s *Supervisor) Send(instanceID string, typ domain.MessageType, payload interface{}) (*ipc.Frame, error) {
	s.mu.Lock()
	w, ok := s.workers[instanceID]
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound
	}

	w.mu.Lock()
	w.record.State = domain.WorkerBusy
	w.mu.Unlock()

	start := time.Now()
	frame, err := w.client.SendAndReceive(typ, payload, s.opts.RequestTimeout)
	elapsedMs := time.Since(start).Milliseconds()
	metrics.Global().RecordIPCCall(instanceID, typ.String(), elapsedMs, err == nil, errors.Is(err, domain.ErrTimeout))

	w.mu.Lock()
	if w.record.State == domain.WorkerBusy {
		w.record.State = domain.WorkerReady
	}
	w.mu.Unlock()

	return frame, err
}

// Get returns a snapshot of a worker's bookkeeping record.
func (s *Supervisor) Get(instanceID string) (*domain.WorkerRecord, bool) {
	s.mu.Lock()
	w, ok := s.workers[instanceID]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	w.mu.Lock()
	cp := *w.record
	w.mu.Unlock()
	return &cp, true
}

// Terminate stops a worker: a graceful SHUTDOWN with up to
// ShutdownGracePeriod to exit, escalating to SIGTERM then SIGKILL.
func (s *Supervisor) Terminate(instanceID string) error {
	s.mu.Lock()
	w, ok := s.workers[instanceID]
	s.mu.Unlock()
	if !ok {
		return domain.ErrNotFound
	}

	w.mu.Lock()
	w.record.State = domain.WorkerStopping
	w.mu.Unlock()

	_, _ = w.client.SendAndReceive(domain.MsgShutdown, nil, s.opts.RequestTimeout)

	done := make(chan error, 1)
	go func() { done <- w.cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(s.opts.ShutdownGracePeriod):
		_ = w.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-done:
		case <-time.After(s.opts.ShutdownGracePeriod):
			_ = killProcess(w.cmd)
			<-done
		}
	}

	_ = w.client.Disconnect()
	s.mu.Lock()
	delete(s.workers, instanceID)
	s.mu.Unlock()

	w.mu.Lock()
	w.record.State = domain.WorkerStopped
	w.mu.Unlock()
	return nil
}

// monitorLoop heartbeats every registered worker on HeartbeatInterval,
// bumping a miss counter on PING failure and handling crashes once the
// miss threshold is reached.
func (s *Supervisor) monitorLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.heartbeatAll()
		}
	}
}

func (s *Supervisor) heartbeatAll() {
	s.mu.Lock()
	snapshot := make([]*worker, 0, len(s.workers))
	for _, w := range s.workers {
		snapshot = append(snapshot, w)
	}
	s.mu.Unlock()

	for _, w := range snapshot {
		w.mu.Lock()
		state := w.record.State
		w.mu.Unlock()
		if state != domain.WorkerReady {
			continue
		}

		_, err := w.client.SendAndReceive(domain.MsgPing, nil, s.opts.RequestTimeout)
		w.mu.Lock()
		if err != nil {
			w.consecutiveMisses++
		} else {
			w.consecutiveMisses = 0
			w.record.LastHeartbeat = time.Now()
		}
		misses := w.consecutiveMisses
		w.mu.Unlock()

		if misses >= s.opts.HeartbeatMissThreshold {
			s.handleCrash(w)
		}
	}
}

// handleCrash kills the worker's process, bumps its restart count and
// either marks it permanently Crashed once MaxRestarts is exceeded or,
// after RestartDelay, moves it to Stopped. Per §9, once Crashed there is no further automatic restart
// attempt and the record is eventually removed by the caller.
func (s *Supervisor) handleCrash(w *worker) {
	w.mu.Lock()
	w.record.RestartCount++
	restarts := w.record.RestartCount
	instanceID := w.record.InstanceID
	w.mu.Unlock()

	_ = killProcess(w.cmd)
	_ = w.client.Disconnect()
	metrics.Global().RecordWorkerCrashed(instanceID)

	if restarts > s.opts.MaxRestarts {
		w.mu.Lock()
		w.record.State = domain.WorkerCrashed
		w.record.LastError = "exceeded max restart attempts"
		w.mu.Unlock()
		logging.Op().Error("worker crashed permanently", "instance", instanceID, "restarts", restarts)
		return
	}

	logging.Op().Warn("worker crashed, restarting", "instance", instanceID, "attempt", restarts)
	time.Sleep(s.opts.RestartDelay)
	metrics.Global().RecordWorkerRestarted()

	// No new process is started here: the config payload used for the
	// original spawn is not retained, so the worker is left Stopped.
	w.mu.Lock()
	w.record.State = domain.WorkerStopped
	w.mu.Unlock()
}

// Shutdown stops the monitor loop and terminates every worker.
func (s *Supervisor) Shutdown() {
	close(s.stopCh)
	s.wg.Wait()

	s.mu.Lock()
	ids := make([]string, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		_ = s.Terminate(id)
	}
}

// NewSocketDir ensures the configured socket directory exists, falling
// back to /tmp, matching the Worker's own Bind fallback in §6.
func NewSocketDir(dir string) string {
	if dir == "" {
		dir = "/opt/edge_ai_api/run"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return os.TempDir()
	}
	return dir
}

// GenerateInstanceID returns a new random (UUID) instance id.
func GenerateInstanceID() string {
	return uuid.NewString()
}

func killProcess(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
