// Package workerproc implements the Worker Process (§4.F): the loop
// that runs inside the edge-ai-worker subprocess, owning exactly one
// instance's pipeline and its IPC socket server.
package workerproc

import (
	"encoding/json"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oriys/nova/internal/domain"
	"github.com/oriys/nova/internal/ipc/socket"
	"github.com/oriys/nova/internal/logging"
	"github.com/oriys/nova/internal/node"
	"github.com/oriys/nova/internal/pipeline"
	"github.com/oriys/nova/internal/solution"
)

// inPlaceParams are the config fields that can be mutated on a running
// pipeline without a rebuild: thresholds, sensitivity, frame-rate limit,
// OSD toggles, handler-level parameters. Anything else (source URI,
// solution, node topology) forces a rebuild.
var inPlaceParams = map[string]bool{
	"detectionSensitivity": true,
	"movementSensitivity":  true,
	"frameRateLimit":       true,
	"threshold":            true,
	"osd":                  true,
}

// Frame is the last-produced frame buffer, held as an immutable
// reference; readers get the reference directly rather than a copy.
type Frame struct {
	Data      []byte
	Timestamp time.Time
}

// Worker owns one instance's pipeline and socket server.
type Worker struct {
	instanceID string
	registry   *solution.Registry

	// stateMu guards the {state, lastError} pair as a shared-read/
	// exclusive-write lock, per §4.F: statistics queries take the shared
	// lock, so concurrent readers do not block one another.
	stateMu     sync.RWMutex
	state       string
	lastError   string

	pipelineMu sync.Mutex
	nodes      []*node.Handle
	sol        *domain.Solution
	req        pipeline.Request

	swapMu sync.Mutex

	startingPipeline atomic.Bool
	stoppingPipeline atomic.Bool

	frame atomic.Pointer[Frame]

	fpsMu     sync.Mutex
	fpsWindow []time.Time

	server *socket.Server
}

// New constructs a Worker in state "created"; it does not yet own a
// socket server.
func New(instanceID string, registry *solution.Registry) *Worker {
	return &Worker{instanceID: instanceID, registry: registry, state: "created"}
}

func (w *Worker) setState(s string) {
	w.stateMu.Lock()
	w.state = s
	w.stateMu.Unlock()
}

func (w *Worker) setError(e string) {
	w.stateMu.Lock()
	w.lastError = e
	w.stateMu.Unlock()
}

// State returns the current lifecycle state string under the shared lock.
func (w *Worker) State() string {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return w.state
}

// Serve binds the socket server at path and runs its accept loop,
// pushing WORKER_READY once the supervisor connects. It blocks until
// the server stops (on SHUTDOWN/DELETE_INSTANCE or an external Stop).
func (w *Worker) Serve(socketPath string) error {
	srv, err := socket.Bind(socketPath, w.handle)
	if err != nil {
		return err
	}
	w.server = srv
	srv.ClientConnected = func(conn net.Conn) {
		if err := socket.Push(conn, domain.MsgWorkerReady, domain.OKResponse("ready", nil)); err != nil {
			logging.Op().Warn("failed to push WORKER_READY", "instance", w.instanceID, "err", err)
		}
	}
	return srv.Serve()
}

func (w *Worker) handle(typ domain.MessageType, payload []byte) (domain.MessageType, interface{}) {
	switch typ {
	case domain.MsgPing:
		return domain.MsgPong, nil

	case domain.MsgShutdown:
		go w.shutdown()
		return domain.MsgShutdownAck, nil

	case domain.MsgStartInstance:
		return w.handleStart()

	case domain.MsgStopInstance:
		return w.handleStop()

	case domain.MsgUpdateInstance:
		return w.handleUpdate(payload)

	case domain.MsgDeleteInstance:
		go w.shutdown()
		return domain.MsgDeleteInstanceResponse, domain.OKResponse("deleted", nil)

	case domain.MsgGetInstanceStatus:
		return domain.MsgGetInstanceStatusResponse, domain.OKResponse("", map[string]string{"state": w.State()})

	case domain.MsgGetStatistics:
		return domain.MsgGetStatisticsResponse, domain.OKResponse("", w.statistics())

	case domain.MsgGetLastFrame:
		f := w.frame.Load()
		if f == nil {
			return domain.MsgGetLastFrameResponse, domain.ErrResponse(domain.KindNotFound, "no frame available")
		}
		return domain.MsgGetLastFrameResponse, domain.OKResponse("", map[string]interface{}{"timestamp": f.Timestamp})

	default:
		return domain.MsgErrorResponse, domain.ErrResponse(domain.KindValidation, "unhandled message type "+typ.String())
	}
}

// BuildInitial builds the pipeline from an already-known solution and
// request, e.g. when the initial config already carries a solution
// (§4.F).
func (w *Worker) BuildInitial(sol *domain.Solution, req pipeline.Request) error {
	var resolve pipeline.ParamResolver
	if w.registry != nil {
		resolve = w.registry.ResolveParam
	}
	result, err := pipeline.Build(sol, req, resolve)
	if err != nil {
		return err
	}
	w.pipelineMu.Lock()
	w.nodes = result.Nodes
	w.sol = sol
	w.req = req
	w.pipelineMu.Unlock()
	for _, warn := range result.Warnings {
		logging.Op().Warn("pipeline warning", "instance", w.instanceID, "node", warn.NodeName, "message", warn.Message)
	}
	return nil
}

// Start runs the pipeline start sequence and returns a plain error, for
// callers (e.g. the in-process Manager backend) that drive a Worker
// directly without going through the IPC socket.
func (w *Worker) Start() error {
	_, resp := w.handleStart()
	return errorFromResponse(resp)
}

// Stop runs the pipeline stop sequence and returns a plain error.
func (w *Worker) Stop() error {
	_, resp := w.handleStop()
	return errorFromResponse(resp)
}

func errorFromResponse(resp interface{}) error {
	payload, ok := resp.(domain.ResponsePayload)
	if !ok || payload.Success {
		return nil
	}
	return domain.NewError(domain.KindPipeline, payload.Error)
}

// handleStart runs the node start sequence on its own goroutine and waits
// for it to finish before replying, so the IPC server handles no other
// request until the start completes. A start arriving while another is
// in progress is rejected with a Conflict error.
func (w *Worker) handleStart() (domain.MessageType, interface{}) {
	if !w.startingPipeline.CompareAndSwap(false, true) {
		return domain.MsgStartInstanceResponse, domain.ErrResponse(domain.KindConflict, "start already in progress")
	}
	defer w.startingPipeline.Store(false)

	done := make(chan error, 1)
	go func() {
		w.pipelineMu.Lock()
		nodes := w.nodes
		w.pipelineMu.Unlock()
		var err error
		for _, n := range nodes {
			if startErr := n.Start(); startErr != nil {
				err = startErr
				break
			}
		}
		done <- err
	}()

	if err := <-done; err != nil {
		w.setError(err.Error())
		return domain.MsgStartInstanceResponse, domain.ErrResponse(domain.KindPipeline, err.Error())
	}
	w.setState("running")
	return domain.MsgStartInstanceResponse, domain.OKResponse("started", nil)
}

// handleStop mirrors handleStart.
func (w *Worker) handleStop() (domain.MessageType, interface{}) {
	if !w.stoppingPipeline.CompareAndSwap(false, true) {
		return domain.MsgStopInstanceResponse, domain.ErrResponse(domain.KindConflict, "stop already in progress")
	}
	defer w.stoppingPipeline.Store(false)

	done := make(chan error, 1)
	go func() {
		w.pipelineMu.Lock()
		nodes := w.nodes
		w.pipelineMu.Unlock()
		for i := len(nodes) - 1; i >= 0; i-- {
			_ = nodes[i].Detach()
		}
		done <- nil
	}()
	<-done
	w.setState("stopped")
	return domain.MsgStopInstanceResponse, domain.OKResponse("stopped", nil)
}

// update is the decoded body of an UPDATE_INSTANCE request.
type update struct {
	DetectionSensitivity string  `json:"detectionSensitivity,omitempty"`
	MovementSensitivity  string  `json:"movementSensitivity,omitempty"`
	FrameRateLimit       float64 `json:"frameRateLimit,omitempty"`
	SourceURI            string  `json:"sourceUri,omitempty"`
	Solution             string  `json:"solution,omitempty"`
}

// handleUpdate applies a hot config change: detectionSensitivity,
// movementSensitivity and frameRateLimit are applied in place; a
// sourceUri or solution change triggers a background rebuild-then-swap.
// Other fields in the payload (thresholds, OSD toggles) are ignored.
func (w *Worker) handleUpdate(payload []byte) (domain.MessageType, interface{}) {
	var u update
	if err := json.Unmarshal(payload, &u); err != nil {
		return domain.MsgUpdateInstanceResponse, domain.ErrResponse(domain.KindValidation, "invalid update payload")
	}

	if requiresRebuild(u) {
		go w.hotSwap(u)
		return domain.MsgUpdateInstanceResponse, domain.OKResponse("rebuild scheduled", nil)
	}

	w.applyInPlace(u)
	return domain.MsgUpdateInstanceResponse, domain.OKResponse("applied", nil)
}

func requiresRebuild(u update) bool {
	return u.SourceURI != "" || u.Solution != ""
}

func (w *Worker) applyInPlace(u update) {
	w.pipelineMu.Lock()
	defer w.pipelineMu.Unlock()

	for _, n := range w.nodes {
		if u.DetectionSensitivity != "" && inPlaceParams["detectionSensitivity"] {
			n.SetParam("detectionSensitivity", u.DetectionSensitivity)
		}
		if u.MovementSensitivity != "" {
			n.SetParam("movementSensitivity", u.MovementSensitivity)
		}
		if u.FrameRateLimit > 0 {
			n.SetParam("frameRateLimit", u.FrameRateLimit)
		}
	}
}

// hotSwap pre-builds the new pipeline in the background; only once it is
// ready does it stop the old pipeline and swap in the new one. At most
// one new pipeline may be under construction at a time, guarded by
// swapMu.
func (w *Worker) hotSwap(u update) {
	w.swapMu.Lock()
	defer w.swapMu.Unlock()

	w.pipelineMu.Lock()
	sol := w.sol
	req := w.req
	w.pipelineMu.Unlock()

	if sol == nil {
		return
	}
	if u.Solution != "" {
		var next *domain.Solution
		var ok bool
		if w.registry != nil {
			next, ok = w.registry.Get(u.Solution)
		}
		if !ok {
			w.setError("unknown solution: " + u.Solution)
			return
		}
		sol = next
	}
	if u.FrameRateLimit > 0 {
		req.FrameRateLimit = u.FrameRateLimit
	}
	if u.DetectionSensitivity != "" {
		req.DetectionSensitivity = domain.Sensitivity(u.DetectionSensitivity)
	}
	if u.SourceURI != "" {
		req.RTSPURL = u.SourceURI
	}

	var resolve pipeline.ParamResolver
	if w.registry != nil {
		resolve = w.registry.ResolveParam
	}
	result, err := pipeline.Build(sol, req, resolve)
	if err != nil {
		logging.Op().Error("hot swap build failed", "instance", w.instanceID, "err", err)
		w.setError(err.Error())
		return
	}

	w.pipelineMu.Lock()
	old := w.nodes
	w.nodes = result.Nodes
	w.sol = sol
	w.req = req
	w.pipelineMu.Unlock()

	for i := len(old) - 1; i >= 0; i-- {
		_ = old[i].Detach()
	}
	for _, n := range result.Nodes {
		_ = n.Start()
	}
}

// Statistics returns the same snapshot GET_STATISTICS would over IPC,
// for in-process callers.
func (w *Worker) Statistics() map[string]interface{} {
	return w.statistics()
}

// LastFrame returns the most recently recorded frame, or nil if none.
func (w *Worker) LastFrame() *Frame {
	return w.frame.Load()
}

// Shutdown tears the pipeline down for an in-process caller; unlike
// shutdown() it leaves any socket server running.
func (w *Worker) Shutdown() {
	_ = w.Stop()
}

func (w *Worker) statistics() map[string]interface{} {
	w.fpsMu.Lock()
	fps := len(w.fpsWindow)
	w.fpsMu.Unlock()
	return map[string]interface{}{
		"state": w.State(),
		"fps":   fps,
	}
}

// RecordFrame swaps in a new frame reference atomically and updates the
// rolling one-second FPS window.
func (w *Worker) RecordFrame(f *Frame) {
	w.frame.Store(f)
	now := time.Now()
	w.fpsMu.Lock()
	w.fpsWindow = append(w.fpsWindow, now)
	cutoff := now.Add(-time.Second)
	i := 0
	for i < len(w.fpsWindow) && w.fpsWindow[i].Before(cutoff) {
		i++
	}
	w.fpsWindow = w.fpsWindow[i:]
	w.fpsMu.Unlock()
}

// shutdown stops the pipeline, stops the server, and unlinks its socket.
// Signals SIGTERM/SIGINT trigger the same path; SIGPIPE is ignored by
// the process (cmd/edge-ai-worker installs that signal mask).
func (w *Worker) shutdown() {
	w.handleStop()
	if w.server != nil {
		_ = w.server.Stop()
	}
}

// Close runs the same pipeline+server teardown as an IPC-triggered
// SHUTDOWN, for cmd/edge-ai-worker's own SIGTERM/SIGINT handler.
func (w *Worker) Close() {
	w.shutdown()
}

