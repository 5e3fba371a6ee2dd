package manager

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oriys/nova/internal/domain"
	"github.com/oriys/nova/internal/eventbus"
	"github.com/oriys/nova/internal/group"
	"github.com/oriys/nova/internal/instancestore"
	"github.com/oriys/nova/internal/logging"
	"github.com/oriys/nova/internal/metrics"
	"github.com/oriys/nova/internal/pipeline"
	"github.com/oriys/nova/internal/solution"
	"github.com/oriys/nova/internal/workerproc"
)

// entry is the in-memory bookkeeping for one instance under the
// in-process backend: its current descriptive record plus the Worker
// embedding its live pipeline.
type entry struct {
	inst   *domain.Instance
	worker *workerproc.Worker
}

// InProcess is the Instance Manager backend that runs every pipeline in
// this process, with no subprocess isolation. It is the default backend
// (§6: anything but subprocess/isolated/worker selects it).
type InProcess struct {
	mu        sync.Mutex
	instances map[string]*entry

	store     *instancestore.Store
	solutions *solution.Registry
	groups    *group.Registry
	retry     *RetryMonitor
	locks     *keyedMutex
	events    events
}

// NewInProcess wires an in-process Manager from its collaborators.
func NewInProcess(store *instancestore.Store, solutions *solution.Registry, groups *group.Registry, retry *RetryMonitor) *InProcess {
	return &InProcess{
		instances: make(map[string]*entry),
		store:     store,
		solutions: solutions,
		groups:    groups,
		retry:     retry,
		locks:     newKeyedMutex(),
		events:    newEvents(),
	}
}

// SetEvents plugs in an optional eventbus.Publisher and eventlog.Sink;
// both default to no-ops until this is called.
func (m *InProcess) SetEvents(e events) {
	m.events = e
}

func (m *InProcess) buildRequest(inst *domain.Instance) pipeline.Request {
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

// Create validates the request, allocates a new instance id, persists
// the record, and optionally auto-starts it.
func (m *InProcess) Create(ctx context.Context, req domain.CreateRequest) (*domain.Instance, error) {
	if req.Solution == "" {
		return nil, domain.NewError(domain.KindValidation, "solution is required")
	}
	sol, ok := m.solutions.Get(req.Solution)
	if !ok {
		return nil, domain.ErrNotFound
	}

	now := time.Now()
	inst := &domain.Instance{
		InstanceID:           uuid.NewString(),
		DisplayName:          req.Name,
		Group:                req.Group,
		Solution:             req.Solution,
		SolutionName:         sol.DisplayName,
		Persistent:           req.Persistent,
		AutoStart:            req.AutoStart,
		AutoRestart:          req.AutoRestart,
		ReadOnly:             req.ReadOnly,
		FrameRateLimit:       req.FrameRateLimit,
		InputOrientation:     req.InputOrientation,
		InputPixelLimit:      req.InputPixelLimit,
		DetectorMode:         req.DetectorMode,
		DetectionSensitivity: req.DetectionSensitivity,
		MovementSensitivity:  req.MovementSensitivity,
		Modality:             req.Modality,
		AdditionalParams:     req.AdditionalParams,
		Loaded:               true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if inst.Group == "" {
		inst.Group = "default"
	}
	if err := inst.Validate(); err != nil {
		return nil, err
	}

	unlock := m.locks.lock(inst.InstanceID)
	defer unlock()

	w := workerproc.New(inst.InstanceID, m.solutions)
	if err := w.BuildInitial(sol, m.buildRequest(inst)); err != nil {
		return nil, err
	}

	if err := m.store.Save(inst.InstanceID, instancestore.InstanceToRecord(inst)); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.instances[inst.InstanceID] = &entry{inst: inst, worker: w}
	m.mu.Unlock()

	metrics.Global().RecordInstanceCreated()
	m.events.emit(inst.InstanceID, eventbus.EventInstanceCreated, "solution="+inst.Solution)

	if req.AutoStart {
		if err := m.Start(ctx, inst.InstanceID); err != nil {
			return inst, err
		}
	}
	return inst, nil
}

func (m *InProcess) get(instanceID string) (*entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.instances[instanceID]
	return e, ok
}

// Start transitions an instance to running by starting its worker's
// pipeline nodes.
func (m *InProcess) Start(ctx context.Context, instanceID string) error {
	unlock := m.locks.lock(instanceID)
	defer unlock()

	e, ok := m.get(instanceID)
	if !ok {
		return domain.ErrNotFound
	}
	if err := e.worker.Start(); err != nil {
		return err
	}
	e.inst.Running = true
	e.inst.UpdatedAt = time.Now()
	if err := m.store.Save(instanceID, instancestore.InstanceToRecord(e.inst)); err != nil {
		return err
	}
	metrics.Global().RecordInstanceStarted()
	m.events.emit(instanceID, eventbus.EventInstanceStarted, "")
	return nil
}

// Stop transitions an instance out of running.
func (m *InProcess) Stop(ctx context.Context, instanceID string) error {
	unlock := m.locks.lock(instanceID)
	defer unlock()

	e, ok := m.get(instanceID)
	if !ok {
		return domain.ErrNotFound
	}
	if err := e.worker.Stop(); err != nil {
		return err
	}
	e.inst.Running = false
	e.inst.UpdatedAt = time.Now()
	if err := m.store.Save(instanceID, instancestore.InstanceToRecord(e.inst)); err != nil {
		return err
	}
	metrics.Global().RecordInstanceStopped()
	m.events.emit(instanceID, eventbus.EventInstanceStopped, "")
	return nil
}

// Restart stops then starts an instance and resets its retry history,
// matching the "no reset except explicit restart" policy for
// RestartCount (§9).
func (m *InProcess) Restart(ctx context.Context, instanceID string) error {
	if err := m.Stop(ctx, instanceID); err != nil && domain.KindOf(err) != domain.KindPipeline {
		return err
	}
	if m.retry != nil {
		m.retry.Reset(instanceID)
	}
	return m.Start(ctx, instanceID)
}

// Update applies the patch's displayName, frameRateLimit,
// detectionSensitivity, movementSensitivity and autoRestart fields to the
// instance record and persists it. The Worker's pipeline is neither
// re-parameterised nor rebuilt.
func (m *InProcess) Update(ctx context.Context, instanceID string, patch map[string]interface{}) error {
	unlock := m.locks.lock(instanceID)
	defer unlock()

	e, ok := m.get(instanceID)
	if !ok {
		return domain.ErrNotFound
	}
	if e.inst.ReadOnly {
		return domain.ErrReadOnly
	}

	applyPatch(e.inst, patch)
	e.inst.UpdatedAt = time.Now()
	if err := e.inst.Validate(); err != nil {
		return err
	}
	if err := m.store.Save(instanceID, instancestore.InstanceToRecord(e.inst)); err != nil {
		return err
	}
	m.events.emit(instanceID, eventbus.EventInstanceUpdated, "")
	return nil
}

func applyPatch(inst *domain.Instance, patch map[string]interface{}) {
	if v, ok := patch["displayName"].(string); ok {
		inst.DisplayName = v
	}
	if v, ok := patch["frameRateLimit"].(float64); ok {
		inst.FrameRateLimit = v
	}
	if v, ok := patch["detectionSensitivity"].(string); ok {
		inst.DetectionSensitivity = domain.Sensitivity(v)
	}
	if v, ok := patch["movementSensitivity"].(string); ok {
		inst.MovementSensitivity = domain.Sensitivity(v)
	}
	if v, ok := patch["autoRestart"].(bool); ok {
		inst.AutoRestart = v
	}
}

// Delete stops (best-effort) and removes an instance from both the
// in-memory registry and persisted storage.
func (m *InProcess) Delete(ctx context.Context, instanceID string) error {
	unlock := m.locks.lock(instanceID)
	defer unlock()

	m.mu.Lock()
	e, ok := m.instances[instanceID]
	if ok {
		delete(m.instances, instanceID)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if e.inst.ReadOnly {
		return domain.ErrReadOnly
	}

	e.worker.Shutdown()
	if m.retry != nil {
		m.retry.Reset(instanceID)
	}
	if err := m.store.Delete(instanceID); err != nil {
		return err
	}
	metrics.Global().RecordInstanceDeleted()
	m.events.emit(instanceID, eventbus.EventInstanceDeleted, "")
	return nil
}

func (m *InProcess) GetInstance(instanceID string) (*domain.Instance, error) {
	e, ok := m.get(instanceID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e.inst
	cp.Running = e.worker.State() == "running"
	return &cp, nil
}

func (m *InProcess) GetConfig(instanceID string) (*domain.Instance, error) {
	return m.GetInstance(instanceID)
}

func (m *InProcess) ListInstances() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.instances))
	for id := range m.instances {
		ids = append(ids, id)
	}
	return ids
}

func (m *InProcess) GetAllInstances() []*domain.Instance {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.instances))
	for _, e := range m.instances {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	out := make([]*domain.Instance, 0, len(entries))
	for _, e := range entries {
		cp := *e.inst
		cp.Running = e.worker.State() == "running"
		out = append(out, &cp)
	}
	return out
}

func (m *InProcess) HasInstance(instanceID string) bool {
	_, ok := m.get(instanceID)
	return ok
}

func (m *InProcess) GetInstanceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.instances)
}

func (m *InProcess) GetInstanceStatistics(instanceID string) (map[string]interface{}, error) {
	e, ok := m.get(instanceID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e.worker.Statistics(), nil
}

func (m *InProcess) GetLastFrame(instanceID string) ([]byte, error) {
	e, ok := m.get(instanceID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	f := e.worker.LastFrame()
	if f == nil {
		return nil, domain.ErrNotFound
	}
	return f.Data, nil
}

// LoadPersistentInstances rehydrates every stored instance into memory
// and auto-starts the ones flagged AutoStart, without blocking on any
// single instance's startup.
func (m *InProcess) LoadPersistentInstances(ctx context.Context) error {
	ids, err := m.store.LoadAll()
	if err != nil {
		return err
	}

	for _, id := range ids {
		inst, err := m.store.Load(id)
		if err != nil {
			logging.Op().Warn("skipping unloadable instance", "instance", id, "err", err)
			continue
		}
		sol, ok := m.solutions.Get(inst.Solution)
		if !ok {
			logging.Op().Warn("skipping instance with unknown solution", "instance", id, "solution", inst.Solution)
			continue
		}

		w := workerproc.New(inst.InstanceID, m.solutions)
		if err := w.BuildInitial(sol, m.buildRequest(inst)); err != nil {
			logging.Op().Warn("failed to rebuild pipeline on load", "instance", id, "err", err)
			continue
		}

		m.mu.Lock()
		m.instances[id] = &entry{inst: inst, worker: w}
		m.mu.Unlock()

		if inst.AutoStart {
			if err := m.Start(ctx, id); err != nil {
				logging.Op().Warn("autostart failed on load", "instance", id, "err", err)
			}
		}
	}
	return nil
}

// CheckAndHandleRetryLimits is a no-op for the in-process backend: there
// is no subprocess crash loop to police here, only the Supervisor-backed
// Subprocess backend needs it.
func (m *InProcess) CheckAndHandleRetryLimits(ctx context.Context) error {
	return nil
}

func (m *InProcess) Shutdown() error {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.instances))
	for _, e := range m.instances {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	for _, e := range entries {
		e.worker.Shutdown()
	}
	return nil
}
