package manager

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oriys/nova/internal/domain"
	"github.com/oriys/nova/internal/eventbus"
	"github.com/oriys/nova/internal/group"
	"github.com/oriys/nova/internal/instancestore"
	"github.com/oriys/nova/internal/ipc"
	"github.com/oriys/nova/internal/logging"
	"github.com/oriys/nova/internal/metrics"
	"github.com/oriys/nova/internal/solution"
	"github.com/oriys/nova/internal/supervisor"
)

// Subprocess is the Instance Manager backend that isolates each
// instance's pipeline in its own edge_ai_worker subprocess, driven
// through the Supervisor's socket-backed RPCs.
type Subprocess struct {
	mu        sync.Mutex
	instances map[string]*domain.Instance

	store      *instancestore.Store
	solutions  *solution.Registry
	groups     *group.Registry
	retry      *RetryMonitor
	supervisor *supervisor.Supervisor
	locks      *keyedMutex
	events     events
}

// NewSubprocess wires a subprocess Manager from its collaborators.
func NewSubprocess(store *instancestore.Store, solutions *solution.Registry, groups *group.Registry, retry *RetryMonitor, sup *supervisor.Supervisor) *Subprocess {
	return &Subprocess{
		instances:  make(map[string]*domain.Instance),
		store:      store,
		solutions:  solutions,
		groups:     groups,
		retry:      retry,
		supervisor: sup,
		locks:      newKeyedMutex(),
		events:     newEvents(),
	}
}

// SetEvents plugs in an optional eventbus.Publisher and eventlog.Sink;
// both default to no-ops until this is called.
func (m *Subprocess) SetEvents(e events) {
	m.events = e
}

func (m *Subprocess) configJSON(inst *domain.Instance) string {
	b, _ := json.Marshal(instancestore.InstanceToRecord(inst))
	return string(b)
}

func (m *Subprocess) Create(ctx context.Context, req domain.CreateRequest) (*domain.Instance, error) {
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

	if err := m.store.Save(inst.InstanceID, instancestore.InstanceToRecord(inst)); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.instances[inst.InstanceID] = inst
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

func (m *Subprocess) get(instanceID string) (*domain.Instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[instanceID]
	return inst, ok
}

// Start spawns (or reuses, if already spawned) the instance's worker
// subprocess and issues START_INSTANCE.
func (m *Subprocess) Start(ctx context.Context, instanceID string) error {
	unlock := m.locks.lock(instanceID)
	defer unlock()

	inst, ok := m.get(instanceID)
	if !ok {
		return domain.ErrNotFound
	}

	if _, spawned := m.supervisor.Get(instanceID); !spawned {
		if _, err := m.supervisor.Spawn(ctx, instanceID, m.configJSON(inst)); err != nil {
			return err
		}
	}

	frame, err := m.supervisor.Send(instanceID, domain.MsgStartInstance, nil)
	if err != nil {
		return err
	}
	if err := errFromFrame(frame); err != nil {
		return err
	}

	inst.Running = true
	inst.UpdatedAt = time.Now()
	if err := m.store.Save(instanceID, instancestore.InstanceToRecord(inst)); err != nil {
		return err
	}
	metrics.Global().RecordInstanceStarted()
	m.events.emit(instanceID, eventbus.EventInstanceStarted, "")
	return nil
}

func (m *Subprocess) Stop(ctx context.Context, instanceID string) error {
	unlock := m.locks.lock(instanceID)
	defer unlock()

	inst, ok := m.get(instanceID)
	if !ok {
		return domain.ErrNotFound
	}

	frame, err := m.supervisor.Send(instanceID, domain.MsgStopInstance, nil)
	if err != nil {
		return err
	}
	if err := errFromFrame(frame); err != nil {
		return err
	}

	inst.Running = false
	inst.UpdatedAt = time.Now()
	if err := m.store.Save(instanceID, instancestore.InstanceToRecord(inst)); err != nil {
		return err
	}
	metrics.Global().RecordInstanceStopped()
	m.events.emit(instanceID, eventbus.EventInstanceStopped, "")
	return nil
}

func (m *Subprocess) Restart(ctx context.Context, instanceID string) error {
	_ = m.Stop(ctx, instanceID)
	if m.retry != nil {
		m.retry.Reset(instanceID)
	}
	_ = m.supervisor.Terminate(instanceID)
	return m.Start(ctx, instanceID)
}

func (m *Subprocess) Update(ctx context.Context, instanceID string, patch map[string]interface{}) error {
	unlock := m.locks.lock(instanceID)
	defer unlock()

	inst, ok := m.get(instanceID)
	if !ok {
		return domain.ErrNotFound
	}
	if inst.ReadOnly {
		return domain.ErrReadOnly
	}
	applyPatch(inst, patch)
	inst.UpdatedAt = time.Now()
	if err := inst.Validate(); err != nil {
		return err
	}

	if _, spawned := m.supervisor.Get(instanceID); spawned {
		body, _ := json.Marshal(patch)
		var raw map[string]interface{}
		_ = json.Unmarshal(body, &raw)
		if _, err := m.supervisor.Send(instanceID, domain.MsgUpdateInstance, raw); err != nil {
			return err
		}
	}
	if err := m.store.Save(instanceID, instancestore.InstanceToRecord(inst)); err != nil {
		return err
	}
	m.events.emit(instanceID, eventbus.EventInstanceUpdated, "")
	return nil
}

func (m *Subprocess) Delete(ctx context.Context, instanceID string) error {
	unlock := m.locks.lock(instanceID)
	defer unlock()

	m.mu.Lock()
	inst, ok := m.instances[instanceID]
	if ok {
		delete(m.instances, instanceID)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if inst.ReadOnly {
		return domain.ErrReadOnly
	}

	if _, spawned := m.supervisor.Get(instanceID); spawned {
		_ = m.supervisor.Terminate(instanceID)
	}
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

func (m *Subprocess) GetInstance(instanceID string) (*domain.Instance, error) {
	inst, ok := m.get(instanceID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *inst
	return &cp, nil
}

func (m *Subprocess) GetConfig(instanceID string) (*domain.Instance, error) {
	return m.GetInstance(instanceID)
}

func (m *Subprocess) ListInstances() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.instances))
	for id := range m.instances {
		ids = append(ids, id)
	}
	return ids
}

func (m *Subprocess) GetAllInstances() []*domain.Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		cp := *inst
		out = append(out, &cp)
	}
	return out
}

func (m *Subprocess) HasInstance(instanceID string) bool {
	_, ok := m.get(instanceID)
	return ok
}

func (m *Subprocess) GetInstanceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.instances)
}

func (m *Subprocess) GetInstanceStatistics(instanceID string) (map[string]interface{}, error) {
	if _, ok := m.get(instanceID); !ok {
		return nil, domain.ErrNotFound
	}
	frame, err := m.supervisor.Send(instanceID, domain.MsgGetStatistics, nil)
	if err != nil {
		return nil, err
	}
	var payload domain.ResponsePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return nil, domain.Wrap(domain.KindInternal, "decode statistics", err)
	}
	data, _ := payload.Data.(map[string]interface{})
	return data, nil
}

func (m *Subprocess) GetLastFrame(instanceID string) ([]byte, error) {
	if _, ok := m.get(instanceID); !ok {
		return nil, domain.ErrNotFound
	}
	frame, err := m.supervisor.Send(instanceID, domain.MsgGetLastFrame, nil)
	if err != nil {
		return nil, err
	}
	if err := errFromFrame(frame); err != nil {
		return nil, err
	}
	return frame.Payload, nil
}

// LoadPersistentInstances rehydrates every stored instance's descriptive
// record into memory (without spawning a subprocess for each), then
// spawns the ones flagged AutoStart.
func (m *Subprocess) LoadPersistentInstances(ctx context.Context) error {
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
		m.mu.Lock()
		m.instances[id] = inst
		m.mu.Unlock()

		if inst.AutoStart {
			if err := m.Start(ctx, id); err != nil {
				logging.Op().Warn("autostart failed on load", "instance", id, "err", err)
			}
		}
	}
	return nil
}

// CheckAndHandleRetryLimits inspects every spawned worker for the
// Crashed terminal state and, once the rolling-window retry limit is
// also exceeded at the Manager's own policy layer, marks the instance
// permanently failed and removes its worker record (§9: no further
// restart attempt after a terminal Crashed).
func (m *Subprocess) CheckAndHandleRetryLimits(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.instances))
	for id := range m.instances {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		rec, ok := m.supervisor.Get(id)
		if !ok || rec.State != domain.WorkerCrashed {
			continue
		}
		tripped := true
		if m.retry != nil {
			tripped = m.retry.RecordCrash(id, time.Now())
		}
		if !tripped {
			continue
		}

		m.mu.Lock()
		if inst, exists := m.instances[id]; exists {
			inst.Running = false
			inst.RetryLimitReached = true
			inst.UpdatedAt = time.Now()
			_ = m.store.Save(id, instancestore.InstanceToRecord(inst))
		}
		m.mu.Unlock()
		_ = m.supervisor.Terminate(id)
		metrics.Global().RecordRetryLimitReached()
		m.events.emit(id, eventbus.EventWorkerError, "retry limit reached")
		logging.Op().Error("instance exceeded retry limit, giving up", "instance", id)
	}
	return nil
}

func (m *Subprocess) Shutdown() error {
	m.supervisor.Shutdown()
	return nil
}

// errFromFrame decodes a response frame's payload and reports a domain
// error when the worker signalled failure.
func errFromFrame(frame *ipc.Frame) error {
	if frame == nil {
		return nil
	}
	var payload domain.ResponsePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return nil
	}
	if payload.Success || frame.Type == domain.MsgPong || frame.Type == domain.MsgShutdownAck {
		return nil
	}
	return domain.NewError(domain.KindPipeline, payload.Error)
}
