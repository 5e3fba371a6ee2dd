package manager

import (
	"context"
	"testing"

	"github.com/oriys/nova/internal/domain"
	"github.com/oriys/nova/internal/group"
	"github.com/oriys/nova/internal/groupstore"
	"github.com/oriys/nova/internal/instancestore"
	"github.com/oriys/nova/internal/solution"
)

func newTestInProcess(t *testing.T) *InProcess {
	t.Helper()
	dir := t.TempDir()

	store, err := instancestore.New(dir)
	if err != nil {
		t.Fatalf("instancestore.New: %v", err)
	}
	solutions := solution.New(nil)
	solutions.InitializeDefaults()

	gs, err := groupstore.New(dir)
	if err != nil {
		t.Fatalf("groupstore.New: %v", err)
	}
	groups := group.New(gs, func(string) int { return 0 })
	if err := groups.LoadPersisted(); err != nil {
		t.Fatalf("LoadPersisted: %v", err)
	}

	return NewInProcess(store, solutions, groups, NewRetryMonitor(5, 0))
}

func TestInProcess_CreateStartStopDelete(t *testing.T) {
	m := newTestInProcess(t)
	ctx := context.Background()

	inst, err := m.Create(ctx, domain.CreateRequest{
		Name:             "cam-1",
		Solution:         "face_detection",
		AdditionalParams: map[string]string{"RTSP_URL": "rtsp://cam/1"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	ids := m.ListInstances()
	if len(ids) != 1 || ids[0] != inst.InstanceID {
		t.Fatalf("ListInstances = %v", ids)
	}

	if err := m.Start(ctx, inst.InstanceID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	got, err := m.GetInstance(inst.InstanceID)
	if err != nil || !got.Running {
		t.Fatalf("GetInstance after start = %+v, %v", got, err)
	}

	if err := m.Stop(ctx, inst.InstanceID); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	got, err = m.GetInstance(inst.InstanceID)
	if err != nil || got.Running {
		t.Fatalf("GetInstance after stop = %+v, %v", got, err)
	}

	if err := m.Delete(ctx, inst.InstanceID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.GetInstance(inst.InstanceID); err != domain.ErrNotFound {
		t.Fatalf("GetInstance after delete = %v, want ErrNotFound", err)
	}
}

func TestInProcess_CreateUnknownSolutionFails(t *testing.T) {
	m := newTestInProcess(t)
	_, err := m.Create(context.Background(), domain.CreateRequest{Name: "x", Solution: "nonexistent"})
	if err != domain.ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestInProcess_UpdateReadOnlyRejected(t *testing.T) {
	m := newTestInProcess(t)
	inst, err := m.Create(context.Background(), domain.CreateRequest{
		Name: "cam-1", Solution: "face_detection", ReadOnly: true,
		AdditionalParams: map[string]string{"RTSP_URL": "rtsp://cam/1"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	err = m.Update(context.Background(), inst.InstanceID, map[string]interface{}{"displayName": "new"})
	if err != domain.ErrReadOnly {
		t.Fatalf("err = %v, want ErrReadOnly", err)
	}
}

func TestInProcess_LoadPersistentInstancesAutostarts(t *testing.T) {
	m := newTestInProcess(t)
	ctx := context.Background()
	inst, err := m.Create(ctx, domain.CreateRequest{
		Name: "cam-1", Solution: "face_detection", AutoStart: true, Persistent: true,
		AdditionalParams: map[string]string{"RTSP_URL": "rtsp://cam/1"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	fresh := NewInProcess(m.store, m.solutions, m.groups, NewRetryMonitor(5, 0))
	if err := fresh.LoadPersistentInstances(ctx); err != nil {
		t.Fatalf("LoadPersistentInstances: %v", err)
	}
	got, err := fresh.GetInstance(inst.InstanceID)
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if !got.Running {
		t.Fatalf("expected autostart to have run on load, got Running=false")
	}
}
