package supervisor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/oriys/nova/internal/domain"
	"github.com/oriys/nova/internal/ipc/socket"
)

func TestSocketPath(t *testing.T) {
	s := New(Options{SocketDir: "/run/edge"})
	defer s.Shutdown()
	got := s.socketPath("abc-123")
	want := filepath.Join("/run/edge", "edge_ai_worker_abc-123.sock")
	if got != want {
		t.Fatalf("socketPath = %q, want %q", got, want)
	}
}

// startFakeWorker runs a real socket.Server in-process standing in for
// a worker subprocess, so Send/heartbeat can be exercised without
// exec'ing a real binary.
func startFakeWorker(t *testing.T, path string, handler socket.Handler) *socket.Server {
	t.Helper()
	srv, err := socket.Bind(path, handler)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	go srv.Serve()
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

func TestSend_RoundTripsThroughLiveSocket(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "worker.sock")
	startFakeWorker(t, path, func(typ domain.MessageType, payload []byte) (domain.MessageType, interface{}) {
		if typ != domain.MsgPing {
			return domain.MsgErrorResponse, domain.ErrResponse(domain.KindValidation, "unexpected")
		}
		return domain.MsgPong, nil
	})

	s := New(Options{RequestTimeout: time.Second})
	defer s.Shutdown()

	client := socket.NewClient(path)
	if err := client.Connect(time.Second); err != nil {
		t.Fatalf("connect: %v", err)
	}

	s.mu.Lock()
	s.workers["inst-1"] = &worker{
		record: &domain.WorkerRecord{InstanceID: "inst-1", State: domain.WorkerReady, SocketPath: path},
		client: client,
	}
	s.mu.Unlock()

	frame, err := s.Send("inst-1", domain.MsgPing, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if frame.Type != domain.MsgPong {
		t.Fatalf("response type = %v, want PONG", frame.Type)
	}

	rec, ok := s.Get("inst-1")
	if !ok || rec.State != domain.WorkerReady {
		t.Fatalf("expected worker back in Ready state, got %+v", rec)
	}
}

func TestHandleCrash_RestartCountAndTerminalState(t *testing.T) {
	s := New(Options{MaxRestarts: 1, RestartDelay: time.Millisecond})
	defer s.Shutdown()

	w := &worker{
		record: &domain.WorkerRecord{InstanceID: "inst-1", State: domain.WorkerReady},
		client: socket.NewClient("/nonexistent"),
		cmd:    nil,
	}

	s.handleCrash(w)
	if w.record.RestartCount != 1 {
		t.Fatalf("RestartCount = %d, want 1", w.record.RestartCount)
	}
	if w.record.State == domain.WorkerCrashed {
		t.Fatal("first crash within MaxRestarts should not be terminal")
	}

	s.handleCrash(w)
	if w.record.State != domain.WorkerCrashed {
		t.Fatalf("State = %v, want Crashed after exceeding MaxRestarts", w.record.State)
	}
}

func TestSend_UnknownInstanceReturnsNotFound(t *testing.T) {
	s := New(Options{})
	defer s.Shutdown()
	if _, err := s.Send("missing", domain.MsgPing, nil); err != domain.ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
