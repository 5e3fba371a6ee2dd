package socket

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/oriys/nova/internal/domain"
)

func TestServerClient_SendAndReceive(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "test.sock")

	srv, err := Bind(sockPath, func(typ domain.MessageType, payload []byte) (domain.MessageType, interface{}) {
		if typ != domain.MsgPing {
			return domain.MsgErrorResponse, domain.ErrResponse(domain.KindValidation, "unexpected type")
		}
		return domain.MsgPong, nil
	})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = srv.Serve()
	}()
	defer func() {
		srv.Stop()
		wg.Wait()
	}()

	client := NewClient(srv.Path())
	if err := client.Connect(time.Second); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Disconnect()

	frame, err := client.SendAndReceive(domain.MsgPing, nil, time.Second)
	if err != nil {
		t.Fatalf("SendAndReceive: %v", err)
	}
	if frame.Type != domain.MsgPong {
		t.Errorf("Type = %v, want MsgPong", frame.Type)
	}
}

func TestClient_Timeout(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "test.sock")

	srv, err := Bind(sockPath, func(typ domain.MessageType, payload []byte) (domain.MessageType, interface{}) {
		time.Sleep(100 * time.Millisecond)
		return domain.MsgPong, nil
	})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	go srv.Serve()
	defer srv.Stop()

	client := NewClient(srv.Path())
	if err := client.Connect(time.Second); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Disconnect()

	_, err = client.SendAndReceive(domain.MsgPing, nil, 10*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestServer_StaleSocketUnlinked(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "stale.sock")

	srv1, err := Bind(sockPath, func(domain.MessageType, []byte) (domain.MessageType, interface{}) {
		return domain.MsgPong, nil
	})
	if err != nil {
		t.Fatalf("Bind first: %v", err)
	}
	go srv1.Serve()
	srv1.Stop()

	// A clean Stop unlinks the socket, so leave a stale file at the path
	// the way a crashed worker would.
	if err := os.WriteFile(sockPath, nil, 0o600); err != nil {
		t.Fatalf("write stale file: %v", err)
	}

	srv2, err := Bind(sockPath, func(domain.MessageType, []byte) (domain.MessageType, interface{}) {
		return domain.MsgPong, nil
	})
	if err != nil {
		t.Fatalf("Bind second (stale socket should be unlinked): %v", err)
	}
	srv2.Stop()
}
