package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherFiresOnceStable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"a":1}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	fired := make(chan string, 4)
	w := New(path, Config{PollInterval: 20 * time.Millisecond, StabilityWindow: 30 * time.Millisecond}, func(p string) {
		fired <- p
	})
	w.Start()
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"a":2}`), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case p := <-fired:
		if p != path {
			t.Fatalf("callback path = %q, want %q", p, path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not fire within timeout")
	}
}

func TestWatcherStopReturnsAfterStart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	w := New(path, Config{PollInterval: 10 * time.Millisecond}, func(string) {})
	w.Start()
	w.Stop()
}
