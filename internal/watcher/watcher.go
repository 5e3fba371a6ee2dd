// Package watcher implements the Config File Watcher (spec §4.I): a
// per-file change notifier that debounces rapid writes by waiting for
// the file's modification time to stop moving before invoking its
// callback. The underlying notification mechanism is platform-specific
// (see watch_linux.go, watch_other.go); only the stability check and
// polling fallback are shared here.
package watcher

import (
	"os"
	"time"
)

// Callback receives the watched path once its content has stabilized
// after a change.
type Callback func(path string)

// Config tunes the polling fallback and the post-change stability
// check shared by every platform backend.
type Config struct {
	PollInterval    time.Duration
	StabilityWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.StabilityWindow <= 0 {
		c.StabilityWindow = 100 * time.Millisecond
	}
	return c
}

// Watcher watches a single file for changes.
type Watcher struct {
	path string
	cfg  Config
	cb   Callback
	stop chan struct{}
	done chan struct{}
}

// New creates a Watcher for path. The callback runs on the watcher's
// own goroutine; it must not block for long.
func New(path string, cfg Config, cb Callback) *Watcher {
	return &Watcher{
		path: path,
		cfg:  cfg.withDefaults(),
		cb:   cb,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start begins watching in the background.
func (w *Watcher) Start() {
	go func() {
		defer close(w.done)
		watchPlatform(w)
	}()
}

// Stop halts the watcher and blocks until its goroutine has exited.
func (w *Watcher) Stop() {
	close(w.stop)
	<-w.done
}

// waitStable blocks, resampling the file's mtime every StabilityWindow,
// until two consecutive samples agree, then invokes the callback. It
// returns early without calling back if the watcher is stopped or the
// file disappears mid-wait (a transient state during atomic replace).
func (w *Watcher) waitStable() {
	last, ok := modTime(w.path)
	if !ok {
		return
	}
	for {
		select {
		case <-w.stop:
			return
		case <-time.After(w.cfg.StabilityWindow):
		}
		cur, ok := modTime(w.path)
		if !ok {
			return
		}
		if cur.Equal(last) {
			w.cb(w.path)
			return
		}
		last = cur
	}
}

// pollLoop is the polling fallback (§4.I: "falling back to polling at
// 500 ms"), used on non-Linux platforms and whenever the Linux inotify
// backend fails to initialize.
func pollLoop(w *Watcher) {
	last, _ := modTime(w.path)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			cur, ok := modTime(w.path)
			if !ok {
				continue
			}
			if last.IsZero() || !cur.Equal(last) {
				last = cur
				w.waitStable()
			}
		}
	}
}

func modTime(path string) (time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}
