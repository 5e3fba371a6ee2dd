//go:build linux

package watcher

import (
	"path/filepath"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/oriys/nova/internal/logging"
)

const inotifyEventSize = unix.SizeofInotifyEvent

// watchPlatform watches the containing directory (not the file itself)
// so atomic replace (temp file + rename) and truncate-then-write are
// both observed, the same directory-watch idiom fsnotify-based callers
// elsewhere in the pack use for config reload.
func watchPlatform(w *Watcher) {
	dir := filepath.Dir(w.path)
	base := filepath.Base(w.path)

	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		logging.Op().Warn("watcher: inotify init failed, falling back to polling", "path", w.path, "err", err)
		pollLoop(w)
		return
	}
	defer unix.Close(fd)

	wd, err := unix.InotifyAddWatch(fd, dir, unix.IN_MODIFY|unix.IN_CREATE|unix.IN_MOVED_TO|unix.IN_CLOSE_WRITE)
	if err != nil {
		logging.Op().Warn("watcher: inotify add_watch failed, falling back to polling", "path", dir, "err", err)
		pollLoop(w)
		return
	}
	defer func() { _, _ = unix.InotifyRmWatch(fd, uint32(wd)) }()

	buf := make([]byte, 4096)
	for {
		select {
		case <-w.stop:
			return
		default:
		}

		n, err := unix.Read(fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				select {
				case <-w.stop:
					return
				case <-time.After(50 * time.Millisecond):
					continue
				}
			}
			logging.Op().Warn("watcher: inotify read failed", "path", w.path, "err", err)
			return
		}

		if matchesBase(buf[:n], base) {
			w.waitStable()
		}
	}
}

// matchesBase scans a buffer of one or more inotify_event structs for
// one whose name matches base.
func matchesBase(buf []byte, base string) bool {
	offset := 0
	matched := false
	for offset+inotifyEventSize <= len(buf) {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		nameLen := int(raw.Len)
		if nameLen > 0 {
			name := unix.ByteSliceToString(buf[offset+inotifyEventSize : offset+inotifyEventSize+nameLen])
			if name == base {
				matched = true
			}
		}
		offset += inotifyEventSize + nameLen
	}
	return matched
}
