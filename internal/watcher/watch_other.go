//go:build !linux

package watcher

// watchPlatform falls back to polling on platforms without inotify.
func watchPlatform(w *Watcher) {
	pollLoop(w)
}
