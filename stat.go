package hubloop

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StatWatcher fires when a path is created, written, removed, renamed, or
// has its attributes changed. Changes are coalesced, like [AsyncWatcher].
//
// The parent directory is watched, so the path need not exist.
type StatWatcher struct {
	watcher
	wake     wakeup
	fsw      *fsnotify.Watcher
	done     chan struct{}
	path     string
	interval time.Duration
	lastOp   atomic.Uint32
}

// Stat creates a stat watcher. The interval is recorded, and unused, as
// changes are notified by the OS.
func (a *Adapter) Stat(path string, interval time.Duration, opts ...WatcherOption) (*StatWatcher, error) {
	if err := a.checkLive("stat"); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, argumentErrorf("stat", "path must not be empty")
	}
	if interval < 0 {
		return nil, argumentErrorf("stat", "interval must be positive or zero: %v", interval)
	}
	w := &StatWatcher{path: filepath.Clean(path), interval: interval}
	w.init(a, w, KindStat, resolveWatcherOptions(opts))
	w.wake.init(a.host, w.deliver)
	return w, nil
}

// Start begins watching the path.
func (w *StatWatcher) Start(cb Func) error {
	if err := w.begin(cb); err != nil {
		return err
	}
	if w.Active() {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.end()
		return newSystemError("stat watch", err)
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		_ = fsw.Close()
		w.end()
		return newSystemError("stat watch", err)
	}

	w.fsw = fsw
	w.done = make(chan struct{})
	go w.forward(fsw, w.done)

	if err := w.wake.repost(); err != nil {
		w.loop.handleSyserr("stat start", err)
	}
	return nil
}

// forward converts fsnotify events for the path into wakeups.
func (w *StatWatcher) forward(fsw *fsnotify.Watcher, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			w.lastOp.Store(uint32(ev.Op))
			_ = w.wake.send()
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.loop.logger.Warning().
				Str("adapter", w.loop.id.String()).
				Str("path", w.path).
				Err(err).
				Log("stat watch error")
		}
	}
}

// Stop ends watching.
func (w *StatWatcher) Stop() {
	if w.fsw != nil {
		close(w.done)
		_ = w.fsw.Close()
		w.fsw = nil
		w.done = nil
	}
	w.wake.take()
	w.end()
}

// Active reports whether the path is being watched.
func (w *StatWatcher) Active() bool { return w.fsw != nil }

func (w *StatWatcher) deliver() {
	if !w.Active() || !w.wake.take() {
		return
	}
	_ = w.dispatch()
}

// Path returns the watched path.
func (w *StatWatcher) Path() string { return w.path }

// Interval returns the interval given to Stat.
func (w *StatWatcher) Interval() time.Duration { return w.interval }

// LastOp returns the last observed change.
func (w *StatWatcher) LastOp() fsnotify.Op { return fsnotify.Op(w.lastOp.Load()) }

func (w *StatWatcher) String() string {
	return w.format(fmt.Sprintf(" path=%q", w.path))
}
