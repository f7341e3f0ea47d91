package hubloop

import (
	"fmt"
)

// NoOpWatcher stands in for watcher kinds the host loop has no equivalent
// for (Prepare, Check and Fork). It is never active, and never fires.
type NoOpWatcher struct {
	kind     Kind
	priority int
	ref      bool
}

func (a *Adapter) noop(op string, kind Kind, opts []WatcherOption) (*NoOpWatcher, error) {
	if err := a.checkLive(op); err != nil {
		return nil, err
	}
	cfg := resolveWatcherOptions(opts)
	return &NoOpWatcher{kind: kind, ref: cfg.ref, priority: cfg.priority}, nil
}

// Prepare returns a no-op watcher.
func (a *Adapter) Prepare(opts ...WatcherOption) (*NoOpWatcher, error) {
	return a.noop("prepare", KindPrepare, opts)
}

// Check returns a no-op watcher.
func (a *Adapter) Check(opts ...WatcherOption) (*NoOpWatcher, error) {
	return a.noop("check", KindCheck, opts)
}

// Fork returns a no-op watcher.
func (a *Adapter) Fork(opts ...WatcherOption) (*NoOpWatcher, error) {
	return a.noop("fork", KindFork, opts)
}

func (w *NoOpWatcher) Kind() Kind { return w.kind }

// Start does nothing.
func (w *NoOpWatcher) Start(Func) error { return nil }

// Stop does nothing.
func (w *NoOpWatcher) Stop() {}

func (w *NoOpWatcher) Active() bool { return false }

func (w *NoOpWatcher) Pending() bool { return false }

func (w *NoOpWatcher) Ref() bool { return w.ref }

func (w *NoOpWatcher) SetRef(ref bool) { w.ref = ref }

func (w *NoOpWatcher) Callback() Func { return nil }

func (w *NoOpWatcher) Priority() int { return w.priority }

func (w *NoOpWatcher) Feed() error { return ErrUnsupported }

func (w *NoOpWatcher) String() string {
	return fmt.Sprintf("<hubloop.%s %p>", w.kind, w)
}
