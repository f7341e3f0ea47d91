package hubloop

import (
	"fmt"
	"slices"
)

// SignalWatcher fires on the loop goroutine after an OS signal is raised.
//
// Several watchers may watch one signal, each fires once per drain, in
// registration order. Raises between drains are coalesced.
type SignalWatcher struct {
	watcher
	signum int
	active bool
}

// Signal creates a signal watcher. Requires the adapter to own the signal
// relay, see New.
func (a *Adapter) Signal(signum int, opts ...WatcherOption) (*SignalWatcher, error) {
	if err := a.checkLive("signal"); err != nil {
		return nil, err
	}
	if err := validateSignum("signal", signum); err != nil {
		return nil, err
	}
	if a.relay == nil {
		return nil, ErrSignalsUnavailable
	}
	w := &SignalWatcher{signum: signum}
	w.init(a, w, KindSignal, resolveWatcherOptions(opts))
	return w, nil
}

// Start activates the watcher. The first active watcher of a signal routes
// it through the signal relay.
func (w *SignalWatcher) Start(cb Func) error {
	if err := w.begin(cb); err != nil {
		return err
	}
	if w.active {
		return nil
	}
	if len(w.loop.signals[w.signum]) == 0 {
		var err error
		if w.loop.relay == nil {
			err = ErrSignalsUnavailable
		} else {
			err = w.loop.relay.Watch(w.signum)
		}
		if err != nil {
			w.end()
			return err
		}
	}
	w.active = true
	w.loop.signals[w.signum] = append(w.loop.signals[w.signum], w)
	return nil
}

// Stop deactivates the watcher. The last active watcher of a signal stops
// routing it, restoring the default disposition.
func (w *SignalWatcher) Stop() {
	if w.active {
		w.active = false
		list := w.loop.signals[w.signum]
		if i := slices.Index(list, w); i >= 0 {
			list = slices.Delete(list, i, i+1)
		}
		if len(list) == 0 {
			delete(w.loop.signals, w.signum)
			if w.loop.relay != nil {
				w.loop.relay.Unwatch(w.signum)
			}
		} else {
			w.loop.signals[w.signum] = list
		}
	}
	w.end()
}

// Active reports whether the watcher is started.
func (w *SignalWatcher) Active() bool { return w.active }

// Signum returns the watched signal number.
func (w *SignalWatcher) Signum() int { return w.signum }

func (w *SignalWatcher) String() string {
	return w.format(fmt.Sprintf(" signum=%d", w.signum))
}

// dispatchSignals fires the watchers of each drained signal.
func (a *Adapter) dispatchSignals(signums []int) {
	for _, signum := range signums {
		for _, w := range slices.Clone(a.signals[signum]) {
			if w.active {
				_ = w.dispatch()
			}
		}
	}
}
