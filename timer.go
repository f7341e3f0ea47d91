package hubloop

import (
	"fmt"
	"time"

	"github.com/joeycumines/go-hubloop/hostloop"
)

// TimerWatcher fires after a delay, then optionally repeats.
//
// Backed by a single host timer, armed single-shot for the initial delay,
// then switched to repeating. Late repeats are not caught up.
type TimerWatcher struct {
	watcher
	handle *hostloop.Timer
	after  time.Duration
	repeat time.Duration
}

// Timer creates a timer watcher, firing after the given delay, then every
// repeat (if non-zero). Both must be zero or positive.
func (a *Adapter) Timer(after, repeat time.Duration, opts ...WatcherOption) (*TimerWatcher, error) {
	if err := a.checkLive("timer"); err != nil {
		return nil, err
	}
	if after < 0 {
		return nil, argumentErrorf("timer", "after must be positive or zero: %v", after)
	}
	if repeat < 0 {
		return nil, argumentErrorf("timer", "repeat must be positive or zero: %v", repeat)
	}
	w := &TimerWatcher{after: after, repeat: repeat}
	w.init(a, w, KindTimer, resolveWatcherOptions(opts))
	return w, nil
}

// Start arms the timer, and wakes the host loop.
func (w *TimerWatcher) Start(cb Func) error { return w.start(cb, true) }

// StartNoUpdate arms the timer, without waking the host loop.
func (w *TimerWatcher) StartNoUpdate(cb Func) error { return w.start(cb, false) }

func (w *TimerWatcher) start(cb Func, update bool) error {
	if err := w.begin(cb); err != nil {
		return err
	}
	if w.Active() {
		return nil
	}
	if update {
		w.loop.Update()
	}
	w.arm()
	w.handle.SetSingleShot(true)
	w.handle.SetInterval(w.after)
	w.handle.Start()
	return nil
}

// Again restarts the timer from now, using the repeat interval. If repeat is
// zero, the timer is stopped.
func (w *TimerWatcher) Again(cb Func) error {
	if err := w.begin(cb); err != nil {
		return err
	}
	if w.repeat == 0 {
		w.Stop()
		return nil
	}
	w.arm()
	w.handle.SetSingleShot(false)
	w.handle.SetInterval(w.repeat)
	w.handle.Start()
	return nil
}

func (w *TimerWatcher) arm() {
	if w.handle == nil {
		w.handle = w.loop.host.NewTimer(w.fire)
	}
}

func (w *TimerWatcher) fire() {
	if w.repeat > 0 && w.handle.SingleShot() {
		// initial delay elapsed, repeat from the deadline
		w.handle.SetSingleShot(false)
		w.handle.SetInterval(w.repeat)
		w.handle.StartAt(w.handle.Deadline().Add(w.repeat))
	}
	_ = w.dispatch()
}

// Stop cancels the timer, and releases the host timer.
func (w *TimerWatcher) Stop() {
	if w.handle != nil {
		w.handle.Close()
		w.handle = nil
	}
	w.end()
}

// Active reports whether the timer is armed.
func (w *TimerWatcher) Active() bool {
	return w.handle != nil && w.handle.Active()
}

// After returns the initial delay.
func (w *TimerWatcher) After() time.Duration { return w.after }

// Repeat returns the repeat interval, zero if not repeating.
func (w *TimerWatcher) Repeat() time.Duration { return w.repeat }

// At is not supported.
func (w *TimerWatcher) At() (time.Time, error) { return time.Time{}, ErrUnsupported }

func (w *TimerWatcher) String() string {
	return w.format(fmt.Sprintf(" after=%v repeat=%v", w.after, w.repeat))
}

// IdleWatcher fires on every host loop iteration, while active.
type IdleWatcher struct {
	watcher
	handle *hostloop.Timer
}

// Idle creates an idle watcher.
func (a *Adapter) Idle(opts ...WatcherOption) (*IdleWatcher, error) {
	if err := a.checkLive("idle"); err != nil {
		return nil, err
	}
	w := &IdleWatcher{}
	w.init(a, w, KindIdle, resolveWatcherOptions(opts))
	return w, nil
}

// Start activates the watcher.
func (w *IdleWatcher) Start(cb Func) error {
	if err := w.begin(cb); err != nil {
		return err
	}
	if w.Active() {
		return nil
	}
	if w.handle == nil {
		w.handle = w.loop.host.NewTimer(func() { _ = w.dispatch() })
	}
	w.handle.SetSingleShot(false)
	w.handle.SetInterval(0)
	w.handle.Start()
	return nil
}

// Stop deactivates the watcher, and releases the host timer.
func (w *IdleWatcher) Stop() {
	if w.handle != nil {
		w.handle.Close()
		w.handle = nil
	}
	w.end()
}

// Active reports whether the watcher is started.
func (w *IdleWatcher) Active() bool {
	return w.handle != nil && w.handle.Active()
}

func (w *IdleWatcher) String() string { return w.format("") }
