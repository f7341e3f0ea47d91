package hubloop

import (
	"fmt"
	"strings"

	"github.com/joeycumines/go-hubloop/hostloop"
)

// Callback is a function scheduled by [Adapter.RunCallback], to run once, as
// soon as possible, on the loop goroutine.
type Callback struct {
	loop    *Adapter
	fn      Func
	timer   *hostloop.Timer
	running bool
}

// RunCallback schedules fn. In-flight callbacks keep a blocking run alive.
func (a *Adapter) RunCallback(fn Func) (*Callback, error) {
	if err := a.checkLive("run callback"); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, argumentErrorf("run callback", "callback must not be nil")
	}

	cb := &Callback{loop: a, fn: fn}
	cb.timer = a.host.NewTimer(cb.fire)
	cb.timer.SetSingleShot(true)
	cb.timer.SetInterval(0)
	cb.timer.Start()
	a.callbacks[cb] = struct{}{}

	return cb, nil
}

func (cb *Callback) fire() {
	fn := cb.fn
	if fn == nil {
		cb.release()
		return
	}

	cb.fn = nil
	cb.running = true
	err := cb.loop.invoke(fn)
	cb.running = false

	cb.release()

	if err != nil {
		cb.loop.HandleError(nil, &CallbackError{Cause: err})
	}
}

// release frees the host timer, exactly once.
func (cb *Callback) release() {
	if cb.timer == nil {
		return
	}
	cb.timer.Close()
	cb.timer = nil
	delete(cb.loop.callbacks, cb)
	cb.loop.maybeQuit()
}

// Stop cancels the callback, if it has not yet run.
func (cb *Callback) Stop() {
	cb.fn = nil
	cb.release()
}

// Pending reports whether the callback is yet to run.
func (cb *Callback) Pending() bool { return cb.fn != nil }

// Running reports whether the callback is yet to run, or is running.
func (cb *Callback) Running() bool { return cb.fn != nil || cb.running }

func (cb *Callback) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<hubloop.Callback %p", cb)
	if cb.fn != nil {
		b.WriteString(" pending callback=")
		b.WriteString(funcName(cb.fn))
	} else if !cb.running {
		b.WriteString(" stopped")
	}
	b.WriteByte('>')
	return b.String()
}
