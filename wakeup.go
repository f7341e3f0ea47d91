package hubloop

import (
	"sync/atomic"

	"github.com/joeycumines/go-hubloop/hostloop"
)

// wakeup is a coalesced notification, sent from any goroutine and delivered
// on the loop goroutine. Sends before delivery collapse into one.
//
// The owner's deliver function must call take, which reports (and clears)
// the pending send. A send is retained until taken.
type wakeup struct {
	host    *hostloop.Loop
	deliver func()
	sent    atomic.Bool
}

func (w *wakeup) init(host *hostloop.Loop, deliver func()) {
	w.host = host
	w.deliver = deliver
}

// send marks the wakeup pending, posting delivery on the 0 to 1 transition.
// Safe to call from any goroutine.
func (w *wakeup) send() error {
	if !w.sent.CompareAndSwap(false, true) {
		return nil
	}
	if err := w.host.Post(w.deliver); err != nil {
		w.sent.Store(false)
		return err
	}
	return nil
}

// repost posts delivery of a retained send. Loop goroutine only.
func (w *wakeup) repost() error {
	if !w.sent.Load() {
		return nil
	}
	return w.host.Post(w.deliver)
}

// take clears the pending send, reporting whether there was one.
func (w *wakeup) take() bool {
	return w.sent.CompareAndSwap(true, false)
}

// pending reports whether a send is awaiting delivery.
func (w *wakeup) pending() bool {
	return w.sent.Load()
}
