package hubloop

// AsyncWatcher is a coalesced wakeup, which may be sent from any goroutine.
// Any number of sends before the loop processes the first collapse into a
// single callback. It signals "check shared state", it does not carry data.
//
// The watcher stays active after firing, until stopped. A send to an
// inactive watcher is retained, and delivered once it is started.
type AsyncWatcher struct {
	watcher
	wake   wakeup
	active bool
}

// Async creates an async watcher.
func (a *Adapter) Async(opts ...WatcherOption) (*AsyncWatcher, error) {
	if err := a.checkLive("async"); err != nil {
		return nil, err
	}
	w := &AsyncWatcher{}
	w.init(a, w, KindAsync, resolveWatcherOptions(opts))
	w.wake.init(a.host, w.deliver)
	return w, nil
}

// Start activates the watcher, delivering any retained send.
func (w *AsyncWatcher) Start(cb Func) error {
	if err := w.begin(cb); err != nil {
		return err
	}
	if w.active {
		return nil
	}
	w.active = true
	if err := w.wake.repost(); err != nil {
		w.loop.handleSyserr("async start", err)
	}
	return nil
}

// Stop deactivates the watcher.
func (w *AsyncWatcher) Stop() {
	w.active = false
	w.end()
}

// Active reports whether the watcher is started.
func (w *AsyncWatcher) Active() bool { return w.active }

// Send wakes the watcher. Safe to call from any goroutine. It fails only if
// the host loop has been closed.
func (w *AsyncWatcher) Send() error {
	return w.wake.send()
}

// Sent reports whether a send is awaiting delivery.
func (w *AsyncWatcher) Sent() bool { return w.wake.pending() }

func (w *AsyncWatcher) deliver() {
	if !w.active || !w.wake.take() {
		return
	}
	_ = w.dispatch()
}

func (w *AsyncWatcher) String() string { return w.format("") }
