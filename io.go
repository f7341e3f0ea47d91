package hubloop

import (
	"fmt"
	"strings"

	"github.com/joeycumines/go-hubloop/hostloop"
)

// IOEvents is the interest mask of an [IOWatcher].
type IOEvents uint32

const (
	// Read watches for readability.
	Read IOEvents = 1
	// Write watches for writability.
	Write IOEvents = 2
)

// String renders the mask, e.g. "READABLE|WRITABLE".
func (e IOEvents) String() string {
	var parts []string
	if e&Read != 0 {
		parts = append(parts, "READABLE")
	}
	if e&Write != 0 {
		parts = append(parts, "WRITABLE")
	}
	return strings.Join(parts, "|")
}

func (e IOEvents) host() hostloop.IOEvents {
	var events hostloop.IOEvents
	if e&Read != 0 {
		events |= hostloop.EventRead
	}
	if e&Write != 0 {
		events |= hostloop.EventWrite
	}
	return events
}

func validateIOEvents(op string, events IOEvents) error {
	if events == 0 || events&^(Read|Write) != 0 {
		return argumentErrorf(op, "invalid events %#x", uint32(events))
	}
	return nil
}

// IOWatcher fires when a file descriptor is ready, per its events.
//
// A callback error stops the watcher.
type IOWatcher struct {
	watcher
	notifier *hostloop.Notifier
	fd       int
	events   IOEvents
}

// IO creates an I/O watcher. The fd is not owned, and must outlive the
// active watcher.
func (a *Adapter) IO(fd int, events IOEvents, opts ...WatcherOption) (*IOWatcher, error) {
	if err := a.checkLive("io"); err != nil {
		return nil, err
	}
	if fd < 0 {
		return nil, argumentErrorf("io", "invalid fd %d", fd)
	}
	if err := validateIOEvents("io", events); err != nil {
		return nil, err
	}
	w := &IOWatcher{fd: fd, events: events}
	w.init(a, w, KindIO, resolveWatcherOptions(opts))
	return w, nil
}

// Start enables the watcher. Failure to register the fd with the host loop
// returns a *SystemError, where the OS reports one.
func (w *IOWatcher) Start(cb Func) error {
	if err := w.begin(cb); err != nil {
		return err
	}
	if w.Active() {
		return nil
	}
	n, err := w.newNotifier()
	if err != nil {
		w.end()
		return err
	}
	w.notifier = n
	return nil
}

func (w *IOWatcher) newNotifier() (*hostloop.Notifier, error) {
	n, err := w.loop.host.NewNotifier(w.fd, w.events.host(), w.ready)
	if err != nil {
		return nil, newSystemError("io watcher", err)
	}
	if err := n.SetEnabled(true); err != nil {
		n.Close()
		return nil, newSystemError("io watcher", err)
	}
	return n, nil
}

func (w *IOWatcher) ready(hostloop.IOEvents) {
	if err := w.dispatch(); err != nil {
		w.Stop()
	}
}

// Stop disables the watcher, and releases the host notifier.
func (w *IOWatcher) Stop() {
	if w.notifier != nil {
		w.notifier.Close()
		w.notifier = nil
	}
	w.end()
}

// Active reports whether the watcher is enabled.
func (w *IOWatcher) Active() bool {
	return w.notifier != nil && w.notifier.Enabled()
}

// FD returns the watched file descriptor.
func (w *IOWatcher) FD() int { return w.fd }

// Events returns the interest mask.
func (w *IOWatcher) Events() IOEvents { return w.events }

// EventsString renders the interest mask, e.g. "READABLE|WRITABLE".
func (w *IOWatcher) EventsString() string { return w.events.String() }

// SetEvents changes the interest mask. An active watcher is moved to a new
// host notifier, keeping its callback, and never appears inactive.
func (w *IOWatcher) SetEvents(events IOEvents) error {
	if err := validateIOEvents("io set events", events); err != nil {
		return err
	}
	if events == w.events {
		return nil
	}
	prev := w.events
	w.events = events
	if !w.Active() {
		return nil
	}
	// close first, the host registers the union of one fd's notifiers
	w.notifier.Close()
	n, err := w.newNotifier()
	if err != nil {
		w.events = prev
		if n, rerr := w.newNotifier(); rerr == nil {
			w.notifier = n
		} else {
			w.notifier = nil
			w.end()
		}
		return err
	}
	w.notifier = n
	return nil
}

func (w *IOWatcher) String() string {
	return w.format(fmt.Sprintf(" fd=%d events=%s", w.fd, w.events))
}
