package hostloop

import (
	"errors"
	"slices"

	"golang.org/x/sys/unix"
)

// Notifier reports readiness of a single file descriptor, for the given
// events. Several notifiers may share a file descriptor, e.g. one for read
// and one for write.
//
// Notifiers must be driven on the loop goroutine.
type Notifier struct {
	loop    *Loop
	fn      func(IOEvents)
	fd      int
	events  IOEvents
	enabled bool
	closed  bool
}

// fdNotifiers aggregates the notifiers of one fd, the poller registration
// being the union of their interests.
type fdNotifiers struct {
	list       []*Notifier
	registered IOEvents
}

var errNoInterest = errors.New("hostloop: notifier requires read or write interest")

// NewNotifier creates a disabled notifier for fd. Only [EventRead] and
// [EventWrite] are meaningful interests, error and hangup conditions are
// always reported. The callback receives the ready events.
func (l *Loop) NewNotifier(fd int, events IOEvents, fn func(IOEvents)) (*Notifier, error) {
	if fd < 0 || fd >= maxFDLimit {
		return nil, ErrFDOutOfRange
	}
	events &= EventRead | EventWrite
	if events == 0 {
		return nil, errNoInterest
	}
	if l.state.IsTerminal() {
		return nil, ErrLoopTerminated
	}
	return &Notifier{
		loop:   l,
		fn:     fn,
		fd:     fd,
		events: events,
	}, nil
}

// FD returns the file descriptor.
func (n *Notifier) FD() int { return n.fd }

// Events returns the interest set.
func (n *Notifier) Events() IOEvents { return n.events }

// Enabled reports whether the notifier is registered with the poller.
func (n *Notifier) Enabled() bool { return n.enabled }

// SetEnabled registers or deregisters the notifier.
func (n *Notifier) SetEnabled(enabled bool) error {
	if n.enabled == enabled {
		return nil
	}
	if enabled {
		if n.closed {
			return ErrNotifierClosed
		}
		if err := n.loop.enableNotifier(n); err != nil {
			return err
		}
		n.enabled = true
		return nil
	}
	n.enabled = false
	n.loop.disableNotifier(n)
	return nil
}

// Close disables the notifier, and releases its callback.
func (n *Notifier) Close() {
	_ = n.SetEnabled(false)
	n.closed = true
	n.fn = nil
}

func (l *Loop) enableNotifier(n *Notifier) error {
	entry := l.notifiers[n.fd]
	if entry == nil {
		entry = &fdNotifiers{}
		l.notifiers[n.fd] = entry
	}
	entry.list = append(entry.list, n)
	if err := l.syncFD(n.fd, entry); err != nil {
		entry.list = entry.list[:len(entry.list)-1]
		if len(entry.list) == 0 {
			delete(l.notifiers, n.fd)
		}
		return err
	}
	return nil
}

func (l *Loop) disableNotifier(n *Notifier) {
	entry := l.notifiers[n.fd]
	if entry == nil {
		return
	}
	if i := slices.Index(entry.list, n); i >= 0 {
		entry.list = slices.Delete(entry.list, i, i+1)
	}
	if err := l.syncFD(n.fd, entry); err != nil {
		l.logger.Debug().
			Uint64("loop", l.id).
			Int("fd", n.fd).
			Err(err).
			Log("notifier deregistration failed")
	}
}

// syncFD updates the poller registration of fd, to the union of the enabled
// notifier interests.
func (l *Loop) syncFD(fd int, entry *fdNotifiers) error {
	var want IOEvents
	for _, n := range entry.list {
		want |= n.events
	}

	var err error
	switch {
	case want == entry.registered:
	case entry.registered == 0:
		err = l.poller.RegisterFD(fd, want, func(ready IOEvents) {
			l.dispatchNotifiers(fd, ready)
		})
	case want == 0:
		err = l.poller.UnregisterFD(fd)
		if errors.Is(err, unix.EBADF) || errors.Is(err, unix.ENOENT) {
			// fd closed before the notifier
			err = nil
		}
	default:
		err = l.poller.ModifyFD(fd, want)
	}

	if want == 0 {
		entry.registered = 0
		delete(l.notifiers, fd)
		return err
	}
	if err == nil {
		entry.registered = want
	}
	return err
}

// dispatchNotifiers invokes the notifiers of fd that are interested in ready.
// Error and hangup conditions are delivered to all of them.
func (l *Loop) dispatchNotifiers(fd int, ready IOEvents) {
	entry := l.notifiers[fd]
	if entry == nil {
		return
	}
	list := slices.Clone(entry.list)
	for _, n := range list {
		if !n.enabled || n.fn == nil {
			continue
		}
		if ready&n.events == 0 && ready&(EventError|EventHangup) == 0 {
			continue
		}
		l.safeNotify(n, ready&(n.events|EventError|EventHangup))
	}
}

func (l *Loop) safeNotify(n *Notifier, ready IOEvents) {
	defer func() {
		if r := recover(); r != nil {
			l.logPanic(r)
		}
	}()

	n.fn(ready)
}
