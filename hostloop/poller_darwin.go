//go:build darwin

package hostloop

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// sysPoller is the kqueue instance, and its event buffer. Read and write
// interest are separate filters, so one fd may be reported twice per wait.
type sysPoller struct {
	events [256]unix.Kevent_t
	kq     int
}

func (s *sysPoller) open() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	unix.CloseOnExec(kq)
	s.kq = kq
	return nil
}

func (s *sysPoller) close() error { return unix.Close(s.kq) }

func (s *sysPoller) add(fd int, events IOEvents) error {
	return s.apply(fd, events, unix.EV_ADD|unix.EV_ENABLE)
}

func (s *sysPoller) modify(fd int, old, events IOEvents) error {
	if removed := old &^ events; removed != 0 {
		_ = s.apply(fd, removed, unix.EV_DELETE)
	}
	return s.apply(fd, events&^old, unix.EV_ADD|unix.EV_ENABLE)
}

func (s *sysPoller) remove(fd int, events IOEvents) error {
	return s.apply(fd, events, unix.EV_DELETE)
}

// apply submits one change per filter in events.
func (s *sysPoller) apply(fd int, events IOEvents, flags int) error {
	var changes [2]unix.Kevent_t
	n := 0
	if events&EventRead != 0 {
		unix.SetKevent(&changes[n], fd, unix.EVFILT_READ, flags)
		n++
	}
	if events&EventWrite != 0 {
		unix.SetKevent(&changes[n], fd, unix.EVFILT_WRITE, flags)
		n++
	}
	if n == 0 {
		return nil
	}
	_, err := unix.Kevent(s.kq, changes[:n], nil, nil)
	return err
}

func (s *sysPoller) wait(timeoutMs int, fn func(fd int, ready IOEvents)) (int, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(time.Duration(timeoutMs) * time.Millisecond))
		ts = &t
	}
	n, err := unix.Kevent(s.kq, nil, s.events[:], ts)
	if errors.Is(err, unix.EINTR) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	for i := range s.events[:n] {
		fn(int(s.events[i].Ident), keventReady(&s.events[i]))
	}
	return n, nil
}

func keventReady(kev *unix.Kevent_t) IOEvents {
	var ready IOEvents
	switch kev.Filter {
	case unix.EVFILT_READ:
		ready |= EventRead
	case unix.EVFILT_WRITE:
		ready |= EventWrite
	}
	if kev.Flags&unix.EV_ERROR != 0 {
		ready |= EventError
	}
	if kev.Flags&unix.EV_EOF != 0 {
		ready |= EventHangup
	}
	return ready
}
