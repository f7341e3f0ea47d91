//go:build linux

package hostloop

import (
	"errors"

	"golang.org/x/sys/unix"
)

// sysPoller is the epoll instance, and its event buffer.
type sysPoller struct {
	events [256]unix.EpollEvent
	epfd   int
}

func (s *sysPoller) open() error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	s.epfd = epfd
	return nil
}

func (s *sysPoller) close() error { return unix.Close(s.epfd) }

func (s *sysPoller) add(fd int, events IOEvents) error {
	return s.ctl(unix.EPOLL_CTL_ADD, fd, events)
}

func (s *sysPoller) modify(fd int, _, events IOEvents) error {
	return s.ctl(unix.EPOLL_CTL_MOD, fd, events)
}

func (s *sysPoller) remove(fd int, _ IOEvents) error {
	return unix.EpollCtl(s.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (s *sysPoller) ctl(op, fd int, events IOEvents) error {
	ev := unix.EpollEvent{Events: epollMask(events), Fd: int32(fd)}
	return unix.EpollCtl(s.epfd, op, fd, &ev)
}

func (s *sysPoller) wait(timeoutMs int, fn func(fd int, ready IOEvents)) (int, error) {
	n, err := unix.EpollWait(s.epfd, s.events[:], timeoutMs)
	if errors.Is(err, unix.EINTR) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	for i := range s.events[:n] {
		fn(int(s.events[i].Fd), epollReady(s.events[i].Events))
	}
	return n, nil
}

// epollMask converts interest to epoll flags. EPOLLERR and EPOLLHUP are
// always reported by the kernel.
func epollMask(events IOEvents) uint32 {
	var mask uint32
	if events&EventRead != 0 {
		mask |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		mask |= unix.EPOLLOUT
	}
	return mask
}

func epollReady(mask uint32) IOEvents {
	var ready IOEvents
	if mask&unix.EPOLLIN != 0 {
		ready |= EventRead
	}
	if mask&unix.EPOLLOUT != 0 {
		ready |= EventWrite
	}
	if mask&unix.EPOLLERR != 0 {
		ready |= EventError
	}
	if mask&unix.EPOLLHUP != 0 {
		ready |= EventHangup
	}
	return ready
}
