//go:build linux || darwin

package hostloop

import (
	"sync/atomic"
)

// fastPoller maps fds to a single callback each, over the kernel poller
// (sysPoller, epoll or kqueue). Several notifiers on one fd are merged a
// level up, by the Loop.
//
// All methods except Close are loop goroutine only.
type fastPoller struct {
	sys    sysPoller
	fds    []fdInfo
	closed atomic.Bool
}

// Init opens the kernel poller.
func (p *fastPoller) Init() error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if err := p.sys.open(); err != nil {
		return err
	}
	p.fds = make([]fdInfo, maxFDs)
	return nil
}

// Close releases the kernel poller. It is idempotent.
func (p *fastPoller) Close() error {
	if p.closed.Swap(true) || p.fds == nil {
		return nil
	}
	return p.sys.close()
}

func (p *fastPoller) lookup(fd int) *fdInfo {
	if fd < 0 || fd >= len(p.fds) || p.fds[fd].callback == nil {
		return nil
	}
	return &p.fds[fd]
}

// RegisterFD starts monitoring fd for events.
func (p *fastPoller) RegisterFD(fd int, events IOEvents, cb ioCallback) error {
	switch {
	case p.closed.Load():
		return ErrPollerClosed
	case fd < 0 || fd >= maxFDLimit:
		return ErrFDOutOfRange
	case p.lookup(fd) != nil:
		return ErrFDAlreadyRegistered
	}
	if err := p.sys.add(fd, events); err != nil {
		return err
	}
	p.fds = growFDs(p.fds, fd)
	p.fds[fd] = fdInfo{callback: cb, events: events}
	return nil
}

// ModifyFD replaces the monitored events of fd.
func (p *fastPoller) ModifyFD(fd int, events IOEvents) error {
	info := p.lookup(fd)
	if info == nil {
		return ErrFDNotRegistered
	}
	if err := p.sys.modify(fd, info.events, events); err != nil {
		return err
	}
	info.events = events
	return nil
}

// UnregisterFD stops monitoring fd. The slot is always released, a kernel
// error (e.g. EBADF, if fd was closed first) is still returned.
func (p *fastPoller) UnregisterFD(fd int) error {
	info := p.lookup(fd)
	if info == nil {
		return ErrFDNotRegistered
	}
	events := info.events
	*info = fdInfo{}
	return p.sys.remove(fd, events)
}

// PollIO waits up to timeoutMs (0 to not block), invoking the callback of
// each ready fd. Returns the number of kernel events.
func (p *fastPoller) PollIO(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrPollerClosed
	}
	return p.sys.wait(timeoutMs, p.dispatch)
}

func (p *fastPoller) dispatch(fd int, ready IOEvents) {
	// looked up per event, an earlier callback may have unregistered fd
	if info := p.lookup(fd); info != nil {
		info.callback(ready)
	}
}
