package hubloop

import (
	"errors"
	"math/bits"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-hubloop/hostloop"
)

// maxSignum is the highest signal number the relay can represent.
const maxSignum = 64

var (
	relayMu   sync.Mutex
	liveRelay *SignalRelay
)

// SignalRelay defers OS signal delivery onto a host loop, using the
// self-pipe trick. There is at most one live relay per process.
//
// The Go runtime's signal handler is the async-signal-safe part. A relay
// goroutine per watched signal receives from [signal.Notify], records the
// signal in an atomic pending mask, and writes one byte to a non-blocking
// pipe, which the owning adapter watches on its host loop.
//
// There is no teardown at process exit, the pipe is released with the
// process. Close is the explicit teardown.
type SignalRelay struct {
	watched map[int]*relayWatch

	// set only while attached, loop goroutine of the owner
	owner    *Adapter
	notifier *hostloop.Notifier

	wg sync.WaitGroup
	mu sync.Mutex

	pending atomic.Uint64

	readFd  int
	writeFd int

	closed bool
}

// NewSignalRelay creates the process-wide relay. It fails with
// ErrRelayExists if one is live.
func NewSignalRelay() (*SignalRelay, error) {
	relayMu.Lock()
	defer relayMu.Unlock()
	if liveRelay != nil {
		return nil, ErrRelayExists
	}
	r, err := newSignalRelay()
	if err != nil {
		return nil, err
	}
	liveRelay = r
	return r, nil
}

// Relay returns the live relay, creating it if necessary.
func Relay() (*SignalRelay, error) {
	relayMu.Lock()
	defer relayMu.Unlock()
	if liveRelay != nil {
		return liveRelay, nil
	}
	r, err := newSignalRelay()
	if err != nil {
		return nil, err
	}
	liveRelay = r
	return r, nil
}

func newSignalRelay() (*SignalRelay, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, newSystemError("signal relay pipe", err)
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(fds[0])
			_ = unix.Close(fds[1])
			return nil, newSystemError("signal relay pipe", err)
		}
	}

	// keep the process killable with ^C
	signal.Reset(os.Interrupt)

	return &SignalRelay{
		watched: make(map[int]*relayWatch),
		readFd:  fds[0],
		writeFd: fds[1],
	}, nil
}

// relayWatch is the [signal.Notify] registration of one signal.
type relayWatch struct {
	ch   chan os.Signal
	stop chan struct{}
}

func (r *SignalRelay) forward(rw *relayWatch) {
	defer r.wg.Done()
	var b [1]byte
	for {
		select {
		case <-rw.stop:
			return
		case sig := <-rw.ch:
			s, ok := sig.(syscall.Signal)
			if !ok || s < 1 || s > maxSignum {
				continue
			}
			r.pending.Or(1 << (uint(s) - 1))
			// EAGAIN means the pipe is full, and a drain is already due
			_, _ = unix.Write(r.writeFd, b[:])
		}
	}
}

// Watch routes signum through the relay. Repeated calls are no-ops.
func (r *SignalRelay) Watch(signum int) error {
	if err := validateSignum("signal relay watch", signum); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRelayClosed
	}
	if _, ok := r.watched[signum]; ok {
		return nil
	}
	rw := &relayWatch{
		ch:   make(chan os.Signal, 1),
		stop: make(chan struct{}),
	}
	signal.Notify(rw.ch, syscall.Signal(signum))
	r.watched[signum] = rw
	r.wg.Add(1)
	go r.forward(rw)
	return nil
}

// Unwatch stops routing signum, restoring its prior disposition, unless
// another [signal.Notify] registration remains. Unwatched signals are no-ops.
func (r *SignalRelay) Unwatch(signum int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rw, ok := r.watched[signum]; ok {
		delete(r.watched, signum)
		rw.close()
	}
}

func (rw *relayWatch) close() {
	signal.Stop(rw.ch)
	close(rw.stop)
}

// Drain consumes the pipe, and returns the signals raised since the last
// drain, in ascending order. Repeated raises of one signal are coalesced.
func (r *SignalRelay) Drain() []int {
	var buf [64]byte
	for {
		n, err := unix.Read(r.readFd, buf[:])
		if err != nil || n <= 0 {
			break
		}
	}
	mask := r.pending.Swap(0)
	if mask == 0 {
		return nil
	}
	signums := make([]int, 0, bits.OnesCount64(mask))
	for mask != 0 {
		i := bits.TrailingZeros64(mask)
		signums = append(signums, i+1)
		mask &^= 1 << uint(i)
	}
	return signums
}

// Close stops relaying, closes the pipe, and releases the process-wide slot.
// If attached, it must be called from the owner's loop goroutine, or while
// its host loop is not running.
func (r *SignalRelay) Close() error {
	relayMu.Lock()
	defer relayMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRelayClosed
	}
	r.closed = true
	for signum, rw := range r.watched {
		delete(r.watched, signum)
		rw.close()
	}
	if r.notifier != nil {
		r.notifier.Close()
		r.notifier = nil
	}
	if r.owner != nil {
		r.owner.relay = nil
		r.owner = nil
	}
	r.mu.Unlock()

	r.wg.Wait()

	err := errors.Join(unix.Close(r.readFd), unix.Close(r.writeFd))

	if liveRelay == r {
		liveRelay = nil
	}
	return err
}

// attach makes a the owner, watching the pipe on its host loop.
func (r *SignalRelay) attach(a *Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRelayClosed
	}
	if r.owner != nil {
		return ErrSignalsUnavailable
	}
	n, err := a.host.NewNotifier(r.readFd, hostloop.EventRead, func(hostloop.IOEvents) {
		a.dispatchSignals(r.Drain())
	})
	if err != nil {
		return newSystemError("signal relay attach", err)
	}
	if err := n.SetEnabled(true); err != nil {
		n.Close()
		return newSystemError("signal relay attach", err)
	}
	r.owner = a
	r.notifier = n
	return nil
}

func (r *SignalRelay) detach(a *Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owner != a {
		return
	}
	if r.notifier != nil {
		r.notifier.Close()
		r.notifier = nil
	}
	r.owner = nil
}

func validateSignum(op string, signum int) error {
	if signum < 1 || signum > maxSignum {
		return argumentErrorf(op, "invalid signal number %d", signum)
	}
	if signum == int(unix.SIGKILL) || signum == int(unix.SIGSTOP) {
		return argumentErrorf(op, "signal %d cannot be caught", signum)
	}
	return nil
}
