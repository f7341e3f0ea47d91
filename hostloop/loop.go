// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package hostloop

import (
	"context"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/joeycumines/logiface"
	"golang.org/x/sys/unix"
)

// ProcessFlags controls a single [Loop.ProcessEvents] iteration.
type ProcessFlags uint32

const (
	// AllEvents processes whatever is pending, without waiting.
	AllEvents ProcessFlags = 0
	// WaitForMoreEvents blocks in poll until at least something is due, or
	// the max poll delay elapses.
	WaitForMoreEvents ProcessFlags = 1
)

// Loop is a single-threaded host event loop.
//
// Create with [New], release with [Loop.Close].
type Loop struct { // betteralign:ignore
	// Prevent copying
	_ [0]func()

	logger *logiface.Logger[logiface.Event]

	// State machine (cache-line padded internally)
	state *fastState

	poller fastPoller

	// loop goroutine only
	timers     timerHeap
	timerOrder uint64
	notifiers  map[int]*fdNotifiers
	iteration  uint64

	postedMu sync.Mutex
	posted   []func()

	// Wake-up mechanism
	wakeFd      int
	wakeWriteFd int
	wakeBuf     [8]byte
	wakePending atomic.Uint32

	loopGoroutineID atomic.Uint64
	execDepth       atomic.Int32
	quitRequested   atomic.Bool

	closeOnce sync.Once

	maxPollDelay time.Duration

	id uint64
}

var loopIDCounter atomic.Uint64

// New creates a new host loop.
func New(opts ...Option) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	wakeFd, wakeWriteFd, err := createWakeFd()
	if err != nil {
		return nil, err
	}

	loop := &Loop{
		id:           loopIDCounter.Add(1),
		logger:       cfg.logger,
		state:        newFastState(),
		notifiers:    make(map[int]*fdNotifiers),
		wakeFd:       wakeFd,
		wakeWriteFd:  wakeWriteFd,
		maxPollDelay: cfg.maxPollDelay,
	}

	closeWake := func() {
		_ = unix.Close(wakeFd)
		if wakeWriteFd != wakeFd {
			_ = unix.Close(wakeWriteFd)
		}
	}

	if err := loop.poller.Init(); err != nil {
		closeWake()
		return nil, err
	}

	if err := loop.poller.RegisterFD(wakeFd, EventRead, func(IOEvents) {
		loop.drainWakeUpPipe()
	}); err != nil {
		_ = loop.poller.Close()
		closeWake()
		return nil, err
	}

	loop.logger.Debug().
		Uint64("loop", loop.id).
		Log("host loop created")

	return loop, nil
}

// ID returns the unique (per process) id of the loop.
func (l *Loop) ID() uint64 { return l.id }

// State returns the current loop state.
func (l *Loop) State() State { return l.state.Load() }

// Now returns the current time, as used for timer deadlines.
func (l *Loop) Now() time.Time { return time.Now() }

// Iteration returns the number of iterations processed so far.
// Loop goroutine only.
func (l *Loop) Iteration() uint64 { return l.iteration }

// IsLoopThread reports whether the caller is the goroutine currently pumping
// the loop.
func (l *Loop) IsLoopThread() bool {
	id := l.loopGoroutineID.Load()
	return id != 0 && id == getGoroutineID()
}

// ProcessEvents runs a single iteration of the loop. It may be called from
// within a loop callback, in which case it nests.
func (l *Loop) ProcessEvents(flags ProcessFlags) error {
	outer, err := l.enter()
	if err != nil {
		return err
	}
	defer l.exit(outer)

	return l.iterate(flags&WaitForMoreEvents != 0)
}

// Exec runs the loop until [Loop.Quit] is called, ctx is cancelled, or the
// loop is closed. Nested calls are supported, Quit ends the innermost one.
//
// Returns nil on Quit, ctx.Err() on cancellation, and ErrLoopTerminated if
// the loop was closed.
func (l *Loop) Exec(ctx context.Context) error {
	outer, err := l.enter()
	if err != nil {
		return err
	}
	defer l.exit(outer)

	if outer {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	l.execDepth.Add(1)
	defer l.execDepth.Add(-1)
	l.quitRequested.Store(false)

	if done := ctx.Done(); done != nil {
		// wake the loop on cancellation
		ctxDone := make(chan struct{})
		defer close(ctxDone)
		go func() {
			select {
			case <-done:
				l.WakeUp()
			case <-ctxDone:
			}
		}()
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if l.quitRequested.CompareAndSwap(true, false) {
			return nil
		}
		if err := l.iterate(true); err != nil {
			return err
		}
	}
}

// Quit ends the innermost running [Loop.Exec], after the current iteration.
// It does nothing if Exec is not running. Safe to call from any goroutine.
func (l *Loop) Quit() {
	if l.execDepth.Load() <= 0 {
		return
	}
	l.quitRequested.Store(true)
	l.WakeUp()
}

// WakeUp interrupts a blocking poll. Safe to call from any goroutine.
func (l *Loop) WakeUp() {
	if l.wakePending.CompareAndSwap(0, 1) {
		if err := l.submitWakeup(); err != nil {
			// expected during shutdown (EBADF, EPIPE), allow a later retry
			l.wakePending.Store(0)
		}
	}
}

// Post queues fn to run on the loop goroutine, during the next iteration.
// Safe to call from any goroutine. Posted functions run in FIFO order.
func (l *Loop) Post(fn func()) error {
	if fn == nil {
		return nil
	}
	if l.state.IsTerminal() {
		return ErrLoopTerminated
	}

	l.postedMu.Lock()
	l.posted = append(l.posted, fn)
	l.postedMu.Unlock()

	l.WakeUp()
	return nil
}

// Close releases the loop's resources. If the loop is currently running, the
// running ProcessEvents/Exec returns ErrLoopTerminated, and the file
// descriptors are released as it exits.
func (l *Loop) Close() error {
	prev := l.state.Swap(StateTerminated)
	switch prev {
	case StateTerminated:
		return ErrLoopTerminated
	case StateAwake:
		l.closeFDs()
	default:
		_ = l.submitWakeupUnchecked()
	}

	l.logger.Debug().
		Uint64("loop", l.id).
		Str("state", prev.String()).
		Log("host loop closed")

	return nil
}

func (l *Loop) enter() (outer bool, err error) {
	if l.state.IsTerminal() {
		return false, ErrLoopTerminated
	}
	gid := getGoroutineID()
	if l.loopGoroutineID.Load() == gid {
		return false, nil
	}
	if !l.loopGoroutineID.CompareAndSwap(0, gid) {
		return false, ErrNotLoopThread
	}
	l.state.TryTransition(StateAwake, StateRunning)
	return true, nil
}

func (l *Loop) exit(outer bool) {
	if !outer {
		return
	}
	l.loopGoroutineID.Store(0)
	if !l.state.TryTransition(StateRunning, StateAwake) && l.state.IsTerminal() {
		l.closeFDs()
	}
}

// iterate is a single iteration of the loop.
func (l *Loop) iterate(wait bool) error {
	if l.state.IsTerminal() {
		return ErrLoopTerminated
	}

	l.iteration++

	timeout := 0
	if wait {
		timeout = l.calculateTimeout()
	}

	if err := l.poll(timeout); err != nil {
		return err
	}

	l.runPosted()

	l.runTimers()

	return nil
}

// poll performs the (possibly blocking) poll, dispatching notifiers.
func (l *Loop) poll(timeout int) error {
	sleeping := timeout != 0 && l.state.TryTransition(StateRunning, StateSleeping)

	_, err := l.poller.PollIO(timeout)

	if sleeping {
		l.state.TryTransition(StateSleeping, StateRunning)
	}

	if err != nil {
		if l.state.IsTerminal() {
			return ErrLoopTerminated
		}
		l.logger.Crit().
			Uint64("loop", l.id).
			Err(err).
			Log("poll failed")
		return err
	}

	return nil
}

// calculateTimeout determines how long to block in poll, in milliseconds.
func (l *Loop) calculateTimeout() int {
	if l.hasPosted() {
		return 0
	}

	maxDelay := l.maxPollDelay

	// Cap by next timer
	if len(l.timers) > 0 {
		delay := time.Until(l.timers[0].when)
		if delay <= 0 {
			return 0
		}
		if delay < maxDelay {
			maxDelay = delay
		}
	}

	// Ceiling rounding, so timers are never woken for early
	return int((maxDelay + time.Millisecond - 1) / time.Millisecond)
}

func (l *Loop) hasPosted() bool {
	l.postedMu.Lock()
	defer l.postedMu.Unlock()
	return len(l.posted) != 0
}

// runPosted drains the posted queue, as of entry. Functions posted while
// draining run in the next iteration.
func (l *Loop) runPosted() {
	l.postedMu.Lock()
	tasks := l.posted
	l.posted = nil
	l.postedMu.Unlock()

	for i, fn := range tasks {
		l.safeExecute(fn)
		tasks[i] = nil
	}
}

// drainWakeUpPipe drains the wake-up fd.
func (l *Loop) drainWakeUpPipe() {
	for {
		_, err := unix.Read(l.wakeFd, l.wakeBuf[:])
		if err != nil {
			break
		}
	}
	l.wakePending.Store(0)
}

// submitWakeup writes to the wake-up fd, unless terminated.
func (l *Loop) submitWakeup() error {
	if l.state.IsTerminal() {
		return ErrLoopTerminated
	}
	return l.submitWakeupUnchecked()
}

func (l *Loop) submitWakeupUnchecked() error {
	// Native endianness, as required by eventfd
	var one uint64 = 1
	buf := (*[8]byte)(unsafe.Pointer(&one))[:]
	_, err := unix.Write(l.wakeWriteFd, buf)
	return err
}

// safeExecute executes fn with panic recovery.
func (l *Loop) safeExecute(fn func()) {
	if fn == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			l.logPanic(r)
		}
	}()

	fn()
}

func (l *Loop) logPanic(r any) {
	if l.logger == nil {
		log.Printf("ERROR: hostloop: callback panicked: %v", r)
		return
	}
	l.logger.Err().
		Uint64("loop", l.id).
		Any("panic", r).
		Log("callback panicked")
}

// closeFDs closes file descriptors, once.
func (l *Loop) closeFDs() {
	l.closeOnce.Do(func() {
		_ = l.poller.Close()
		_ = unix.Close(l.wakeFd)
		if l.wakeWriteFd != l.wakeFd {
			_ = unix.Close(l.wakeWriteFd)
		}
	})
}

// getGoroutineID returns the current goroutine's ID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
