package hubloop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	catrate "github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"

	"github.com/joeycumines/go-hubloop/hostloop"
)

// RunMode selects the behavior of [Adapter.Run].
type RunMode int

const (
	// RunDefault pumps the host loop until it is quit, broken, or (unless
	// disabled by WithExitWhenIdle) nothing remains to keep it alive.
	RunDefault RunMode = iota
	// RunNoWait processes whatever is pending, and returns without waiting.
	RunNoWait
	// RunOnce processes a single iteration, waiting if nothing is pending.
	RunOnce
)

// BreakMode selects the behavior of [Adapter.Break].
type BreakMode int

const (
	// BreakCancel cancels a pending BreakAll.
	BreakCancel BreakMode = iota
	// BreakOne ends the innermost blocking run.
	BreakOne
	// BreakAll ends every nested blocking run.
	BreakAll
)

// Capabilities is the contract a hub requires of its loop backend.
type Capabilities interface {
	IO(fd int, events IOEvents, opts ...WatcherOption) (*IOWatcher, error)
	Timer(after, repeat time.Duration, opts ...WatcherOption) (*TimerWatcher, error)
	Idle(opts ...WatcherOption) (*IdleWatcher, error)
	Check(opts ...WatcherOption) (*NoOpWatcher, error)
	Prepare(opts ...WatcherOption) (*NoOpWatcher, error)
	Async(opts ...WatcherOption) (*AsyncWatcher, error)
	Signal(signum int, opts ...WatcherOption) (*SignalWatcher, error)
	Child(pid int, opts ...WatcherOption) (*ChildWatcher, error)
	Stat(path string, interval time.Duration, opts ...WatcherOption) (*StatWatcher, error)
	Fork(opts ...WatcherOption) (*NoOpWatcher, error)
	Run(mode RunMode) error
	Update()
	Default() bool
	HandleError(context Watcher, err error)
	Destroy()
}

var _ Capabilities = (*Adapter)(nil)

// Adapter drives watchers using a [hostloop.Loop] as the sole reactor.
//
// All methods are loop-goroutine only.
type Adapter struct { // betteralign:ignore
	host   *hostloop.Loop
	logger *logiface.Logger[logiface.Event]

	errorHandler ErrorHandler
	hub          Hub
	diagnostics  io.Writer
	limiter      *catrate.Limiter
	suppressed   map[string]int

	// relay is set only if this adapter owns the signal relay
	relay    *SignalRelay
	signals  map[int][]*SignalWatcher
	children map[int]*ChildWatcher
	sigchld  *SignalWatcher

	watchers  map[Watcher]struct{}
	callbacks map[*Callback]struct{}
	refCount  int

	// errors recorded by the default error handler, returned by Run
	runErr   error
	runDepth int

	id uuid.UUID

	isDefault    bool
	exitWhenIdle bool
	breakAll     bool
	// why the host loop was last asked to quit
	idleQuit  bool
	broken    bool
	destroyed bool
}

// New creates an adapter, on an existing host loop.
//
// A default adapter (see WithDefault) attaches the signal relay, creating the
// process-wide relay if necessary. Only one adapter may own the relay, others
// log a warning, and cannot create Signal or Child watchers.
func New(host *hostloop.Loop, opts ...Option) (*Adapter, error) {
	if host == nil || host.State() == hostloop.StateTerminated {
		return nil, ErrNoHost
	}

	cfg, err := resolveAdapterOptions(opts)
	if err != nil {
		return nil, err
	}

	a := &Adapter{
		host:         host,
		logger:       cfg.logger,
		errorHandler: cfg.errorHandler,
		hub:          cfg.hub,
		diagnostics:  cfg.diagnostics,
		limiter:      cfg.limiter,
		suppressed:   make(map[string]int),
		signals:      make(map[int][]*SignalWatcher),
		children:     make(map[int]*ChildWatcher),
		watchers:     make(map[Watcher]struct{}),
		callbacks:    make(map[*Callback]struct{}),
		id:           uuid.New(),
		isDefault:    cfg.isDefault,
		exitWhenIdle: cfg.exitWhenIdle,
	}

	if a.isDefault {
		relay := cfg.relay
		if relay == nil {
			if relay, err = Relay(); err != nil {
				return nil, err
			}
		}
		switch err := relay.attach(a); {
		case err == nil:
			a.relay = relay
			a.logger.Info().
				Str("adapter", a.id.String()).
				Log("signal relay attached")
		case errors.Is(err, ErrSignalsUnavailable):
			a.logger.Warning().
				Str("adapter", a.id.String()).
				Log("signal relay owned by another adapter, signal and child watchers unavailable")
		default:
			return nil, err
		}
	}

	a.logger.Debug().
		Str("adapter", a.id.String()).
		Uint64("host", host.ID()).
		Bool("default", a.isDefault).
		Log("adapter created")

	return a, nil
}

// Host returns the host loop.
func (a *Adapter) Host() *hostloop.Loop { return a.host }

// ID returns the adapter's unique id.
func (a *Adapter) ID() string { return a.id.String() }

// Default reports whether this is the default adapter.
func (a *Adapter) Default() bool { return a.isDefault }

// Now returns the current time.
func (a *Adapter) Now() time.Time { return a.host.Now() }

// Verify does nothing.
func (a *Adapter) Verify() {}

// Reinit does nothing.
func (a *Adapter) Reinit() {}

// ActiveWatchers returns the number of started watchers, including internal
// ones (e.g. the SIGCHLD watcher). Diagnostic only.
func (a *Adapter) ActiveWatchers() int { return len(a.watchers) }

// Run pumps the host loop, per mode. Errors recorded by the default error
// handler since the last Run are returned, joined with the hub's Throw, for
// blocking runs.
func (a *Adapter) Run(mode RunMode) error {
	if a.destroyed {
		return ErrDestroyed
	}

	var err error
	switch mode {
	case RunDefault:
		return a.runDefault()
	case RunNoWait:
		err = a.host.ProcessEvents(hostloop.AllEvents)
	case RunOnce:
		err = a.host.ProcessEvents(hostloop.WaitForMoreEvents)
	default:
		return argumentErrorf("run", "unknown mode %d", int(mode))
	}

	return errors.Join(err, a.takeRunError())
}

func (a *Adapter) runDefault() error {
	var err error
	if !a.exitWhenIdle || !a.idle() {
		a.runDepth++
		for {
			a.idleQuit, a.broken = false, false
			err = a.host.Exec(context.Background())
			// an idle quit is only honored if still idle, after the iteration
			if err != nil || !a.idleQuit || a.broken || a.idle() {
				break
			}
		}
		a.idleQuit, a.broken = false, false
		a.runDepth--

		if a.breakAll {
			if a.runDepth > 0 {
				a.quit()
			} else {
				a.breakAll = false
			}
		}
	}

	var thrown error
	if a.hub != nil {
		thrown = a.hub.Throw()
	}

	return errors.Join(err, a.takeRunError(), thrown)
}

// Update wakes the host loop, if it is blocked waiting.
func (a *Adapter) Update() { a.host.WakeUp() }

// Break ends blocking runs, per how.
func (a *Adapter) Break(how BreakMode) {
	switch how {
	case BreakCancel:
		a.breakAll = false
	case BreakAll:
		a.breakAll = true
		a.quit()
	default:
		a.quit()
	}
}

// Destroy stops every watcher and run-callback without invoking them,
// releases all host resources, and detaches the signal relay. Subsequent
// factory, Start and Run calls fail with ErrDestroyed.
func (a *Adapter) Destroy() {
	if a.destroyed {
		return
	}
	a.destroyed = true

	for w := range a.watchers {
		w.Stop()
	}
	for cb := range a.callbacks {
		cb.Stop()
	}

	a.sigchld = nil
	clear(a.signals)
	clear(a.children)

	if a.relay != nil {
		a.relay.detach(a)
		a.relay = nil
		a.logger.Info().
			Str("adapter", a.id.String()).
			Log("signal relay detached")
	}

	a.logger.Debug().
		Str("adapter", a.id.String()).
		Log("adapter destroyed")
}

// String renders the adapter, e.g. "<hubloop.Adapter 9f1c... default>".
func (a *Adapter) String() string {
	s := "<hubloop.Adapter " + a.id.String()
	if a.isDefault {
		s += " default"
	}
	if a.destroyed {
		s += " destroyed"
	}
	return s + ">"
}

func (a *Adapter) register(w *watcher) {
	if w.registered {
		return
	}
	w.registered = true
	a.watchers[w.self] = struct{}{}
	if w.ref {
		a.refCount++
	}
	a.logger.Debug().
		Str("adapter", a.id.String()).
		Stringer("kind", w.kind).
		Log("watcher started")
}

func (a *Adapter) unregister(w *watcher) {
	if !w.registered {
		return
	}
	w.registered = false
	delete(a.watchers, w.self)
	if w.ref {
		a.refCount--
	}
	a.logger.Debug().
		Str("adapter", a.id.String()).
		Stringer("kind", w.kind).
		Log("watcher stopped")
	a.maybeQuit()
}

// idle reports whether nothing keeps a blocking run alive.
func (a *Adapter) idle() bool {
	return a.refCount <= 0 && len(a.callbacks) == 0
}

// maybeQuit ends the current blocking run, if it has become idle. The run
// re-checks after the iteration, as a callback may have stopped its own
// watcher before starting another.
func (a *Adapter) maybeQuit() {
	if a.runDepth > 0 && a.exitWhenIdle && a.idle() {
		a.idleQuit = true
		a.host.Quit()
	}
}

// quit ends the current blocking run unconditionally.
func (a *Adapter) quit() {
	a.broken = true
	a.host.Quit()
}

func (a *Adapter) takeRunError() error {
	err := a.runErr
	a.runErr = nil
	return err
}

// --- Unsupported capabilities ---

// Fileno is not supported.
func (a *Adapter) Fileno() (int, error) { return -1, ErrUnsupported }

// Iteration is not supported.
func (a *Adapter) Iteration() (uint64, error) { return 0, ErrUnsupported }

// Depth is not supported.
func (a *Adapter) Depth() (int, error) { return 0, ErrUnsupported }

// Backend is not supported.
func (a *Adapter) Backend() (string, error) { return "", ErrUnsupported }

// BackendInt is not supported.
func (a *Adapter) BackendInt() (int, error) { return 0, ErrUnsupported }

// PendingCount is not supported.
func (a *Adapter) PendingCount() (int, error) { return 0, ErrUnsupported }

// ActiveCount is not supported, see ActiveWatchers.
func (a *Adapter) ActiveCount() (int, error) { return 0, ErrUnsupported }

// OrigFlags is not supported.
func (a *Adapter) OrigFlags() ([]string, error) { return nil, ErrUnsupported }

// OrigFlagsInt is not supported.
func (a *Adapter) OrigFlagsInt() (int, error) { return 0, ErrUnsupported }

// Ref is not supported, use the watcher's SetRef.
func (a *Adapter) Ref() error { return ErrUnsupported }

// Unref is not supported, use the watcher's SetRef.
func (a *Adapter) Unref() error { return ErrUnsupported }

func (a *Adapter) checkLive(op string) error {
	if a.destroyed {
		return fmt.Errorf("%s: %w", op, ErrDestroyed)
	}
	return nil
}
