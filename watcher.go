package hubloop

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// Kind identifies the concrete type of a [Watcher].
type Kind int

const (
	KindTimer Kind = iota + 1
	KindIdle
	KindIO
	KindAsync
	KindSignal
	KindChild
	KindStat
	KindPrepare
	KindCheck
	KindFork
)

// String returns the kind's name, e.g. "Timer".
func (k Kind) String() string {
	switch k {
	case KindTimer:
		return "Timer"
	case KindIdle:
		return "Idle"
	case KindIO:
		return "IO"
	case KindAsync:
		return "Async"
	case KindSignal:
		return "Signal"
	case KindChild:
		return "Child"
	case KindStat:
		return "Stat"
	case KindPrepare:
		return "Prepare"
	case KindCheck:
		return "Check"
	case KindFork:
		return "Fork"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Func is a watcher or run-callback function. A returned error (or a panic)
// is given to the adapter's error handler.
type Func func() error

// Watcher is the contract shared by all watcher kinds.
//
// Watchers are loop-goroutine only, unless documented otherwise (see
// [AsyncWatcher.Send]).
type Watcher interface {
	// Kind returns the concrete watcher kind.
	Kind() Kind

	// Start registers cb, and activates the watcher. Starting an active
	// watcher replaces the callback, and otherwise does nothing.
	Start(cb Func) error

	// Stop deactivates the watcher, and releases its host resource. It is
	// idempotent, safe from within the watcher's own callback, and never
	// invokes the callback.
	Stop()

	// Active reports whether the watcher is started.
	Active() bool

	// Pending reports whether the watcher's callback is being dispatched.
	Pending() bool

	// Ref reports whether the watcher, while active, keeps a blocking run alive.
	Ref() bool

	// SetRef sets the ref flag, see Ref.
	SetRef(ref bool)

	// Callback returns the registered callback, or nil.
	Callback() Func

	// Priority returns the (inert) priority.
	Priority() int

	// Feed is not supported, and always returns ErrUnsupported.
	Feed() error

	fmt.Stringer
}

// watcher implements the lifecycle shared by every registered watcher kind.
type watcher struct {
	loop *Adapter
	// self is the concrete watcher, used as the active set key, and as the
	// error handler context
	self       Watcher
	cb         Func
	kind       Kind
	priority   int
	ref        bool
	registered bool
	pending    bool
}

func (w *watcher) init(loop *Adapter, self Watcher, kind Kind, opts watcherOptions) {
	w.loop = loop
	w.self = self
	w.kind = kind
	w.ref = opts.ref
	w.priority = opts.priority
}

func (w *watcher) Kind() Kind { return w.kind }

func (w *watcher) Callback() Func { return w.cb }

func (w *watcher) Pending() bool { return w.pending }

func (w *watcher) Ref() bool { return w.ref }

func (w *watcher) Priority() int { return w.priority }

func (w *watcher) Feed() error { return ErrUnsupported }

func (w *watcher) SetRef(ref bool) {
	if w.ref == ref {
		return
	}
	w.ref = ref
	if w.registered {
		if ref {
			w.loop.refCount++
		} else {
			w.loop.refCount--
			w.loop.maybeQuit()
		}
	}
}

// begin validates and records cb, then adds the watcher to the active set.
func (w *watcher) begin(cb Func) error {
	if cb == nil {
		return &ArgumentError{Op: strings.ToLower(w.kind.String()) + " start", Message: "callback must not be nil"}
	}
	if w.loop.destroyed {
		return ErrDestroyed
	}
	w.cb = cb
	w.loop.register(w)
	return nil
}

// end clears the callback, and removes the watcher from the active set.
func (w *watcher) end() {
	w.cb = nil
	w.loop.unregister(w)
}

// dispatch runs the callback, with error isolation, and returns the
// callback's error, after it has been handled. The watcher is stopped if it
// is no longer active.
func (w *watcher) dispatch() error {
	cb := w.cb
	if cb == nil {
		return nil
	}

	w.pending = true
	err := w.loop.invoke(cb)
	w.pending = false

	if err != nil {
		err = &CallbackError{Kind: w.kind, Watcher: w.self, Cause: err}
		w.loop.HandleError(w.self, err)
	}

	if !w.self.Active() {
		w.self.Stop()
	}

	return err
}

// format renders the watcher, e.g. "<hubloop.Timer 0xc000010000 after=1s active callback=main.f>".
func (w *watcher) format(detail string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<hubloop.%s %p%s", w.kind, w.self, detail)
	if w.self.Active() {
		b.WriteString(" active")
	}
	if w.pending {
		b.WriteString(" pending")
	}
	if w.cb != nil {
		b.WriteString(" callback=")
		b.WriteString(funcName(w.cb))
	}
	b.WriteByte('>')
	return b.String()
}

func funcName(fn Func) string {
	if fn == nil {
		return "<nil>"
	}
	if f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()); f != nil {
		return f.Name()
	}
	return "<unknown>"
}
