// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package hubloop

import (
	"fmt"
	"io"
	"os"
	"time"

	catrate "github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// Watcher priority bounds. Priorities are accepted, but have no effect.
const (
	MinPriority = -2
	MaxPriority = 2
)

// Hub is the cooperative scheduler driving the adapter. After a blocking
// [Adapter.Run] returns, Throw is called to surface any error the hub has
// recorded for the caller.
type Hub interface {
	Throw() error
}

// adapterOptions holds configuration options for Adapter creation.
type adapterOptions struct {
	logger       *logiface.Logger[logiface.Event]
	errorHandler ErrorHandler
	hub          Hub
	diagnostics  io.Writer
	limiter      *catrate.Limiter
	relay        *SignalRelay
	isDefault    bool
	exitWhenIdle bool
}

// --- Adapter Options ---

// Option configures an Adapter instance.
type Option interface {
	applyAdapter(*adapterOptions) error
}

// adapterOptionImpl implements Option.
type adapterOptionImpl struct {
	applyAdapterFunc func(*adapterOptions) error
}

func (a *adapterOptionImpl) applyAdapter(opts *adapterOptions) error {
	return a.applyAdapterFunc(opts)
}

// WithLogger attaches a structured logger. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &adapterOptionImpl{func(opts *adapterOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithErrorHandler installs a custom error handler, replacing the default
// (diagnostics, then quit the current run).
func WithErrorHandler(handler ErrorHandler) Option {
	return &adapterOptionImpl{func(opts *adapterOptions) error {
		opts.errorHandler = handler
		return nil
	}}
}

// WithDefault marks the adapter as the process default (true, if not
// specified). Only a default adapter may attach the signal relay.
func WithDefault(isDefault bool) Option {
	return &adapterOptionImpl{func(opts *adapterOptions) error {
		opts.isDefault = isDefault
		return nil
	}}
}

// WithHub configures the hub, whose Throw is consulted after a blocking run.
func WithHub(hub Hub) Option {
	return &adapterOptionImpl{func(opts *adapterOptions) error {
		opts.hub = hub
		return nil
	}}
}

// WithDiagnostics sets where the default error handler prints diagnostics.
// Defaults to [os.Stderr]. A nil writer discards them.
func WithDiagnostics(w io.Writer) Option {
	return &adapterOptionImpl{func(opts *adapterOptions) error {
		if w == nil {
			w = io.Discard
		}
		opts.diagnostics = w
		return nil
	}}
}

// WithErrorRateLimits throttles the default error handler's diagnostics,
// per watcher kind. An empty map disables throttling. The rates must be
// valid, per [catrate.NewLimiter].
func WithErrorRateLimits(rates map[time.Duration]int) Option {
	return &adapterOptionImpl{func(opts *adapterOptions) error {
		limiter, err := newLimiter(rates)
		if err != nil {
			return err
		}
		opts.limiter = limiter
		return nil
	}}
}

// WithSignalRelay uses the given relay, instead of the process-wide one
// returned by [Relay]. Ignored unless the adapter is the default.
func WithSignalRelay(relay *SignalRelay) Option {
	return &adapterOptionImpl{func(opts *adapterOptions) error {
		opts.relay = relay
		return nil
	}}
}

// WithExitWhenIdle controls whether a blocking run returns once no
// referenced watcher is active, and no run-callback is in flight (true, if
// not specified). If false, a blocking run continues until broken.
func WithExitWhenIdle(exit bool) Option {
	return &adapterOptionImpl{func(opts *adapterOptions) error {
		opts.exitWhenIdle = exit
		return nil
	}}
}

var defaultErrorRateLimits = map[time.Duration]int{
	time.Second: 10,
	time.Minute: 100,
}

// newLimiter converts the panic of catrate.NewLimiter into an error.
func newLimiter(rates map[time.Duration]int) (limiter *catrate.Limiter, err error) {
	if len(rates) == 0 {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			limiter = nil
			err = &ArgumentError{Op: "error rate limits", Message: fmt.Sprint(r)}
		}
	}()
	return catrate.NewLimiter(rates), nil
}

// resolveAdapterOptions applies Option instances to adapterOptions.
func resolveAdapterOptions(opts []Option) (*adapterOptions, error) {
	cfg := &adapterOptions{
		diagnostics:  os.Stderr,
		isDefault:    true,
		exitWhenIdle: true,
	}
	var err error
	if cfg.limiter, err = newLimiter(defaultErrorRateLimits); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyAdapter(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// --- Watcher Options ---

type watcherOptions struct {
	ref      bool
	priority int
	trace    bool
}

// WatcherOption configures a watcher, at construction.
type WatcherOption interface {
	applyWatcher(*watcherOptions)
}

type watcherOptionImpl struct {
	applyWatcherFunc func(*watcherOptions)
}

func (w *watcherOptionImpl) applyWatcher(opts *watcherOptions) {
	w.applyWatcherFunc(opts)
}

// WithRef sets whether the active watcher keeps a blocking run alive
// (true, if not specified).
func WithRef(ref bool) WatcherOption {
	return &watcherOptionImpl{func(opts *watcherOptions) {
		opts.ref = ref
	}}
}

// WithPriority records a priority, clamped to [MinPriority, MaxPriority].
// The host loop has no priorities, so it does not affect dispatch order.
func WithPriority(priority int) WatcherOption {
	return &watcherOptionImpl{func(opts *watcherOptions) {
		opts.priority = min(max(priority, MinPriority), MaxPriority)
	}}
}

// WithTrace is accepted by Child, and ignored.
func WithTrace() WatcherOption {
	return &watcherOptionImpl{func(opts *watcherOptions) {
		opts.trace = true
	}}
}

func resolveWatcherOptions(opts []WatcherOption) watcherOptions {
	cfg := watcherOptions{ref: true}
	for _, opt := range opts {
		if opt != nil {
			opt.applyWatcher(&cfg)
		}
	}
	return cfg
}
