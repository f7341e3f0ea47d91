// Package hubloop implements a watcher backend for a cooperative scheduler
// (the hub), using an already running [hostloop.Loop] as the only reactor.
//
// # Watchers
//
// An [Adapter] creates watchers, each bound to at most one host resource:
//   - [TimerWatcher]: host timer, single-shot for the delay, then repeating
//   - [IdleWatcher]: zero-interval repeating host timer
//   - [IOWatcher]: host fd notifier
//   - [AsyncWatcher]: coalesced wakeup, posted to the host loop
//   - [SignalWatcher]: fan-out from the process-wide [SignalRelay]
//   - [ChildWatcher]: exit status, reaped on SIGCHLD
//   - [StatWatcher]: file change notifications, via fsnotify
//   - [NoOpWatcher]: Prepare, Check and Fork, which the host cannot express
//
// Watchers share the lifecycle INACTIVE → (Start) → ACTIVE → (Stop, or after
// a non-repeating fire) → INACTIVE. Callbacks are isolated: a returned error
// or a panic is wrapped in a [*CallbackError], and given to the adapter's
// [ErrorHandler], never to the host loop.
//
// # Running
//
// [Adapter.Run] pumps the host loop, blocking ([RunDefault]), without waiting
// ([RunNoWait]), or for a single iteration ([RunOnce]). The default error
// handler prints diagnostics, then quits the current blocking run, which
// returns the error.
//
// # Thread Safety
//
// Everything is loop-goroutine only, except [AsyncWatcher.Send], and the
// signal relay, which is driven by the Go runtime's signal delivery.
//
// # Usage
//
//	host, err := hostloop.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer host.Close()
//
//	loop, err := hubloop.New(host)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer loop.Destroy()
//
//	timer, _ := loop.Timer(100*time.Millisecond, 0)
//	_ = timer.Start(func() error {
//	    fmt.Println("fired")
//	    return nil
//	})
//
//	if err := loop.Run(hubloop.RunDefault); err != nil {
//	    log.Fatal(err)
//	}
package hubloop
