// Package hostloop implements a single-threaded host event loop, in the style
// of a GUI toolkit's dispatcher.
//
// # Architecture
//
// A [Loop] owns a platform poller (epoll on Linux, kqueue on Darwin), a wake-up
// file descriptor, a timer heap and a queue of posted functions. Work is
// expressed through thread-affine objects, created and driven on the loop
// goroutine:
//   - [Timer]: single-shot or repeating deadline, see [Loop.NewTimer]
//   - [Notifier]: readiness notification for one file descriptor, see
//     [Loop.NewNotifier]
//
// The loop is pumped with [Loop.ProcessEvents] (a single iteration) or
// [Loop.Exec] (iterations until [Loop.Quit]). Both may be nested, from within
// a callback.
//
// # Thread Safety
//
// Only [Loop.Post], [Loop.WakeUp], [Loop.Quit] and [Loop.Close] are safe to
// call from goroutines other than the loop goroutine. Everything else,
// including all [Timer] and [Notifier] methods, must be called on the loop
// goroutine, or while the loop is not running.
//
// # Iteration Order
//
// Each iteration:
//  1. Poll for I/O, blocking only if waiting was requested and nothing is due
//  2. Notifier callbacks, in poller order
//  3. Posted functions, FIFO
//  4. Expired timers, earliest deadline first
//
// # Usage
//
//	loop, err := hostloop.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer loop.Close()
//
//	t := loop.NewTimer(func() {
//	    fmt.Println("tick")
//	    loop.Quit()
//	})
//	t.SetSingleShot(true)
//	t.SetInterval(100 * time.Millisecond)
//	t.Start()
//
//	if err := loop.Exec(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
package hostloop
