package hubloop

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ChildWatcher fires when a child process exits, as reaped by the adapter's
// SIGCHLD watcher. A pid of 0 matches any child not claimed by a specific
// watcher.
//
// Wakeups are coalesced, like [AsyncWatcher], but every reaped status is
// queued, and the callback runs once per status, in reap order. The watcher
// stays active after firing, until stopped.
type ChildWatcher struct {
	watcher
	wake    wakeup
	queue   []childStatus
	pid     int
	rpid    int
	rstatus unix.WaitStatus
	active  bool
}

type childStatus struct {
	pid    int
	status unix.WaitStatus
}

// Child creates a child watcher, for pid (0 for any). Requires the adapter to
// own the signal relay, see New.
//
// WithTrace is accepted, and ignored.
func (a *Adapter) Child(pid int, opts ...WatcherOption) (*ChildWatcher, error) {
	if err := a.checkLive("child"); err != nil {
		return nil, err
	}
	if pid < 0 {
		return nil, argumentErrorf("child", "invalid pid %d", pid)
	}
	if err := a.installSIGCHLD(); err != nil {
		return nil, err
	}
	w := &ChildWatcher{pid: pid}
	w.init(a, w, KindChild, resolveWatcherOptions(opts))
	w.wake.init(a.host, w.deliver)
	return w, nil
}

// installSIGCHLD starts the unreferenced SIGCHLD watcher, once.
func (a *Adapter) installSIGCHLD() error {
	if a.sigchld != nil {
		return nil
	}
	w, err := a.Signal(int(unix.SIGCHLD), WithRef(false))
	if err != nil {
		return err
	}
	if err := w.Start(a.reapChildren); err != nil {
		return err
	}
	a.sigchld = w
	return nil
}

// reapChildren reaps every exited child, without blocking, routing each
// status to the matching watcher. Unmatched exits are dropped.
func (a *Adapter) reapChildren() error {
	for {
		var status unix.WaitStatus
		var usage unix.Rusage
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, &usage)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if !errors.Is(err, unix.ECHILD) {
				a.handleSyserr("wait4", err)
			}
			return nil
		}
		if pid <= 0 {
			return nil
		}

		w := a.children[pid]
		if w == nil {
			w = a.children[0]
		}
		if w == nil {
			a.logger.Debug().
				Str("adapter", a.id.String()).
				Int("pid", pid).
				Log("unwatched child exited")
			continue
		}
		w.setStatus(pid, status)
	}
}

func (w *ChildWatcher) setStatus(rpid int, status unix.WaitStatus) {
	w.queue = append(w.queue, childStatus{pid: rpid, status: status})
	if err := w.wake.send(); err != nil {
		w.loop.handleSyserr("child wakeup", err)
	}
}

// Start activates the watcher. The last started watcher for a pid wins.
func (w *ChildWatcher) Start(cb Func) error {
	if err := w.begin(cb); err != nil {
		return err
	}
	if w.active {
		return nil
	}
	w.active = true
	w.loop.children[w.pid] = w
	if err := w.wake.repost(); err != nil {
		w.loop.handleSyserr("child start", err)
	}
	return nil
}

// Stop deactivates the watcher, dropping undelivered statuses.
func (w *ChildWatcher) Stop() {
	w.active = false
	w.queue = nil
	if w.loop.children[w.pid] == w {
		delete(w.loop.children, w.pid)
	}
	w.wake.take()
	w.end()
}

// Active reports whether the watcher is started.
func (w *ChildWatcher) Active() bool { return w.active }

func (w *ChildWatcher) deliver() {
	if !w.active || !w.wake.take() {
		return
	}
	queue := w.queue
	w.queue = nil
	for _, s := range queue {
		if !w.active {
			return
		}
		w.rpid, w.rstatus = s.pid, s.status
		_ = w.dispatch()
	}
}

// PID returns the watched pid, 0 for any.
func (w *ChildWatcher) PID() int { return w.pid }

// RPID returns the pid of the last reaped child, 0 if none.
func (w *ChildWatcher) RPID() int { return w.rpid }

// RStatus returns the raw wait status of the last reaped child.
func (w *ChildWatcher) RStatus() unix.WaitStatus { return w.rstatus }

// ExitStatus returns the exit code of the last reaped child, or -1 if it did
// not exit normally.
func (w *ChildWatcher) ExitStatus() int { return w.rstatus.ExitStatus() }

func (w *ChildWatcher) String() string {
	return w.format(fmt.Sprintf(" pid=%d rstatus=%d", w.pid, uint32(w.rstatus)))
}
