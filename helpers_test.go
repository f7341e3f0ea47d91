package hubloop

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-hubloop/hostloop"
)

// newTestAdapter returns a default adapter, on a new host loop, both released
// on test cleanup (adapter first, detaching the signal relay).
func newTestAdapter(t *testing.T, opts ...Option) *Adapter {
	t.Helper()
	host, err := hostloop.New(hostloop.WithMaxPollDelay(10 * time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = host.Close() })

	a, err := New(host, append([]Option{WithDiagnostics(io.Discard)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(a.Destroy)
	return a
}

// pumpUntil runs single iterations until cond returns true.
func pumpUntil(t *testing.T, a *Adapter, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out pumping adapter")
		}
		require.NoError(t, a.Run(RunOnce))
	}
}

// pumpFor runs single iterations for d.
func pumpFor(t *testing.T, a *Adapter, d time.Duration) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		require.NoError(t, a.Run(RunOnce))
	}
}

// newPipe returns a non-blocking pipe, closed on test cleanup.
func newPipe(t *testing.T) (r, w int) {
	t.Helper()
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	for _, fd := range fds {
		require.NoError(t, unix.SetNonblock(fd, true))
	}
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func noop() error { return nil }
