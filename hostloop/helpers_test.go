//go:build linux || darwin

package hostloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestLoop(t *testing.T, opts ...Option) *Loop {
	t.Helper()
	loop, err := New(append([]Option{WithMaxPollDelay(10 * time.Millisecond)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = loop.Close() })
	return loop
}

// pumpUntil pumps the loop on the calling goroutine until cond returns true.
func pumpUntil(t *testing.T, loop *Loop, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out pumping loop")
		}
		require.NoError(t, loop.ProcessEvents(WaitForMoreEvents))
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
