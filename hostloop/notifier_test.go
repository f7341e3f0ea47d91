//go:build linux || darwin

package hostloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestNotifier_Validation(t *testing.T) {
	loop := newTestLoop(t)

	_, err := loop.NewNotifier(-1, EventRead, func(IOEvents) {})
	assert.ErrorIs(t, err, ErrFDOutOfRange)

	_, err = loop.NewNotifier(0, EventError, func(IOEvents) {})
	assert.Error(t, err)
}

func TestNotifier_Read(t *testing.T) {
	loop := newTestLoop(t)
	r, w := newPipe(t)

	var got IOEvents
	n, err := loop.NewNotifier(r, EventRead, func(ev IOEvents) {
		got |= ev
		var buf [16]byte
		_, _ = unix.Read(r, buf[:])
	})
	require.NoError(t, err)
	assert.False(t, n.Enabled())

	require.NoError(t, n.SetEnabled(true))
	_, err = unix.Write(w, []byte("x"))
	require.NoError(t, err)

	pumpUntil(t, loop, 5*time.Second, func() bool { return got&EventRead != 0 })
	assert.Equal(t, r, n.FD())
	assert.Equal(t, EventRead, n.Events())
}

func TestNotifier_DisabledDoesNotFire(t *testing.T) {
	loop := newTestLoop(t)
	r, w := newPipe(t)

	var fired bool
	n, err := loop.NewNotifier(r, EventRead, func(IOEvents) { fired = true })
	require.NoError(t, err)
	require.NoError(t, n.SetEnabled(true))
	require.NoError(t, n.SetEnabled(false))

	_, err = unix.Write(w, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, loop.ProcessEvents(AllEvents))
	assert.False(t, fired)
}

func TestNotifier_SharedFD(t *testing.T) {
	loop := newTestLoop(t)
	// a socket pair is both readable and writable
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})

	var reads, writes int
	rn, err := loop.NewNotifier(fds[0], EventRead, func(ev IOEvents) {
		reads++
		var buf [16]byte
		_, _ = unix.Read(fds[0], buf[:])
	})
	require.NoError(t, err)
	wn, err := loop.NewNotifier(fds[0], EventWrite, func(ev IOEvents) {
		assert.NotZero(t, ev&EventWrite)
		writes++
	})
	require.NoError(t, err)

	require.NoError(t, rn.SetEnabled(true))
	require.NoError(t, wn.SetEnabled(true))

	pumpUntil(t, loop, 5*time.Second, func() bool { return writes > 0 })
	assert.Zero(t, reads)

	wn.Close()
	_, err = unix.Write(fds[1], []byte("x"))
	require.NoError(t, err)
	w := writes
	pumpUntil(t, loop, 5*time.Second, func() bool { return reads > 0 })
	assert.Equal(t, w, writes)

	assert.ErrorIs(t, wn.SetEnabled(true), ErrNotifierClosed)
	rn.Close()
	assert.Empty(t, loop.notifiers)
}

func TestNotifier_HangupDelivered(t *testing.T) {
	loop := newTestLoop(t)
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	r := fds[0]
	defer unix.Close(r)

	var got IOEvents
	n, err := loop.NewNotifier(r, EventRead, func(ev IOEvents) { got |= ev })
	require.NoError(t, err)
	require.NoError(t, n.SetEnabled(true))

	require.NoError(t, unix.Close(fds[1]))
	pumpUntil(t, loop, 5*time.Second, func() bool { return got != 0 })
	n.Close()
}

func TestNotifier_CloseAfterFDClosed(t *testing.T) {
	loop := newTestLoop(t)
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer unix.Close(fds[1])

	n, err := loop.NewNotifier(fds[0], EventRead, func(IOEvents) {})
	require.NoError(t, err)
	require.NoError(t, n.SetEnabled(true))
	require.NoError(t, unix.Close(fds[0]))

	n.Close()
	assert.False(t, n.Enabled())
	assert.Empty(t, loop.notifiers)
}

func TestIOEvents_String(t *testing.T) {
	assert.Equal(t, "NONE", IOEvents(0).String())
	assert.Equal(t, "READ|WRITE", (EventRead | EventWrite).String())
	assert.Equal(t, "READ|HANGUP", (EventRead | EventHangup).String())
}
