//go:build linux || darwin

package hostloop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidOption(t *testing.T) {
	_, err := New(WithMaxPollDelay(0))
	require.Error(t, err)
}

func TestLoop_PostFIFO(t *testing.T) {
	loop := newTestLoop(t)

	var order []int
	for i := range 5 {
		require.NoError(t, loop.Post(func() { order = append(order, i) }))
	}

	require.NoError(t, loop.ProcessEvents(AllEvents))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestLoop_PostDuringDrainRunsNextIteration(t *testing.T) {
	loop := newTestLoop(t)

	var ran []string
	require.NoError(t, loop.Post(func() {
		ran = append(ran, "first")
		require.NoError(t, loop.Post(func() { ran = append(ran, "second") }))
	}))

	require.NoError(t, loop.ProcessEvents(AllEvents))
	assert.Equal(t, []string{"first"}, ran)

	require.NoError(t, loop.ProcessEvents(AllEvents))
	assert.Equal(t, []string{"first", "second"}, ran)
}

func TestLoop_PostFromOtherGoroutineWakesExec(t *testing.T) {
	loop, err := New() // default (long) max poll delay
	require.NoError(t, err)
	defer loop.Close()

	started := make(chan struct{})
	require.NoError(t, loop.Post(func() { close(started) }))

	done := make(chan error, 1)
	go func() { done <- loop.Exec(context.Background()) }()

	<-started
	start := time.Now()
	require.NoError(t, loop.Post(loop.Quit))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("exec did not return")
	}
	assert.Less(t, time.Since(start), time.Second)
}

func TestLoop_QuitEndsInnermostExec(t *testing.T) {
	loop := newTestLoop(t)

	var trace []string
	require.NoError(t, loop.Post(func() {
		trace = append(trace, "outer callback")
		require.NoError(t, loop.Post(loop.Quit))
		err := loop.Exec(context.Background())
		trace = append(trace, "inner returned")
		assert.NoError(t, err)
		require.NoError(t, loop.Post(loop.Quit))
	}))

	require.NoError(t, loop.Exec(context.Background()))
	assert.Equal(t, []string{"outer callback", "inner returned"}, trace)
	assert.Equal(t, StateAwake, loop.State())
}

func TestLoop_QuitWithoutExecIsNoop(t *testing.T) {
	loop := newTestLoop(t)
	loop.Quit()

	var ran atomic.Bool
	require.NoError(t, loop.Post(func() {
		ran.Store(true)
		loop.Quit()
	}))
	require.NoError(t, loop.Exec(context.Background()))
	assert.True(t, ran.Load())
}

func TestLoop_ExecContextCancel(t *testing.T) {
	loop, err := New()
	require.NoError(t, err)
	defer loop.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = loop.Exec(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestLoop_NotLoopThread(t *testing.T) {
	loop := newTestLoop(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, loop.Post(func() {
		assert.True(t, loop.IsLoopThread())
		close(entered)
		<-release
		loop.Quit()
	}))

	done := make(chan error, 1)
	go func() { done <- loop.Exec(context.Background()) }()

	<-entered
	assert.False(t, loop.IsLoopThread())
	assert.ErrorIs(t, loop.ProcessEvents(AllEvents), ErrNotLoopThread)
	close(release)

	require.NoError(t, <-done)
}

func TestLoop_CloseWhileRunning(t *testing.T) {
	loop, err := New()
	require.NoError(t, err)

	started := make(chan struct{})
	require.NoError(t, loop.Post(func() { close(started) }))

	done := make(chan error, 1)
	go func() { done <- loop.Exec(context.Background()) }()

	<-started
	require.NoError(t, loop.Close())

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrLoopTerminated)
	case <-time.After(5 * time.Second):
		t.Fatal("exec did not return after close")
	}

	assert.Equal(t, StateTerminated, loop.State())
	assert.ErrorIs(t, loop.Post(func() {}), ErrLoopTerminated)
	assert.ErrorIs(t, loop.ProcessEvents(AllEvents), ErrLoopTerminated)
	assert.ErrorIs(t, loop.Close(), ErrLoopTerminated)
}

func TestLoop_PanicRecovered(t *testing.T) {
	loop := newTestLoop(t)

	var after bool
	require.NoError(t, loop.Post(func() { panic("boom") }))
	require.NoError(t, loop.Post(func() { after = true }))

	require.NoError(t, loop.ProcessEvents(AllEvents))
	assert.True(t, after)
}

func TestLoop_ProcessEventsNoWaitDoesNotBlock(t *testing.T) {
	loop, err := New()
	require.NoError(t, err)
	defer loop.Close()

	start := time.Now()
	require.NoError(t, loop.ProcessEvents(AllEvents))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, uint64(1), loop.Iteration())
}

func TestLoop_WaitBoundedByMaxPollDelay(t *testing.T) {
	loop := newTestLoop(t, WithMaxPollDelay(20*time.Millisecond))

	start := time.Now()
	require.NoError(t, loop.ProcessEvents(WaitForMoreEvents))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 15*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestGetGoroutineID(t *testing.T) {
	id := getGoroutineID()
	assert.NotZero(t, id)
	assert.Equal(t, id, getGoroutineID())

	other := make(chan uint64)
	go func() { other <- getGoroutineID() }()
	assert.NotEqual(t, id, <-other)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "Awake", StateAwake.String())
	assert.Equal(t, "Running", StateRunning.String())
	assert.Equal(t, "Sleeping", StateSleeping.String())
	assert.Equal(t, "Terminated", StateTerminated.String())
	assert.Equal(t, "Unknown", State(99).String())
}
