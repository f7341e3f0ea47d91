//go:build linux || darwin

package hostloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer_SingleShotFiresOnceNoEarlier(t *testing.T) {
	loop := newTestLoop(t)

	var fired []time.Time
	timer := loop.NewTimer(func() { fired = append(fired, time.Now()) })
	timer.SetSingleShot(true)
	timer.SetInterval(30 * time.Millisecond)

	start := time.Now()
	timer.Start()
	assert.True(t, timer.Active())

	pumpUntil(t, loop, 5*time.Second, func() bool { return len(fired) > 0 })
	assert.False(t, timer.Active())
	assert.GreaterOrEqual(t, fired[0].Sub(start), 30*time.Millisecond)

	// nothing more
	deadline := time.Now().Add(80 * time.Millisecond)
	for time.Now().Before(deadline) {
		require.NoError(t, loop.ProcessEvents(WaitForMoreEvents))
	}
	assert.Len(t, fired, 1)
}

func TestTimer_Repeating(t *testing.T) {
	loop := newTestLoop(t)

	var count int
	timer := loop.NewTimer(func() { count++ })
	timer.SetInterval(5 * time.Millisecond)
	timer.Start()

	pumpUntil(t, loop, 5*time.Second, func() bool { return count >= 3 })
	assert.True(t, timer.Active())

	timer.Stop()
	assert.False(t, timer.Active())
	n := count
	for range 5 {
		require.NoError(t, loop.ProcessEvents(AllEvents))
	}
	assert.Equal(t, n, count)
}

func TestTimer_ZeroIntervalFiresOncePerIteration(t *testing.T) {
	loop := newTestLoop(t)

	var count int
	timer := loop.NewTimer(func() { count++ })
	timer.Start()

	for i := 1; i <= 4; i++ {
		require.NoError(t, loop.ProcessEvents(WaitForMoreEvents))
		assert.Equal(t, i, count)
	}
}

func TestTimer_StopFromEarlierCallbackInSameBatch(t *testing.T) {
	loop := newTestLoop(t)

	var second *Timer
	var secondFired bool
	first := loop.NewTimer(func() { second.Stop() })
	second = loop.NewTimer(func() { secondFired = true })
	for _, timer := range []*Timer{first, second} {
		timer.SetSingleShot(true)
	}

	now := time.Now()
	first.StartAt(now.Add(-2 * time.Millisecond))
	second.StartAt(now.Add(-time.Millisecond))

	require.NoError(t, loop.ProcessEvents(AllEvents))
	assert.False(t, secondFired)
	assert.False(t, second.Active())
}

func TestTimer_DeadlineOrdering(t *testing.T) {
	loop := newTestLoop(t)

	var order []int
	base := time.Now().Add(-time.Second)
	for _, i := range []int{3, 1, 4, 0, 2} {
		timer := loop.NewTimer(func() { order = append(order, i) })
		timer.SetSingleShot(true)
		timer.StartAt(base.Add(time.Duration(i) * time.Millisecond))
	}

	require.NoError(t, loop.ProcessEvents(AllEvents))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestTimer_EqualDeadlinesStartOrder(t *testing.T) {
	loop := newTestLoop(t)

	var order []int
	deadline := time.Now().Add(-time.Second)
	for i := range 16 {
		timer := loop.NewTimer(func() { order = append(order, i) })
		timer.SetSingleShot(true)
		timer.StartAt(deadline)
	}

	require.NoError(t, loop.ProcessEvents(AllEvents))
	require.Len(t, order, 16)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestTimer_RestartFromCallback(t *testing.T) {
	loop := newTestLoop(t)

	var count int
	var timer *Timer
	timer = loop.NewTimer(func() {
		count++
		if count < 3 {
			timer.Start()
		}
	})
	timer.SetSingleShot(true)
	timer.SetInterval(time.Millisecond)
	timer.Start()

	pumpUntil(t, loop, 5*time.Second, func() bool { return count == 3 })
	assert.False(t, timer.Active())
}

func TestTimer_Close(t *testing.T) {
	loop := newTestLoop(t)

	var fired bool
	timer := loop.NewTimer(func() { fired = true })
	timer.Start()
	timer.Close()
	assert.False(t, timer.Active())

	timer.Start()
	assert.False(t, timer.Active())

	require.NoError(t, loop.ProcessEvents(AllEvents))
	assert.False(t, fired)
}

func TestTimer_DrivesExec(t *testing.T) {
	loop, err := New()
	require.NoError(t, err)
	defer loop.Close()

	var count int
	timer := loop.NewTimer(func() {
		count++
		if count == 2 {
			loop.Quit()
		}
	})
	timer.SetInterval(10 * time.Millisecond)
	timer.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, loop.Exec(ctx))
	assert.Equal(t, 2, count)
}

func TestTimer_SetIntervalNegative(t *testing.T) {
	loop := newTestLoop(t)
	timer := loop.NewTimer(nil)
	timer.SetInterval(-time.Second)
	assert.Zero(t, timer.Interval())
	assert.False(t, timer.SingleShot())
}
