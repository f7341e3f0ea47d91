package hubloop

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleError_Panic(t *testing.T) {
	var diag bytes.Buffer
	a := newTestAdapter(t, WithDiagnostics(&diag))

	w, err := a.Timer(0, 0)
	require.NoError(t, err)
	require.NoError(t, w.Start(func() error { panic(errors.New("kaboom")) }))

	err = a.Run(RunNoWait)
	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.EqualError(t, panicErr, "panic: kaboom")
	assert.EqualError(t, errors.Unwrap(panicErr), "kaboom")
	assert.False(t, w.Active())

	assert.Contains(t, diag.String(), "callback failed: panic: kaboom")
	assert.Contains(t, diag.String(), "goroutine ")
}

func TestHandleError_NilIgnored(t *testing.T) {
	var called bool
	a := newTestAdapter(t, WithErrorHandler(ErrorHandlerFunc(func(Watcher, error) { called = true })))
	a.HandleError(nil, nil)
	assert.False(t, called)
}

func TestHandleError_HandlerPanicFallsBack(t *testing.T) {
	var diag bytes.Buffer
	a := newTestAdapter(t,
		WithDiagnostics(&diag),
		WithErrorHandler(ErrorHandlerFunc(func(Watcher, error) { panic("handler") })),
	)

	boom := errors.New("boom")
	a.HandleError(nil, boom)

	err := a.Run(RunNoWait)
	require.ErrorIs(t, err, boom)
	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "handler", panicErr.Value)
	assert.Contains(t, diag.String(), "hubloop: error: boom")
}

func TestSetErrorHandler(t *testing.T) {
	var diag bytes.Buffer
	var handled []error
	a := newTestAdapter(t, WithDiagnostics(&diag))

	a.SetErrorHandler(ErrorHandlerFunc(func(_ Watcher, err error) { handled = append(handled, err) }))
	a.HandleError(nil, errors.New("one"))
	require.NoError(t, a.Run(RunNoWait))
	assert.Len(t, handled, 1)
	assert.Empty(t, diag.String())

	a.SetErrorHandler(nil)
	a.HandleError(nil, errors.New("two"))
	assert.EqualError(t, a.Run(RunNoWait), "two")
	assert.Len(t, handled, 1)
	assert.Equal(t, "hubloop: error: two\n", diag.String())
}

func TestHandleError_RateLimited(t *testing.T) {
	var diag bytes.Buffer
	a := newTestAdapter(t,
		WithDiagnostics(&diag),
		WithErrorRateLimits(map[time.Duration]int{50 * time.Millisecond: 1}),
	)

	a.HandleError(nil, errors.New("first"))
	a.HandleError(nil, errors.New("second"))
	a.HandleError(nil, errors.New("third"))
	assert.Equal(t, 2, a.suppressed["callback"])

	// other categories are limited separately
	w, err := a.Idle()
	require.NoError(t, err)
	a.HandleError(w, errors.New("idle"))

	time.Sleep(100 * time.Millisecond)
	a.HandleError(nil, errors.New("fourth"))

	lines := strings.Split(strings.TrimSpace(diag.String()), "\n")
	require.Len(t, lines, 4, diag.String())
	assert.Equal(t, "hubloop: error: first", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "hubloop: error in <hubloop.Idle "), lines[1])
	assert.Equal(t, "hubloop: 2 callback error(s) suppressed", lines[2])
	assert.Equal(t, "hubloop: error: fourth", lines[3])
	assert.Empty(t, a.suppressed)

	// every error is still returned
	err = a.Run(RunNoWait)
	for _, msg := range []string{"first", "second", "third", "idle", "fourth"} {
		assert.ErrorContains(t, err, msg)
	}
}

func TestHandleError_RateLimitsDisabled(t *testing.T) {
	var diag bytes.Buffer
	a := newTestAdapter(t, WithDiagnostics(&diag), WithErrorRateLimits(nil))

	for range 50 {
		a.HandleError(nil, errors.New("x"))
	}
	assert.Equal(t, 50, strings.Count(diag.String(), "hubloop: error: x\n"))
}
