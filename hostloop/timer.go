package hostloop

import (
	"container/heap"
	"time"
)

// Timer is a single-shot or repeating timer, owned by a [Loop].
//
// Timers are not safe for concurrent use, and must be driven on the loop
// goroutine. A repeating timer that falls behind is re-armed relative to the
// current time, missed intervals are not replayed.
type Timer struct {
	loop     *Loop
	fn       func()
	when     time.Time
	interval time.Duration
	// heap index, -1 when not scheduled
	index int
	// incremented on every (re)schedule and stop, invalidates queued fires
	seq uint64
	// breaks deadline ties, in start order
	order      uint64
	singleShot bool
	// popped from the heap, and about to fire, this iteration
	due    bool
	closed bool
}

type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].order < h[j].order
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

type dueTimer struct {
	timer *Timer
	seq   uint64
}

// NewTimer creates a new, inactive, repeating timer, with a zero interval.
func (l *Loop) NewTimer(fn func()) *Timer {
	return &Timer{
		loop:  l,
		fn:    fn,
		index: -1,
	}
}

// SetInterval sets the interval, used by the next [Timer.Start] and as the
// repeat period. Negative values are treated as zero. It does not reschedule
// an active timer.
func (t *Timer) SetInterval(d time.Duration) {
	if d < 0 {
		d = 0
	}
	t.interval = d
}

// Interval returns the timer's interval.
func (t *Timer) Interval() time.Duration { return t.interval }

// SetSingleShot configures whether the timer fires once, or repeats.
func (t *Timer) SetSingleShot(singleShot bool) { t.singleShot = singleShot }

// SingleShot reports whether the timer fires only once per start.
func (t *Timer) SingleShot() bool { return t.singleShot }

// Start (re)starts the timer, to fire after its interval.
func (t *Timer) Start() {
	t.StartAt(time.Now().Add(t.interval))
}

// StartAt (re)starts the timer, to fire at the given deadline. Subsequent
// repeats (if any) are relative to the deadline.
func (t *Timer) StartAt(deadline time.Time) {
	if t.closed {
		return
	}
	t.unschedule()
	t.when = deadline
	t.loop.timerOrder++
	t.order = t.loop.timerOrder
	heap.Push(&t.loop.timers, t)
}

// Deadline returns the time the timer is next due, if active.
func (t *Timer) Deadline() time.Time { return t.when }

// Stop deactivates the timer. It may be started again.
func (t *Timer) Stop() { t.unschedule() }

// Active reports whether the timer is scheduled to fire.
func (t *Timer) Active() bool { return t.index >= 0 || t.due }

// Close stops the timer, and releases its callback. It cannot be restarted.
func (t *Timer) Close() {
	t.unschedule()
	t.closed = true
	t.fn = nil
}

func (t *Timer) unschedule() {
	if t.index >= 0 {
		heap.Remove(&t.loop.timers, t.index)
	}
	t.due = false
	t.seq++
}

// runTimers fires all timers due as of entry. Timers started by callbacks
// fire no sooner than the next iteration.
func (l *Loop) runTimers() {
	if len(l.timers) == 0 {
		return
	}

	now := time.Now()

	var batch []dueTimer
	for len(l.timers) > 0 && !l.timers[0].when.After(now) {
		t := heap.Pop(&l.timers).(*Timer)
		t.due = true
		batch = append(batch, dueTimer{timer: t, seq: t.seq})
	}

	for _, d := range batch {
		t := d.timer
		if t.seq != d.seq {
			// stopped or restarted by an earlier callback
			continue
		}
		t.due = false
		fn := t.fn
		if !t.singleShot {
			next := t.when.Add(t.interval)
			if next.Before(now) {
				next = now
			}
			t.when = next
			t.seq++
			l.timerOrder++
			t.order = l.timerOrder
			heap.Push(&l.timers, t)
		}
		l.safeExecute(fn)
	}
}
