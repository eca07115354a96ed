package clock

import (
	"sync"
	"time"
)

// FakeClock is a manually-advanced Clock for deterministic tests. Advance
// moves time forward and fires any After/Ticker channels whose deadline
// has passed.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeWaiter
	tickers []*fakeTicker
}

// NewFakeClock returns a FakeClock starting at the given instant.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Sleep blocks the calling goroutine until Advance has moved the fake
// clock past now+d.
func (f *FakeClock) Sleep(d time.Duration) {
	<-f.After(d)
}

func (f *FakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	f.mu.Lock()
	deadline := f.now.Add(d)
	if !deadline.After(f.now) {
		f.mu.Unlock()
		ch <- deadline
		return ch
	}
	f.waiters = append(f.waiters, &fakeWaiter{deadline: deadline, ch: ch})
	f.mu.Unlock()
	return ch
}

func (f *FakeClock) NewTicker(d time.Duration) Ticker {
	ch := make(chan time.Time, 1)
	f.mu.Lock()
	t := &fakeTicker{period: d, next: f.now.Add(d), ch: ch}
	f.tickers = append(f.tickers, t)
	f.mu.Unlock()
	return t
}

// Advance moves the fake clock forward by d, firing any waiters and
// tickers whose deadline has now passed.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)

	remaining := f.waiters[:0]
	for _, w := range f.waiters {
		if !f.now.Before(w.deadline) {
			w.ch <- f.now
		} else {
			remaining = append(remaining, w)
		}
	}
	f.waiters = remaining

	for _, t := range f.tickers {
		if t.stopped {
			continue
		}
		for !f.now.Before(t.next) {
			select {
			case t.ch <- f.now:
			default:
			}
			t.next = t.next.Add(t.period)
		}
	}
}

type fakeWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

type fakeTicker struct {
	period  time.Duration
	next    time.Time
	ch      chan time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped = true }
