// Package clock injects wall-clock access so the engine never calls
// time.Now/time.Sleep directly. The production engine runs on a
// 1:1-with-reality Clock; tests run on a FakeClock so ramps, lock-ins,
// and wait loops can be driven deterministically without sleeping.
package clock

import "time"

// Clock is the capability a component needs from wall-clock time:
// the current instant, a blocking sleep, and a channel that fires
// after a duration. Everything in the engine that would otherwise call
// time.Now/time.Sleep/time.After takes a Clock instead.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker mirrors time.Ticker so FakeClock can hand back a controllable one.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real is the production Clock backed by the standard library.
type Real struct{}

func (Real) Now() time.Time                       { return time.Now() }
func (Real) Sleep(d time.Duration)                { time.Sleep(d) }
func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (Real) NewTicker(d time.Duration) Ticker      { return realTicker{time.NewTicker(d)} }

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }
