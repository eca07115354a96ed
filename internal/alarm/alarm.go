// Package alarm implements the watchdog/alarm system: polymorphic
// alarms with a condition-check/handle/restart lifecycle that snapshot
// operating state, arrest motion, prompt the operator, and ramp back
// once the condition clears (spec §4.5).
package alarm

import "sync"

// Alarm is the lifecycle every alarm variant implements.
type Alarm interface {
	Name() string
	Active() bool
	Condition(ctx *Context) bool
	Handle(ctx *Context)
	Restart(ctx *Context)
}

// Watchdog fans out CheckAll across a fixed-order slice of alarms every
// tick, grounded on the teacher's Worker.runCommitCycle/runEvictionCycle
// scan-check-act loop: each alarm is scanned, and a state transition
// (not-tripped->tripped, or tripped->cleared) drives Handle or Restart.
type Watchdog struct {
	mu     sync.Mutex
	alarms []Alarm
}

// NewWatchdog builds a Watchdog over alarms, checked in the given order.
func NewWatchdog(alarms ...Alarm) *Watchdog {
	return &Watchdog{alarms: alarms}
}

// CheckAll scans every alarm once. An alarm whose Condition newly fires
// is Handled; an alarm that was Active but whose Condition has cleared
// is Restarted. An alarm whose Condition holds continuously (e.g.
// VolumeAccumulation, which reports Active()==false always) is Handled
// every tick.
func (w *Watchdog) CheckAll(ctx *Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, a := range w.alarms {
		tripped := a.Condition(ctx)
		switch {
		case tripped && !a.Active():
			a.Handle(ctx)
		case !tripped && a.Active():
			a.Restart(ctx)
		}
	}
}

// Alarms returns the watched alarms in check order.
func (w *Watchdog) Alarms() []Alarm {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Alarm(nil), w.alarms...)
}
