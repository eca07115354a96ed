package alarm

import (
	"sync"
	"time"
)

// LowPressureAlarm trips when 0.3 > P3 >= -3 psi. VacuumCondition takes
// precedence at the P3 <= -3 boundary (spec §9 Open Questions
// resolution), so this alarm's condition explicitly excludes it. On
// handle: stop the configured pumps (P2, P3) and wait 5s before the
// watchdog's next scan is allowed to restart them (handled by the
// waitUntil gate below, since Watchdog.CheckAll ticks continuously).
type LowPressureAlarm struct {
	mu        sync.Mutex
	active    bool
	waitUntil time.Time
	now       func() time.Time
}

// NewLowPressureAlarm constructs the alarm. now defaults to time.Now if nil.
func NewLowPressureAlarm(now func() time.Time) *LowPressureAlarm {
	if now == nil {
		now = time.Now
	}
	return &LowPressureAlarm{now: now}
}

func (a *LowPressureAlarm) Name() string { return "low_pressure" }

func (a *LowPressureAlarm) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

func (a *LowPressureAlarm) Condition(ctx *Context) bool {
	v, ok := ctx.snapshotField(ctx.Config.LowPressureField)
	if !ok {
		return false
	}
	if v <= ctx.Config.VacuumThresholdPsi {
		return false // VacuumCondition's territory
	}
	return v < ctx.Config.LowPressureUpperPsi && v >= ctx.Config.LowPressureLowerPsi
}

func (a *LowPressureAlarm) Handle(ctx *Context) {
	a.mu.Lock()
	a.active = true
	a.waitUntil = a.now().Add(time.Duration(ctx.Config.LowPressureWaitSeconds * float64(time.Second)))
	a.mu.Unlock()

	ctx.stopPumps(ctx.Config.LowPressurePumpNames)
	ctx.Host.Log("low-pressure alarm: P2/P3 stopped, waiting before restart eligible")
}

func (a *LowPressureAlarm) Restart(ctx *Context) {
	a.mu.Lock()
	if a.now().Before(a.waitUntil) {
		a.mu.Unlock()
		return
	}
	a.active = false
	a.mu.Unlock()

	if ctx.Ramp != nil {
		ctx.Ramp(ctx.Config.LowPressurePumpNames, ctx.Config.RampLowPct, 0.9)
	}
}
