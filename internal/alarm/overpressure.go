package alarm

import "sync"

// OverPressureAlarm trips when any configured pressure field exceeds
// Config.OverPressureMaxPsi. On handle: stop all pumps, prompt the
// operator. On restart: ramp every pump back from 50% to 90%/100% of
// its pre-alarm rate.
type OverPressureAlarm struct {
	mu     sync.Mutex
	active bool
}

// NewOverPressureAlarm constructs the alarm.
func NewOverPressureAlarm() *OverPressureAlarm { return &OverPressureAlarm{} }

func (a *OverPressureAlarm) Name() string { return "over_pressure" }

func (a *OverPressureAlarm) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

func (a *OverPressureAlarm) Condition(ctx *Context) bool {
	for _, field := range ctx.Config.PressureFields {
		v, ok := ctx.snapshotField(field)
		if ok && v > ctx.Config.OverPressureMaxPsi {
			return true
		}
	}
	return false
}

func (a *OverPressureAlarm) Handle(ctx *Context) {
	a.mu.Lock()
	a.active = true
	a.mu.Unlock()

	ctx.stopAllPumps()
	ctx.Host.Error("over-pressure alarm: all pumps stopped")
	ctx.Host.Prompt("over-pressure condition detected; acknowledge to resume", true)
}

func (a *OverPressureAlarm) Restart(ctx *Context) {
	a.mu.Lock()
	a.active = false
	a.mu.Unlock()

	names := make([]string, 0, len(ctx.Pumps))
	for n := range ctx.Pumps {
		names = append(names, n)
	}
	if ctx.Ramp != nil {
		ctx.Ramp(names, ctx.Config.RampLowPct, ctx.Config.RampHighPct)
	}
}
