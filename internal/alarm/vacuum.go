package alarm

import "sync"

// VacuumConditionAlarm trips when any configured pressure field reads
// below VacuumThresholdPsi. Takes precedence over LowPressureAlarm at
// the P3 <= -3 boundary (spec §9). On handle: stop all pumps, prompt.
// On restart: ramp all pumps 50%->100%.
type VacuumConditionAlarm struct {
	mu     sync.Mutex
	active bool
}

func NewVacuumConditionAlarm() *VacuumConditionAlarm { return &VacuumConditionAlarm{} }

func (a *VacuumConditionAlarm) Name() string { return "vacuum_condition" }

func (a *VacuumConditionAlarm) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

func (a *VacuumConditionAlarm) Condition(ctx *Context) bool {
	// <=, not <, so this alarm claims the P3==-3 boundary ahead of
	// LowPressureAlarm (spec §9 precedence resolution).
	for _, f := range append([]string{ctx.Config.VacuumField}, ctx.Config.PressureFields...) {
		if v, ok := ctx.snapshotField(f); ok && v <= ctx.Config.VacuumThresholdPsi {
			return true
		}
	}
	return false
}

func (a *VacuumConditionAlarm) Handle(ctx *Context) {
	a.mu.Lock()
	a.active = true
	a.mu.Unlock()

	ctx.stopAllPumps()
	ctx.Host.Error("vacuum condition alarm: all pumps stopped")
	ctx.Host.Prompt("vacuum condition detected; acknowledge to resume", true)
}

func (a *VacuumConditionAlarm) Restart(ctx *Context) {
	a.mu.Lock()
	a.active = false
	a.mu.Unlock()

	names := make([]string, 0, len(ctx.Pumps))
	for n := range ctx.Pumps {
		names = append(names, n)
	}
	if ctx.Ramp != nil {
		ctx.Ramp(names, ctx.Config.RampLowPct, 1.0)
	}
}
