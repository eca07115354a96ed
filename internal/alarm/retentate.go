package alarm

import "sync"

// RetentateVesselLowAlarm trips when the feed vessel mass drops below
// Config.RetentateVesselThresholdG. Follows the documented intent (feed
// vessel W1) rather than the shipped condition's apparent W2 typo (spec
// §9's redesign-flagged likely bug), but stays off by default —
// RetentateVesselLowEnabled must be set, since the corrected condition
// changes observable behavior relative to the historical implementation.
type RetentateVesselLowAlarm struct {
	mu     sync.Mutex
	active bool
}

func NewRetentateVesselLowAlarm() *RetentateVesselLowAlarm { return &RetentateVesselLowAlarm{} }

func (a *RetentateVesselLowAlarm) Name() string { return "retentate_vessel_low" }

func (a *RetentateVesselLowAlarm) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

func (a *RetentateVesselLowAlarm) Condition(ctx *Context) bool {
	if !ctx.Config.RetentateVesselLowEnabled {
		return false
	}
	v, ok := ctx.snapshotField(ctx.Config.RetentateVesselField)
	return ok && v < ctx.Config.RetentateVesselThresholdG
}

func (a *RetentateVesselLowAlarm) Handle(ctx *Context) {
	a.mu.Lock()
	a.active = true
	a.mu.Unlock()

	ctx.stopAllPumps()
	ctx.Host.Error("retentate vessel low alarm: all pumps stopped")
	ctx.Host.Prompt("feed vessel low; refill and acknowledge to resume", true)
}

func (a *RetentateVesselLowAlarm) Restart(ctx *Context) {
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
