package alarm

import "sync"

// BufferVesselEmptyAlarm trips when the buffer vessel mass drops below
// Config.BufferVesselEmptyG. On handle: stop the configured pumps,
// prompt. On restart: ramp those pumps 50%->100%.
type BufferVesselEmptyAlarm struct {
	mu     sync.Mutex
	active bool
}

func NewBufferVesselEmptyAlarm() *BufferVesselEmptyAlarm { return &BufferVesselEmptyAlarm{} }

func (a *BufferVesselEmptyAlarm) Name() string { return "buffer_vessel_empty" }

func (a *BufferVesselEmptyAlarm) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

func (a *BufferVesselEmptyAlarm) Condition(ctx *Context) bool {
	v, ok := ctx.snapshotField(ctx.Config.BufferVesselField)
	return ok && v < ctx.Config.BufferVesselEmptyG
}

func (a *BufferVesselEmptyAlarm) Handle(ctx *Context) {
	a.mu.Lock()
	a.active = true
	a.mu.Unlock()

	ctx.stopPumps(ctx.Config.BufferVesselPumpNames)
	ctx.Host.Error("buffer vessel empty alarm: feed pumps stopped")
	ctx.Host.Prompt("buffer vessel empty; refill and acknowledge to resume", true)
}

func (a *BufferVesselEmptyAlarm) Restart(ctx *Context) {
	a.mu.Lock()
	a.active = false
	a.mu.Unlock()

	if ctx.Ramp != nil {
		ctx.Ramp(ctx.Config.BufferVesselPumpNames, ctx.Config.RampLowPct, 1.0)
	}
}
