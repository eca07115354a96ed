package alarm

import (
	"context"

	"fluidctl/internal/data"
	"fluidctl/internal/device"
	"fluidctl/internal/host"
)

// RampFunc ramps a set of pumps from fromPct to toPct of their
// pre-alarm cached rate; supplied by the runner, which owns the actual
// ramp loop (internal/loops.PumpRamp). Alarms never drive ramping
// themselves — they only request it, keeping the alarm package free of
// a dependency on the control-loop package.
type RampFunc func(pumpNames []string, fromPct, toPct float64)

// Context is the read-only view alarms get of process state and the
// write-capable hooks they're allowed to call (stop pumps, prompt the
// operator, request a ramp). Alarms borrow these handles rather than
// holding a reference to the whole Process, avoiding the
// Station->Process->Devices back-reference cycle the spec calls out.
type Context struct {
	Ctx context.Context

	Cache  *data.TrailingCache
	Pumps  map[string]device.Pump
	Host   host.Host
	Config Config
	Ramp   RampFunc
}

// stopPump issues an all-channels stop command for the named pump. A
// missing pump name or a bus error is logged through the host and
// otherwise swallowed — alarm handling must not panic mid-shutdown.
func (c *Context) stopPump(name string) {
	p, ok := c.Pumps[name]
	if !ok {
		return
	}
	mask := make([]bool, p.Channels())
	for i := range mask {
		mask[i] = true
	}
	if err := p.Stop(c.Ctx, device.StopCmd{Mask: mask}); err != nil {
		c.Host.Error("alarm: stop " + name + ": " + err.Error())
	}
}

func (c *Context) stopPumps(names []string) {
	for _, n := range names {
		c.stopPump(n)
	}
}

func (c *Context) stopAllPumps() {
	for n := range c.Pumps {
		c.stopPump(n)
	}
}

func (c *Context) snapshotField(name string) (float64, bool) {
	snap, ok := c.Cache.Latest()
	if !ok {
		return 0, false
	}
	return snap.Get(name)
}
