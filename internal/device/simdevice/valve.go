package simdevice

import (
	"context"
	"sync"

	"fluidctl/internal/device"
)

// Valve is a simulated multi-channel pinch valve. Position changes take
// effect immediately; no motion model is needed since valves move far
// faster than the tick cadence that drives the rest of the station.
type Valve struct {
	name string

	mu       sync.Mutex
	pctOpen  []float64
}

// NewValve builds a simulated valve with n channels, all starting closed.
func NewValve(name string, n int) *Valve {
	return &Valve{name: name, pctOpen: make([]float64, n)}
}

func (v *Valve) Name() string  { return v.name }
func (v *Valve) Channels() int { return len(v.pctOpen) }

func (v *Valve) MakeCommands() []device.PositionCmd {
	return make([]device.PositionCmd, len(v.pctOpen))
}

func (v *Valve) SetPosition(ctx context.Context, cmds []device.PositionCmd) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, cmd := range cmds {
		if !cmd.Set || i >= len(v.pctOpen) {
			continue
		}
		pct := cmd.PctOpen
		if pct < 0 {
			pct = 0
		}
		if pct > 1 {
			pct = 1
		}
		v.pctOpen[i] = pct
	}
	return nil
}

func (v *Valve) PctOpen(ctx context.Context) ([]device.Option[float64], error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]device.Option[float64], len(v.pctOpen))
	for i, p := range v.pctOpen {
		out[i] = device.Some(p)
	}
	return out, nil
}
