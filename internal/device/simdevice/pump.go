package simdevice

import (
	"context"
	"sync"
	"time"

	"fluidctl/internal/clock"
	"fluidctl/internal/device"
)

// channelState tracks one syringe/peristaltic channel's simulated motion.
type channelState struct {
	running      bool
	rateMlMin    float64
	direction    device.Direction
	plungerPosUl float64 // for syringe pumps; volume held in the syringe, infuse decreases it
	plungerMode  device.PlungerMode
	valvePort    int
}

// SyringePump is a simulated multi-channel syringe pump. Plunger position
// advances against the injected Clock at the commanded rate, exactly the
// quantity the station state machine differences to compute dispensed
// volume (spec §4.6).
type SyringePump struct {
	name           string
	clk            clock.Clock
	syringeVolUl   float64
	minRateUlMin   float64
	maxRateUlMin   float64

	mu       sync.Mutex
	channels []channelState
	lastTick time.Time
	busy     bool // simulates a transient BusBusy window when true
}

// NewSyringePump builds a simulated syringe pump with n channels, each
// starting at full plunger volume (primed and ready to infuse).
func NewSyringePump(name string, n int, syringeVolUl, minRateUlMin, maxRateUlMin float64, clk clock.Clock) *SyringePump {
	chs := make([]channelState, n)
	for i := range chs {
		chs[i].plungerPosUl = syringeVolUl
	}
	return &SyringePump{
		name:         name,
		clk:          clk,
		syringeVolUl: syringeVolUl,
		minRateUlMin: minRateUlMin,
		maxRateUlMin: maxRateUlMin,
		channels:     chs,
		lastTick:     clk.Now(),
	}
}

func (p *SyringePump) Name() string  { return p.name }
func (p *SyringePump) Channels() int { return len(p.channels) }

// SetBusy makes every Start and Stop fail with BusBusy while busy is
// true; rate and position queries are unaffected. Used to exercise the
// runner's device-error handling.
func (p *SyringePump) SetBusy(busy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.busy = busy
}

func (p *SyringePump) advanceLocked() {
	now := p.clk.Now()
	elapsedMin := now.Sub(p.lastTick).Minutes()
	p.lastTick = now
	if elapsedMin <= 0 {
		return
	}
	for i := range p.channels {
		c := &p.channels[i]
		if !c.running {
			continue
		}
		deltaUl := c.rateMlMin * 1000 * elapsedMin
		if c.direction == device.Infuse {
			c.plungerPosUl -= deltaUl
			if c.plungerPosUl <= 0 {
				c.plungerPosUl = 0
				c.running = false
			}
		} else {
			c.plungerPosUl += deltaUl
			if c.plungerPosUl >= p.syringeVolUl {
				c.plungerPosUl = p.syringeVolUl
				c.running = false
			}
		}
	}
}

func (p *SyringePump) MakeStartCommands() []device.StartCmd {
	return make([]device.StartCmd, len(p.channels))
}

func (p *SyringePump) Start(ctx context.Context, cmds []device.StartCmd) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.busy {
		return &device.BusError{Device: p.name, Kind: device.BusBusy}
	}
	p.advanceLocked()
	for i, cmd := range cmds {
		if !cmd.Set || i >= len(p.channels) {
			continue
		}
		rateMlMin := cmd.RateValue
		if cmd.RateUnits == device.UlPerMin {
			rateMlMin = cmd.RateValue / 1000
		}
		p.channels[i].running = true
		p.channels[i].rateMlMin = rateMlMin
		p.channels[i].direction = cmd.Direction
	}
	return nil
}

func (p *SyringePump) Stop(ctx context.Context, cmd device.StopCmd) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.busy {
		return &device.BusError{Device: p.name, Kind: device.BusBusy}
	}
	p.advanceLocked()
	for i, set := range cmd.Mask {
		if set && i < len(p.channels) {
			p.channels[i].running = false
		}
	}
	return nil
}

func (p *SyringePump) MakeSpeedCommands() []device.SpeedCmd {
	return make([]device.SpeedCmd, len(p.channels))
}

func (p *SyringePump) ChangeSpeed(ctx context.Context, cmds []device.SpeedCmd) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanceLocked()
	for i, cmd := range cmds {
		if !cmd.Set || i >= len(p.channels) {
			continue
		}
		rateMlMin := cmd.RateValue
		if cmd.RateUnits == device.UlPerMin {
			rateMlMin = cmd.RateValue / 1000
		}
		p.channels[i].rateMlMin = rateMlMin
	}
	return nil
}

func (p *SyringePump) GetRate(ctx context.Context) ([]device.Option[float64], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]device.Option[float64], len(p.channels))
	for i, c := range p.channels {
		if c.running {
			out[i] = device.Some(c.rateMlMin)
		}
	}
	return out, nil
}

func (p *SyringePump) GetActive(ctx context.Context) ([]bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanceLocked()
	out := make([]bool, len(p.channels))
	for i, c := range p.channels {
		out[i] = c.running
	}
	return out, nil
}

func (p *SyringePump) SetValve(ctx context.Context, channel int, port int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if channel < 0 || channel >= len(p.channels) {
		return &device.BusError{Device: p.name, Kind: device.ProtocolError}
	}
	p.channels[channel].valvePort = port
	return nil
}

func (p *SyringePump) SetPlungerMode(ctx context.Context, channel int, mode device.PlungerMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if channel < 0 || channel >= len(p.channels) {
		return &device.BusError{Device: p.name, Kind: device.ProtocolError}
	}
	p.channels[channel].plungerMode = mode
	return nil
}

func (p *SyringePump) PlungerPositionVolumeUl(ctx context.Context) ([]device.Option[float64], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanceLocked()
	out := make([]device.Option[float64], len(p.channels))
	for i, c := range p.channels {
		out[i] = device.Some(c.plungerPosUl)
	}
	return out, nil
}

func (p *SyringePump) SyringeVolumeUl(channel int) float64 { return p.syringeVolUl }

func (p *SyringePump) MinMaxRateUlMin(channel int) (float64, float64) {
	return p.minRateUlMin, p.maxRateUlMin
}

// PeristalticPump is a simulated multi-channel peristaltic pump: no
// plunger/volume concept, just a running rate per channel.
type PeristalticPump struct {
	name string

	mu       sync.Mutex
	running  []bool
	rate     []float64 // ml/min
}

// NewPeristalticPump builds a simulated peristaltic pump with n channels.
func NewPeristalticPump(name string, n int) *PeristalticPump {
	return &PeristalticPump{name: name, running: make([]bool, n), rate: make([]float64, n)}
}

func (p *PeristalticPump) Name() string  { return p.name }
func (p *PeristalticPump) Channels() int { return len(p.running) }

func (p *PeristalticPump) MakeStartCommands() []device.StartCmd {
	return make([]device.StartCmd, len(p.running))
}

func (p *PeristalticPump) Start(ctx context.Context, cmds []device.StartCmd) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, cmd := range cmds {
		if !cmd.Set || i >= len(p.running) {
			continue
		}
		rateMlMin := cmd.RateValue
		if cmd.RateUnits == device.UlPerMin {
			rateMlMin = cmd.RateValue / 1000
		}
		p.running[i] = true
		p.rate[i] = rateMlMin
	}
	return nil
}

func (p *PeristalticPump) Stop(ctx context.Context, cmd device.StopCmd) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, set := range cmd.Mask {
		if set && i < len(p.running) {
			p.running[i] = false
		}
	}
	return nil
}

func (p *PeristalticPump) MakeSpeedCommands() []device.SpeedCmd {
	return make([]device.SpeedCmd, len(p.running))
}

func (p *PeristalticPump) ChangeSpeed(ctx context.Context, cmds []device.SpeedCmd) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, cmd := range cmds {
		if !cmd.Set || i >= len(p.running) {
			continue
		}
		rateMlMin := cmd.RateValue
		if cmd.RateUnits == device.UlPerMin {
			rateMlMin = cmd.RateValue / 1000
		}
		p.rate[i] = rateMlMin
	}
	return nil
}

func (p *PeristalticPump) GetRate(ctx context.Context) ([]device.Option[float64], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]device.Option[float64], len(p.running))
	for i := range p.running {
		if p.running[i] {
			out[i] = device.Some(p.rate[i])
		}
	}
	return out, nil
}

func (p *PeristalticPump) GetActive(ctx context.Context) ([]bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.running...), nil
}
