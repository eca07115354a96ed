package simdevice

import (
	"context"
	"sync"
	"time"

	"fluidctl/internal/clock"
	"fluidctl/internal/device"
)

// Mixer is a simulated overhead stirrer with a jacketed-vessel temperature
// model: temperature exponentially approaches whatever target was last
// set, at a fixed approach rate, advanced against the injected Clock.
type Mixer struct {
	name string
	clk  clock.Clock

	mu          sync.Mutex
	running     bool
	rpm         float64
	temperature float64
	target      float64
	hasTarget   bool
	approachPerMin float64
	lastTick    time.Time
}

// NewMixer builds a simulated mixer starting at ambient temperature.
func NewMixer(name string, ambientC float64, clk clock.Clock) *Mixer {
	return &Mixer{
		name:           name,
		clk:            clk,
		temperature:    ambientC,
		approachPerMin: 0.2,
		lastTick:       clk.Now(),
	}
}

func (m *Mixer) Name() string  { return m.name }
func (m *Mixer) Channels() int { return 1 }

func (m *Mixer) advanceLocked() {
	now := m.clk.Now()
	elapsedMin := now.Sub(m.lastTick).Minutes()
	m.lastTick = now
	if elapsedMin <= 0 || !m.hasTarget {
		return
	}
	gap := m.target - m.temperature
	step := gap * m.approachPerMin * elapsedMin
	// Clamp so a long elapsed interval never overshoots the target,
	// whichever direction it approaches from.
	if gap >= 0 {
		if step < 0 {
			step = 0
		} else if step > gap {
			step = gap
		}
	} else {
		if step > 0 {
			step = 0
		} else if step < gap {
			step = gap
		}
	}
	m.temperature += step
}

func (m *Mixer) Start(ctx context.Context, rpm float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advanceLocked()
	m.running = true
	m.rpm = rpm
	return nil
}

func (m *Mixer) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advanceLocked()
	m.running = false
	m.rpm = 0
	return nil
}

func (m *Mixer) SetTemperatureTarget(ctx context.Context, celsius float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advanceLocked()
	m.target = celsius
	m.hasTarget = true
	return nil
}

func (m *Mixer) TemperatureTarget() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.target, m.hasTarget
}

func (m *Mixer) Temperature(ctx context.Context) (device.Option[float64], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advanceLocked()
	return device.Some(m.temperature), nil
}
