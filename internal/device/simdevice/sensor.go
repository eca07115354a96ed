// Package simdevice provides simulated device implementations with an
// observable surface identical to live hardware (spec §4.1, §6: every
// device type exposes a simulator shim with the same semantics as the
// live interface). Grounded on the raw-vs-calibrated reading split and
// mutex-serialized bus access in the pH-probe driver retrieved alongside
// this spec (a real I2C driver: read raw, apply a software calibration,
// log both), generalized here to raw-value + drift-rate + noise.
package simdevice

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"fluidctl/internal/clock"
	"fluidctl/internal/device"
)

// Sensor is a simulated multi-channel sensor (balance, pressure
// transducer, pH probe, thermocouple, mass-flow meter). Each channel has
// an independently settable value, rate of change (units/minute), and
// gaussian noise sigma, advanced against a Clock so tests can drive it
// deterministically.
type Sensor struct {
	name string
	clk  clock.Clock
	rng  *rand.Rand

	mu       sync.Mutex
	values   []float64
	rates    []float64 // units per minute
	noise    []float64 // stddev
	missing  []bool
	lastTick time.Time
}

// NewSensor builds a simulated sensor with the given channel count.
func NewSensor(name string, channels int, clk clock.Clock) *Sensor {
	return &Sensor{
		name:     name,
		clk:      clk,
		rng:      rand.New(rand.NewSource(1)),
		values:   make([]float64, channels),
		rates:    make([]float64, channels),
		noise:    make([]float64, channels),
		missing:  make([]bool, channels),
		lastTick: clk.Now(),
	}
}

func (s *Sensor) Name() string  { return s.name }
func (s *Sensor) Channels() int { return len(s.values) }

// SetSimValues sets the base value for each channel (spec §4.1: simulated
// variants must expose set_sim_values).
func (s *Sensor) SetSimValues(values []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.values, values)
}

// SetSimRatesOfChange sets each channel's drift rate in units/minute.
func (s *Sensor) SetSimRatesOfChange(rates []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.rates, rates)
}

// SetSimNoise sets each channel's gaussian noise standard deviation.
func (s *Sensor) SetSimNoise(noise []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.noise, noise)
}

// SetSimMissing forces a channel to read as absent, exercising the
// sensor-read-invalid retry path (spec §7).
func (s *Sensor) SetSimMissing(channel int, missing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if channel >= 0 && channel < len(s.missing) {
		s.missing[channel] = missing
	}
}

// ReadAll advances every channel by elapsed*rate since the last read,
// adds noise, and returns the batch. A channel marked missing returns
// device.None.
func (s *Sensor) ReadAll(ctx context.Context) ([]device.Option[float64], error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	elapsedMin := now.Sub(s.lastTick).Minutes()
	s.lastTick = now

	out := make([]device.Option[float64], len(s.values))
	for i := range s.values {
		s.values[i] += s.rates[i] * elapsedMin
		if s.missing[i] {
			out[i] = device.None[float64]()
			continue
		}
		v := s.values[i]
		if s.noise[i] > 0 {
			v += s.rng.NormFloat64() * s.noise[i]
		}
		out[i] = device.Some(v)
	}
	return out, nil
}

// Tare zeroes a channel's current value, as a balance tare would.
func (s *Sensor) Tare(ctx context.Context, channel int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if channel < 0 || channel >= len(s.values) {
		return &device.BusError{Device: s.name, Kind: device.ProtocolError}
	}
	s.values[channel] = 0
	return nil
}
