// Package control implements the closed-loop PID controller used by
// pressure lock-in and pH dosing loops (spec §4.4).
package control

import "sync"

// PID is a discrete-time PID controller: integrates only while the error
// is within a controllable band, differentiates on measurement (not
// error) to avoid derivative kicks on setpoint changes, and clamps
// output to [outMin, outMax] with integral anti-windup. Grounded
// directly on pkg/vsa.VSA's shape: a small, mutex-guarded struct exposing
// Update/state-returning methods, safe to call from many goroutines.
type PID struct {
	mu sync.Mutex

	kp, ki, kd       float64
	setpoint         float64
	periodS          float64
	outMin, outMax   float64
	controllableBand float64

	integral        float64
	prevMeasurement float64
	hasPrev         bool
}

// New builds a PID with the given tunings, setpoint, period (seconds),
// output clamp, and controllable band (the |error| threshold within
// which the integral term accumulates).
func New(kp, ki, kd, setpoint, periodS, outMin, outMax, controllableBand float64) *PID {
	return &PID{
		kp: kp, ki: ki, kd: kd,
		setpoint:         setpoint,
		periodS:          periodS,
		outMin:           outMin,
		outMax:           outMax,
		controllableBand: controllableBand,
	}
}

// Update computes the next clamped output for a fresh measurement.
func (p *PID) Update(measurement float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.setpoint - measurement

	provisionalIntegral := p.integral
	if absf(err) <= p.controllableBand {
		provisionalIntegral += err * p.periodS
	}

	derivative := 0.0
	if p.hasPrev && p.periodS > 0 {
		derivative = (measurement - p.prevMeasurement) / p.periodS
	}
	p.prevMeasurement = measurement
	p.hasPrev = true

	raw := p.kp*err + p.ki*provisionalIntegral - p.kd*derivative
	clamped := clampf(raw, p.outMin, p.outMax)

	// Anti-windup: only commit the integral step if it did not push the
	// output into saturation this cycle.
	if clamped == raw {
		p.integral = provisionalIntegral
	}

	return clamped
}

// SetTunings updates kp/ki/kd, effective on the next Update.
func (p *PID) SetTunings(kp, ki, kd float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kp, p.ki, p.kd = kp, ki, kd
}

// SetSetpoint updates the target value.
func (p *PID) SetSetpoint(setpoint float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setpoint = setpoint
}

// Setpoint returns the current target value.
func (p *PID) Setpoint() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setpoint
}

// SetPeriod widens or narrows the control period in seconds; callers may
// widen it as error approaches zero to reduce actuator wear.
func (p *PID) SetPeriod(periodS float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.periodS = periodS
}

// SetOutputLimits updates the output clamp.
func (p *PID) SetOutputLimits(outMin, outMax float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outMin, p.outMax = outMin, outMax
}

// SetControllableBand updates the integration band.
func (p *PID) SetControllableBand(band float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.controllableBand = band
}

// Reset clears accumulated integral and derivative history, without
// touching tunings/setpoint/limits.
func (p *PID) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.integral = 0
	p.hasPrev = false
}

func clampf(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
