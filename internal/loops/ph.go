package loops

import (
	"sync"
	"time"

	"fluidctl/internal/control"
)

// PhOnOffController implements the bolus-dosing pH control rule of
// spec §4.8: dose = ((setpoint+0.1) - start_pH) / last_dpH_per_mL,
// clamped to [min_dose, min(max_dose, 2*last_dose)], falling back to
// doubling the last dose when the sensitivity estimate is unusable
// (zero or negative — a fresh run, or a probe reading that moved the
// wrong way). A dose is only permitted every 30s, or sooner once the
// trailing pH rate has settled below 0.5 pH/min.
type PhOnOffController struct {
	SetpointPh float64
	MinDoseMl  float64
	MaxDoseMl  float64

	mu           sync.Mutex
	lastDoseMl   float64
	lastDpHPerMl float64
	lastDoseAt   time.Time
}

// NewPhOnOffController builds a controller; firstDoseMl seeds the
// doubling fallback before any dose response has been observed.
func NewPhOnOffController(setpointPh, minDoseMl, maxDoseMl, firstDoseMl float64) *PhOnOffController {
	return &PhOnOffController{
		SetpointPh: setpointPh,
		MinDoseMl:  minDoseMl,
		MaxDoseMl:  maxDoseMl,
		lastDoseMl: firstDoseMl,
	}
}

// Ready reports whether another dose may be commanded: 30s have passed
// since the last one, or the trailing pH rate has fallen below 0.5
// pH/min (the dose has finished taking effect).
func (c *PhOnOffController) Ready(now time.Time, recentRatePhPerMin float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastDoseAt.IsZero() {
		return true
	}
	if now.Sub(c.lastDoseAt) >= 30*time.Second {
		return true
	}
	return absf(recentRatePhPerMin) < 0.5
}

// Dose computes and records the next bolus size for a probe reading of
// startPh at time now.
func (c *PhOnOffController) Dose(startPh float64, now time.Time) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var doseMl float64
	if c.lastDpHPerMl <= 0 {
		doseMl = c.lastDoseMl * 2
	} else {
		doseMl = ((c.SetpointPh + 0.1) - startPh) / c.lastDpHPerMl
	}

	upper := c.MaxDoseMl
	if cap := 2 * c.lastDoseMl; cap < upper {
		upper = cap
	}
	if upper < c.MinDoseMl {
		upper = c.MinDoseMl
	}
	doseMl = clampf(doseMl, c.MinDoseMl, upper)

	c.lastDoseMl = doseMl
	c.lastDoseAt = now
	return doseMl
}

// RecordResponse updates the sensitivity estimate (dpH per mL) from an
// observed pH delta after a dose, used by the next Dose call.
func (c *PhOnOffController) RecordResponse(doseMl, observedDeltaPh float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if doseMl > 0 {
		c.lastDpHPerMl = observedDeltaPh / doseMl
	}
}

// pH PID dosing cadence rules (spec §4.8): 1s base cadence, widened to
// 2s once 30 consecutive samples have held within the window, gains
// halved (a documented damping choice, not a retune to new setpoint
// data) once 20 consecutive samples have held within the window.
const (
	phPIDBaseCadence   = time.Second
	phPIDWidenCadence  = 2 * time.Second
	phPIDWidenStreak   = 30
	phPIDDampenStreak  = 20
)

// PhPIDDoser wraps a PID loop driving continuous base-pump dosing, with
// the streak-gated cadence widening and gain dampening of spec §4.8.
type PhPIDDoser struct {
	PID       *control.PID
	windowPh  float64
	baseKp    float64
	baseKi    float64
	baseKd    float64

	mu          sync.Mutex
	inBandRun   int
	dampened    bool
}

// NewPhPIDDoser captures the PID's initial tunings so they can be
// restored if the loop ever falls back out of the dampened regime.
func NewPhPIDDoser(pid *control.PID, windowPh, kp, ki, kd float64) *PhPIDDoser {
	return &PhPIDDoser{PID: pid, windowPh: windowPh, baseKp: kp, baseKi: ki, baseKd: kd}
}

// Next advances the doser by one sample, returning the dose command and
// the cadence to wait before the next sample.
func (d *PhPIDDoser) Next(measurement float64) (doseMl float64, cadence time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if absf(measurement-d.PID.Setpoint()) <= d.windowPh {
		d.inBandRun++
	} else {
		d.inBandRun = 0
		if d.dampened {
			d.dampened = false
			d.PID.SetTunings(d.baseKp, d.baseKi, d.baseKd)
		}
	}

	if !d.dampened && d.inBandRun >= phPIDDampenStreak {
		d.dampened = true
		d.PID.SetTunings(d.baseKp/2, d.baseKi/2, d.baseKd/2)
	}

	cadence = phPIDBaseCadence
	if d.inBandRun >= phPIDWidenStreak {
		cadence = phPIDWidenCadence
	}

	doseMl = d.PID.Update(measurement)
	return doseMl, cadence
}
