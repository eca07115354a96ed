package loops

import (
	"math"
	"testing"
	"time"

	"fluidctl/internal/control"
)

func TestPhOnOffDoseFormula(t *testing.T) {
	c := NewPhOnOffController(8.5, 0.1, 5.0, 0.2)
	c.RecordResponse(0.2, 0.15) // dpH/mL = 0.75

	// dose = ((8.5+0.1) - 7.9) / 0.75 = 0.9333...
	dose := c.Dose(7.9, time.Unix(0, 0))
	want := (8.6 - 7.9) / 0.75
	if want > 2*0.2 {
		want = 2 * 0.2 // clamp to min(max_dose, 2*last_dose)
	}
	if math.Abs(dose-want) > 1e-9 {
		t.Fatalf("expected dose %v, got %v", want, dose)
	}
}

func TestPhOnOffDoublesWhenSensitivityUnknown(t *testing.T) {
	c := NewPhOnOffController(8.5, 0.1, 5.0, 0.3)
	dose := c.Dose(7.0, time.Unix(0, 0))
	if dose != 0.6 {
		t.Fatalf("expected doubling fallback 0.6, got %v", dose)
	}
}

func TestPhOnOffClampsToMinMax(t *testing.T) {
	c := NewPhOnOffController(8.5, 0.1, 1.0, 0.2)
	c.RecordResponse(0.2, 0.01) // tiny sensitivity => huge raw dose
	dose := c.Dose(5.0, time.Unix(0, 0))
	if dose > 1.0 {
		t.Fatalf("expected dose clamped to max_dose 1.0, got %v", dose)
	}
}

func TestPhOnOffReadyGating(t *testing.T) {
	c := NewPhOnOffController(8.5, 0.1, 5.0, 0.2)
	now := time.Unix(0, 0)
	if !c.Ready(now, 1.0) {
		t.Fatalf("expected ready before any dose has been given")
	}
	c.Dose(7.0, now)

	if c.Ready(now.Add(5*time.Second), 1.0) {
		t.Fatalf("expected not ready: <30s elapsed and rate still above 0.5 pH/min")
	}
	if !c.Ready(now.Add(5*time.Second), 0.2) {
		t.Fatalf("expected ready early once trailing rate has settled below 0.5 pH/min")
	}
	if !c.Ready(now.Add(31*time.Second), 1.0) {
		t.Fatalf("expected ready once 30s have elapsed regardless of rate")
	}
}

func TestPhPIDDoserWidensCadenceAfterStreak(t *testing.T) {
	pid := control.New(0.1, 0, 0, 8.5, 1, -1, 1, 10)
	d := NewPhPIDDoser(pid, 0.05, 0.1, 0, 0)

	var cadence time.Duration
	for i := 0; i < phPIDWidenStreak-1; i++ {
		_, cadence = d.Next(8.5) // exactly at setpoint every sample
	}
	if cadence != phPIDBaseCadence {
		t.Fatalf("expected base cadence before the widen streak is reached, got %v", cadence)
	}

	_, cadence = d.Next(8.5)
	if cadence != phPIDWidenCadence {
		t.Fatalf("expected widened cadence after %d in-band samples, got %v", phPIDWidenStreak, cadence)
	}
}

func TestPhPIDDoserDampensGainsAfterStreak(t *testing.T) {
	pid := control.New(0.2, 0.1, 0.05, 8.5, 1, -1, 1, 10)
	d := NewPhPIDDoser(pid, 0.05, 0.2, 0.1, 0.05)

	for i := 0; i < phPIDDampenStreak; i++ {
		d.Next(8.5)
	}
	if !d.dampened {
		t.Fatalf("expected dampened after %d in-band samples", phPIDDampenStreak)
	}

	// Falling back out of band restores original tunings.
	d.Next(9.0)
	if d.dampened {
		t.Fatalf("expected tunings restored once reading leaves the window")
	}
}
