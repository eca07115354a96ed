package loops

import (
	"math"
	"testing"
)

func TestVolumeAccumulationMode2NumericExample(t *testing.T) {
	c := NewVolumeAccumulationController(ModeTargetTime, 100, 1)
	// R2=10, dW1/dt=-0.2 mL/min, current feed mass 95g, dW2/dt=10 (no drift).
	newRate, commanded := c.Update(10, -0.2, 95, 10)
	if !commanded {
		t.Fatalf("expected commanded=true")
	}
	if math.Abs(newRate-12.0) > 1e-9 {
		t.Fatalf("expected clamp(10 - (-0.2) + (100-95)/1, [8,12]) = 12.0, got %v", newRate)
	}
}

func TestVolumeAccumulationMode1IgnoresFeedTarget(t *testing.T) {
	c := NewVolumeAccumulationController(ModeStabilize, 100, 1)
	newRate, commanded := c.Update(10, -0.2, 95, 10)
	if !commanded {
		t.Fatalf("expected commanded=true")
	}
	// raw = 10 - (-0.2) = 10.2, within [8,12] band, no clamping needed.
	if math.Abs(newRate-10.2) > 1e-9 {
		t.Fatalf("expected mode-1 rate 10.2 (no feed-target term), got %v", newRate)
	}
}

func TestVolumeAccumulationSafetyCheckVetoes(t *testing.T) {
	c := NewVolumeAccumulationController(ModeStabilize, 100, 1)
	// dW2/dt has drifted 15 mL/min from commanded R2=10, beyond the
	// 10 mL/min default deviation bound: the controller must not command.
	newRate, commanded := c.Update(10, -0.2, 95, 25)
	if commanded {
		t.Fatalf("expected commanded=false when pump2 deviation exceeds bound")
	}
	if newRate != 10 {
		t.Fatalf("expected rate echoed unchanged at 10, got %v", newRate)
	}
}

func TestVolumeAccumulationClampsToBand(t *testing.T) {
	c := NewVolumeAccumulationController(ModeStabilize, 100, 1)
	// Large negative W1 rate would push the raw rate far above the band.
	newRate, commanded := c.Update(10, -20, 95, 10)
	if !commanded {
		t.Fatalf("expected commanded=true")
	}
	if newRate != 12 {
		t.Fatalf("expected clamped to upper band 12, got %v", newRate)
	}
}
