package control

import "testing"

func TestPIDClampsOutputForLargeError(t *testing.T) {
	pid := New(10, 0, 0, 100, 1, -1, 1, 1000)
	out := pid.Update(0) // error=100, raw=1000, way outside clamp
	if out != 1 {
		t.Fatalf("expected clamped output 1, got %v", out)
	}
}

func TestPIDIntegralDoesNotGrowWhileSaturated(t *testing.T) {
	pid := New(0, 1, 0, 100, 1, -1, 1, 1000)
	// First update saturates immediately (huge error * ki).
	out1 := pid.Update(0)
	out2 := pid.Update(0)
	if out1 != 1 || out2 != 1 {
		t.Fatalf("expected both outputs clamped at 1, got %v %v", out1, out2)
	}
	// Now bring measurement near setpoint; if integral had grown
	// unbounded while saturated, output would stay pinned at max
	// instead of tracking back down.
	pid.SetControllableBand(1000)
	out3 := pid.Update(99.9)
	if out3 >= 1 {
		t.Fatalf("expected output to come off saturation once integral stopped growing, got %v", out3)
	}
}

func TestPIDIntegratesOnlyWithinControllableBand(t *testing.T) {
	pid := New(0, 1, 0, 10, 1, -100, 100, 0.5)
	// error = 10, outside the 0.5 band: integral should not accumulate.
	out := pid.Update(0)
	if out != 0 {
		t.Fatalf("expected zero output since integral untouched outside band, got %v", out)
	}
}

func TestPIDDerivativeOnMeasurementNotError(t *testing.T) {
	pid := New(0, 0, 1, 50, 1, -1000, 1000, 1000)
	pid.Update(10) // establishes prevMeasurement, derivative=0 on first call
	out := pid.Update(20)
	// derivative = (20-10)/1 = 10; output = -kd*derivative = -10
	if out != -10 {
		t.Fatalf("expected -10, got %v", out)
	}
}

func TestPIDSetpointChangeDoesNotSpikeDerivative(t *testing.T) {
	pid := New(0, 0, 1, 50, 1, -1000, 1000, 1000)
	pid.Update(25)
	pid.SetSetpoint(80) // changing setpoint alone must not move measurement history
	out := pid.Update(25)
	if out != 0 {
		t.Fatalf("expected no derivative kick from a setpoint change alone, got %v", out)
	}
}
