package simdevice

import (
	"context"
	"math"
	"testing"
	"time"

	"fluidctl/internal/clock"
)

func TestMixerApproachesTarget(t *testing.T) {
	clk := clock.NewFakeClock(time.Unix(0, 0))
	m := NewMixer("mixer1", 22, clk)
	ctx := context.Background()

	if err := m.SetTemperatureTarget(ctx, 37); err != nil {
		t.Fatalf("SetTemperatureTarget: %v", err)
	}
	if err := m.Start(ctx, 300); err != nil {
		t.Fatalf("Start: %v", err)
	}

	clk.Advance(time.Minute)

	temp, err := m.Temperature(ctx)
	if err != nil {
		t.Fatalf("Temperature: %v", err)
	}
	got, ok := temp.Get()
	if !ok {
		t.Fatalf("expected valid reading")
	}
	if got <= 22 || got >= 37 {
		t.Fatalf("expected temperature to have moved partway toward target, got %v", got)
	}
}

func TestMixerNeverOvershootsTarget(t *testing.T) {
	clk := clock.NewFakeClock(time.Unix(0, 0))
	m := NewMixer("mixer1", 22, clk)
	ctx := context.Background()

	_ = m.SetTemperatureTarget(ctx, 25)
	clk.Advance(24 * time.Hour)

	temp, _ := m.Temperature(ctx)
	got, _ := temp.Get()
	if math.Abs(got-25) > 1e-6 {
		t.Fatalf("expected temperature to settle at target 25, got %v", got)
	}
}
