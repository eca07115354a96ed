package simdevice

import (
	"context"
	"math"
	"testing"
	"time"

	"fluidctl/internal/clock"
	"fluidctl/internal/device"
)

func TestSyringePumpInfuseDrainsPlunger(t *testing.T) {
	clk := clock.NewFakeClock(time.Unix(0, 0))
	p := NewSyringePump("syr1", 1, 1000, 1, 100, clk)

	err := p.Start(context.Background(), []device.StartCmd{
		{Set: true, RateValue: 600, RateUnits: device.UlPerMin, Direction: device.Infuse},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	clk.Advance(time.Minute)

	pos, err := p.PlungerPositionVolumeUl(context.Background())
	if err != nil {
		t.Fatalf("PlungerPositionVolumeUl: %v", err)
	}
	got, ok := pos[0].Get()
	if !ok {
		t.Fatalf("expected valid reading")
	}
	if math.Abs(got-400) > 1e-6 {
		t.Fatalf("expected plunger at 400ul, got %v", got)
	}
}

func TestSyringePumpStopsAtZero(t *testing.T) {
	clk := clock.NewFakeClock(time.Unix(0, 0))
	p := NewSyringePump("syr1", 1, 100, 1, 1000, clk)

	if err := p.Start(context.Background(), []device.StartCmd{
		{Set: true, RateValue: 1000, RateUnits: device.UlPerMin, Direction: device.Infuse},
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	clk.Advance(time.Minute)

	active, err := p.GetActive(context.Background())
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if active[0] {
		t.Fatalf("expected pump to auto-stop once plunger empties")
	}
}

func TestSyringePumpBusyReturnsBusError(t *testing.T) {
	clk := clock.NewFakeClock(time.Unix(0, 0))
	p := NewSyringePump("syr1", 1, 100, 1, 1000, clk)
	p.SetBusy(true)

	err := p.Start(context.Background(), []device.StartCmd{{Set: true, RateValue: 10}})
	if err == nil {
		t.Fatalf("expected error")
	}
	var busErr *device.BusError
	if !errorsAs(err, &busErr) {
		t.Fatalf("expected *device.BusError, got %T", err)
	}
	if busErr.Kind != device.BusBusy || !busErr.Retryable() {
		t.Fatalf("expected retryable BusBusy, got %+v", busErr)
	}
}

func TestPeristalticPumpStartStop(t *testing.T) {
	p := NewPeristalticPump("peri1", 2)
	ctx := context.Background()

	if err := p.Start(ctx, []device.StartCmd{{Set: true, RateValue: 5}, {}}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	active, err := p.GetActive(ctx)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if !active[0] || active[1] {
		t.Fatalf("unexpected active mask: %v", active)
	}

	if err := p.Stop(ctx, device.StopCmd{Mask: []bool{true, false}}); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	active, _ = p.GetActive(ctx)
	if active[0] {
		t.Fatalf("expected channel 0 stopped")
	}
}

func errorsAs(err error, target **device.BusError) bool {
	be, ok := err.(*device.BusError)
	if !ok {
		return false
	}
	*target = be
	return true
}
