package loops

import (
	"context"
	"testing"
	"time"

	"fluidctl/internal/clock"
	"fluidctl/internal/control"
	"fluidctl/internal/data"
	"fluidctl/internal/device"
	"fluidctl/internal/device/simdevice"
)

// plantP3 is a toy linear plant: P3 = base - gain*pv, used so the test
// can drive a believable pressure reading off the valve position the
// loop itself commands.
const (
	plantBasePsi = 10.0
	plantGain    = 50.0
)

func runPlantDriver(clk *clock.FakeClock, valve *simdevice.Valve, cache *data.TrailingCache, done <-chan struct{}) {
	ctx := context.Background()
	for {
		select {
		case <-done:
			return
		default:
		}
		pos, _ := valve.PctOpen(ctx)
		pv, _ := pos[0].Get()
		p3 := plantBasePsi - plantGain*pv

		clk.Advance(valveDelay)
		s := data.NewSnapshot(clk.Now())
		s.Set("P3", p3, true)
		cache.Push(s)
		time.Sleep(time.Millisecond)
	}
}

func TestPinchValveLockInHoldsAtSetpoint(t *testing.T) {
	clk := clock.NewFakeClock(time.Unix(0, 0))
	valve := simdevice.NewValve("pv1", 1)
	cmds := valve.MakeCommands()
	cmds[0] = device.PositionCmd{Set: true, PctOpen: 0.1} // P3 = 10 - 50*0.1 = 5.0, at setpoint
	if err := valve.SetPosition(context.Background(), cmds); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}

	cache := data.NewTrailingCache(50, 50*time.Millisecond)
	pid := control.New(0.0001, 0, 0, 5.0, 0.2, -1, 1, 10)

	done := make(chan struct{})
	resultCh := make(chan RampResult, 1)
	go func() {
		r, err := PinchValveLockIn(context.Background(), clk, pid, valve, 0, cache, "P3", 0.5, 10*time.Second)
		if err != nil {
			t.Errorf("PinchValveLockIn: %v", err)
		}
		resultCh <- r
		close(done)
	}()

	go runPlantDriver(clk, valve, cache, done)

	select {
	case r := <-resultCh:
		if r != RampOk {
			t.Fatalf("expected RampOk once held in-band, got %v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("lock-in did not complete in time")
	}
}

func TestPinchValveLockInTimesOutFarFromSetpoint(t *testing.T) {
	clk := clock.NewFakeClock(time.Unix(0, 0))
	valve := simdevice.NewValve("pv2", 1)
	cmds := valve.MakeCommands()
	cmds[0] = device.PositionCmd{Set: true, PctOpen: 0.9} // P3 = 10 - 50*0.9 = -35, far below target
	if err := valve.SetPosition(context.Background(), cmds); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}

	cache := data.NewTrailingCache(50, 50*time.Millisecond)
	// Tiny gains and a narrow clamp mean the valve barely moves per
	// cycle, so a short timeout elapses before 10 in-band samples.
	pid := control.New(0.00001, 0, 0, 5.0, 0.2, -1, 1, 100)

	done := make(chan struct{})
	resultCh := make(chan RampResult, 1)
	go func() {
		r, err := PinchValveLockIn(context.Background(), clk, pid, valve, 0, cache, "P3", 0.1, 2*time.Second)
		if err != nil {
			t.Errorf("PinchValveLockIn: %v", err)
		}
		resultCh <- r
		close(done)
	}()

	go runPlantDriver(clk, valve, cache, done)

	select {
	case r := <-resultCh:
		if r != RampTimedOut {
			t.Fatalf("expected RampTimedOut, got %v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("lock-in did not complete in time")
	}
}
