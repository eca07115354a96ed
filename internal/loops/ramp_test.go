package loops

import (
	"context"
	"testing"
	"time"

	"fluidctl/internal/clock"
	"fluidctl/internal/data"
	"fluidctl/internal/device"
	"fluidctl/internal/device/simdevice"
)

func startInfusing(t *testing.T, pump device.Pump, channel int, rateUlMin float64) {
	t.Helper()
	cmds := pump.MakeStartCommands()
	cmds[channel] = device.StartCmd{Set: true, RateValue: rateUlMin, RateUnits: device.UlPerMin, Direction: device.Infuse}
	if err := pump.Start(context.Background(), cmds); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

// driveClock advances clk in a loop, yielding briefly each time so a
// goroutine blocked in clk.Sleep can wake, consume, and re-block. It
// stops once done fires.
func driveClock(clk *clock.FakeClock, step time.Duration, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}
		clk.Advance(step)
		time.Sleep(time.Millisecond)
	}
}

func TestPumpRampReachesEndRate(t *testing.T) {
	clk := clock.NewFakeClock(time.Unix(0, 0))
	pump := simdevice.NewSyringePump("syr1", 1, 5000, 1, 500, clk)
	params := RampParams{StartRateUlMin: 50, EndRateUlMin: 200, RateStepUlMin: 50, IntervalS: 1, Timeout: time.Minute}
	startInfusing(t, pump, 0, params.StartRateUlMin)

	done := make(chan struct{})
	resultCh := make(chan RampResult, 1)
	go func() {
		r, err := PumpRamp(context.Background(), clk, pump, 0, params, nil, nil)
		if err != nil {
			t.Errorf("PumpRamp: %v", err)
		}
		resultCh <- r
		close(done)
	}()

	go driveClock(clk, time.Second, done)

	select {
	case r := <-resultCh:
		if r != RampOk {
			t.Fatalf("expected RampOk, got %v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ramp did not complete in time")
	}

	rates, err := pump.GetRate(context.Background())
	if err != nil {
		t.Fatalf("GetRate: %v", err)
	}
	v, ok := rates[0].Get()
	// GetRate reports ml/min; the ramp's rates are in ul/min.
	if !ok || v != params.EndRateUlMin/1000 {
		t.Fatalf("expected final rate 0.2 ml/min (200 ul/min), got %v (ok=%v)", v, ok)
	}
}

func TestPumpRampHitsTargetMassEarly(t *testing.T) {
	clk := clock.NewFakeClock(time.Unix(0, 0))
	pump := simdevice.NewSyringePump("syr2", 1, 5000, 1, 500, clk)
	cache := data.NewTrailingCache(50, time.Second)

	watch := &MassWatch{Cache: cache, Field: "W3", TargetG: 20}
	params := RampParams{StartRateUlMin: 50, EndRateUlMin: 500, RateStepUlMin: 50, IntervalS: 1, Timeout: time.Minute}
	startInfusing(t, pump, 0, params.StartRateUlMin)

	done := make(chan struct{})
	resultCh := make(chan RampResult, 1)
	go func() {
		r, err := PumpRamp(context.Background(), clk, pump, 0, params, watch, nil)
		if err != nil {
			t.Errorf("PumpRamp: %v", err)
		}
		resultCh <- r
		close(done)
	}()

	mass := 0.0
	go func() {
		for {
			select {
			case <-done:
				return
			default:
			}
			clk.Advance(time.Second)
			mass += 5
			s := data.NewSnapshot(clk.Now())
			s.Set("W3", mass, true)
			cache.Push(s)
			time.Sleep(time.Millisecond)
		}
	}()

	select {
	case r := <-resultCh:
		if r != RampTargetMassHit {
			t.Fatalf("expected RampTargetMassHit, got %v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ramp did not complete in time")
	}
}

func TestPumpRampTimesOut(t *testing.T) {
	clk := clock.NewFakeClock(time.Unix(0, 0))
	pump := simdevice.NewSyringePump("syr3", 1, 5000, 1, 500, clk)
	// Step so small relative to range that the timeout fires first.
	params := RampParams{StartRateUlMin: 50, EndRateUlMin: 10000, RateStepUlMin: 1, IntervalS: 1, Timeout: 3 * time.Second}
	startInfusing(t, pump, 0, params.StartRateUlMin)

	done := make(chan struct{})
	resultCh := make(chan RampResult, 1)
	go func() {
		r, err := PumpRamp(context.Background(), clk, pump, 0, params, nil, nil)
		if err != nil {
			t.Errorf("PumpRamp: %v", err)
		}
		resultCh <- r
		close(done)
	}()

	go driveClock(clk, time.Second, done)

	select {
	case r := <-resultCh:
		if r != RampTimedOut {
			t.Fatalf("expected RampTimedOut, got %v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ramp did not complete in time")
	}
}

func TestDualPumpRampReachesEndRates(t *testing.T) {
	clk := clock.NewFakeClock(time.Unix(0, 0))
	pumpA := simdevice.NewSyringePump("syrA", 1, 5000, 1, 500, clk)
	pumpB := simdevice.NewSyringePump("syrB", 1, 5000, 1, 500, clk)

	paramsA := RampParams{StartRateUlMin: 50, EndRateUlMin: 150, RateStepUlMin: 50, IntervalS: 1, Timeout: time.Minute}
	paramsB := RampParams{StartRateUlMin: 20, EndRateUlMin: 60, RateStepUlMin: 20, IntervalS: 1, Timeout: time.Minute}
	startInfusing(t, pumpA, 0, paramsA.StartRateUlMin)
	startInfusing(t, pumpB, 0, paramsB.StartRateUlMin)

	done := make(chan struct{})
	resultCh := make(chan RampResult, 1)
	go func() {
		r, err := DualPumpRamp(context.Background(), clk, pumpA, 0, paramsA, pumpB, 0, paramsB, nil, nil)
		if err != nil {
			t.Errorf("DualPumpRamp: %v", err)
		}
		resultCh <- r
		close(done)
	}()

	go driveClock(clk, time.Second, done)

	select {
	case r := <-resultCh:
		if r != RampOk {
			t.Fatalf("expected RampOk, got %v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("dual ramp did not complete in time")
	}

	ratesA, _ := pumpA.GetRate(context.Background())
	ratesB, _ := pumpB.GetRate(context.Background())
	// GetRate reports ml/min; the ramp's rates are in ul/min.
	if v, _ := ratesA[0].Get(); v != paramsA.EndRateUlMin/1000 {
		t.Fatalf("expected pump A at 0.15 ml/min (150 ul/min), got %v", v)
	}
	if v, _ := ratesB[0].Get(); v != paramsB.EndRateUlMin/1000 {
		t.Fatalf("expected pump B at 0.06 ml/min (60 ul/min), got %v", v)
	}
}
