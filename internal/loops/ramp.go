// Package loops implements the control loops layered on top of PID and
// the alarm framework: pump ramps, the regime-switching monitor, pinch
// valve PID lock-in, volume-accumulation control, and pH dosing (spec
// §4.8).
package loops

import (
	"context"
	"time"

	"fluidctl/internal/clock"
	"fluidctl/internal/data"
	"fluidctl/internal/device"
)

// RampResult is the outcome of a ramp or lock-in loop.
type RampResult int

const (
	RampOk RampResult = iota
	RampTimedOut
	RampTargetMassHit
)

func (r RampResult) String() string {
	switch r {
	case RampOk:
		return "ok"
	case RampTimedOut:
		return "timed_out"
	case RampTargetMassHit:
		return "target_mass_hit"
	default:
		return "unknown"
	}
}

// MassWatch, if supplied to PumpRamp/DualPumpRamp, ends the ramp early
// once a trailing-cache field crosses TargetG (spec §8 scenario 1:
// "ramp returns TargetMassHit before number_rate_changes iterations").
type MassWatch struct {
	Cache   *data.TrailingCache
	Field   string
	TargetG float64
}

func (w *MassWatch) hit(direction float64) bool {
	if w == nil {
		return false
	}
	v, ok := w.Cache.TrailingMean(w.Field, 1).Get()
	if !ok {
		return false
	}
	if direction >= 0 {
		return v >= w.TargetG
	}
	return v <= w.TargetG
}

// RampParams configures one pump_ramp call: start/end rate, the
// increment rule (the larger of a flat RateStep or (end-start)*Pct),
// the inter-increment interval, and an overall timeout.
type RampParams struct {
	StartRateUlMin float64
	EndRateUlMin   float64
	RateStepUlMin  float64
	Pct            float64
	IntervalS      float64
	Timeout        time.Duration
}

func (p RampParams) step() float64 {
	pctStep := absf(p.EndRateUlMin-p.StartRateUlMin) * p.Pct
	flat := p.RateStepUlMin
	if pctStep > flat {
		return pctStep
	}
	return flat
}

func setPumpRate(ctx context.Context, pump device.Pump, channel int, rateUlMin float64) error {
	cmds := pump.MakeSpeedCommands()
	cmds[channel] = device.SpeedCmd{Set: true, RateValue: rateUlMin, RateUnits: device.UlPerMin}
	return pump.ChangeSpeed(ctx, cmds)
}

// PumpRamp starts the pump at params.StartRateUlMin, then every
// IntervalS increments toward EndRateUlMin by the larger of RateStepUlMin
// or (end-start)*Pct, calling monitor (if non-nil) between increments,
// until the end rate is reached, the timeout elapses, or watch reports
// its target mass hit.
func PumpRamp(ctx context.Context, clk clock.Clock, pump device.Pump, channel int, params RampParams, watch *MassWatch, monitor func()) (RampResult, error) {
	direction := 1.0
	if params.EndRateUlMin < params.StartRateUlMin {
		direction = -1.0
	}
	step := params.step()
	if step <= 0 {
		step = absf(params.EndRateUlMin - params.StartRateUlMin)
	}

	rate := params.StartRateUlMin
	if err := setPumpRate(ctx, pump, channel, rate); err != nil {
		return RampOk, err
	}
	deadline := clk.Now().Add(params.Timeout)

	for {
		if watch.hit(direction) {
			return RampTargetMassHit, nil
		}
		if rate == params.EndRateUlMin {
			return RampOk, nil
		}
		if !clk.Now().Before(deadline) {
			return RampTimedOut, nil
		}

		rate += direction * step
		if (direction > 0 && rate > params.EndRateUlMin) || (direction < 0 && rate < params.EndRateUlMin) {
			rate = params.EndRateUlMin
		}
		if err := setPumpRate(ctx, pump, channel, rate); err != nil {
			return RampOk, err
		}
		if monitor != nil {
			monitor()
		}
		clk.Sleep(time.Duration(params.IntervalS * float64(time.Second)))
	}
}

// DualPumpRamp ramps two pump channels along parallel equal-length plans
// (N rate changes each), sharing the same monitoring and mass-watch
// cadence (spec §4.8 "dual_pump_ramp").
func DualPumpRamp(ctx context.Context, clk clock.Clock, pumpA device.Pump, channelA int, paramsA RampParams, pumpB device.Pump, channelB int, paramsB RampParams, watch *MassWatch, monitor func()) (RampResult, error) {
	stepA := paramsA.step()
	if stepA <= 0 {
		stepA = absf(paramsA.EndRateUlMin - paramsA.StartRateUlMin)
	}
	stepB := paramsB.step()
	if stepB <= 0 {
		stepB = absf(paramsB.EndRateUlMin - paramsB.StartRateUlMin)
	}
	dirA := 1.0
	if paramsA.EndRateUlMin < paramsA.StartRateUlMin {
		dirA = -1.0
	}
	dirB := 1.0
	if paramsB.EndRateUlMin < paramsB.StartRateUlMin {
		dirB = -1.0
	}

	rateA, rateB := paramsA.StartRateUlMin, paramsB.StartRateUlMin
	if err := setPumpRate(ctx, pumpA, channelA, rateA); err != nil {
		return RampOk, err
	}
	if err := setPumpRate(ctx, pumpB, channelB, rateB); err != nil {
		return RampOk, err
	}
	deadline := clk.Now().Add(paramsA.Timeout)

	for {
		if watch.hit(1) {
			return RampTargetMassHit, nil
		}
		doneA := rateA == paramsA.EndRateUlMin
		doneB := rateB == paramsB.EndRateUlMin
		if doneA && doneB {
			return RampOk, nil
		}
		if !clk.Now().Before(deadline) {
			return RampTimedOut, nil
		}

		if !doneA {
			rateA += dirA * stepA
			if (dirA > 0 && rateA > paramsA.EndRateUlMin) || (dirA < 0 && rateA < paramsA.EndRateUlMin) {
				rateA = paramsA.EndRateUlMin
			}
			if err := setPumpRate(ctx, pumpA, channelA, rateA); err != nil {
				return RampOk, err
			}
		}
		if !doneB {
			rateB += dirB * stepB
			if (dirB > 0 && rateB > paramsB.EndRateUlMin) || (dirB < 0 && rateB < paramsB.EndRateUlMin) {
				rateB = paramsB.EndRateUlMin
			}
			if err := setPumpRate(ctx, pumpB, channelB, rateB); err != nil {
				return RampOk, err
			}
		}
		if monitor != nil {
			monitor()
		}
		clk.Sleep(time.Duration(paramsA.IntervalS * float64(time.Second)))
	}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
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

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
