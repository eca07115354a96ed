package loops

import (
	"context"
	"time"

	"fluidctl/internal/clock"
	"fluidctl/internal/control"
	"fluidctl/internal/data"
	"fluidctl/internal/device"
)

// valveStepMax is the per-cycle pinch-valve position delta clamp named
// in spec §4.8: the PID output is clamped to ±0.001 before being applied
// to the current position, regardless of tunings.
const valveStepMax = 0.001

// valveDelay is the cadence between lock-in adjustments ("valve_delay").
const valveDelay = 200 * time.Millisecond

// inBandStreakToExit is the number of consecutive in-window samples that
// end the loop early with RampOk (spec §8 scenario: "PID lock-in to
// within 0.5 psi of target, exits early after 10 consecutive in-band
// readings").
const inBandStreakToExit = 10

// PinchValveLockIn runs a PID loop (setpoint = targetP3Psi, measurement
// = P3) against the pinch valve, applying new_pv = pv - clamp(output,
// -valveStepMax, valveStepMax) every valveDelay, until windowPsi of the
// target is held for inBandStreakToExit consecutive samples or timeout
// elapses (spec §4.8 "pinch_valve_lock_in_pid").
func PinchValveLockIn(ctx context.Context, clk clock.Clock, pid *control.PID, valve device.Valve, valveChannel int, cache *data.TrailingCache, p3Field string, windowPsi float64, timeout time.Duration) (RampResult, error) {
	deadline := clk.Now().Add(timeout)
	streak := 0

	for {
		if !clk.Now().Before(deadline) {
			return RampTimedOut, nil
		}

		p3, ok := cache.TrailingMean(p3Field, 1).Get()
		if !ok {
			clk.Sleep(valveDelay)
			continue
		}

		if absf(p3-pid.Setpoint()) <= windowPsi {
			streak++
			if streak >= inBandStreakToExit {
				return RampOk, nil
			}
		} else {
			streak = 0
		}

		output := pid.Update(p3)
		delta := clampf(output, -valveStepMax, valveStepMax)

		cur, err := valve.PctOpen(ctx)
		if err != nil {
			return RampOk, err
		}
		pv, _ := cur[valveChannel].Get()
		newPv := clampf(pv-delta, 0, 1)

		cmds := valve.MakeCommands()
		cmds[valveChannel] = device.PositionCmd{Set: true, PctOpen: newPv}
		if err := valve.SetPosition(ctx, cmds); err != nil {
			return RampOk, err
		}

		clk.Sleep(valveDelay)
	}
}
