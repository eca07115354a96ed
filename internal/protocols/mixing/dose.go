package mixing

import (
	"context"
	"fmt"
	"time"

	"fluidctl/internal/device"
	"fluidctl/internal/host"
)

// doseVolumeTolerance mirrors station/channel.go's completeToleranceUl
// (expressed here in mL since doses are sized in mL).
const doseVolumeTolerance = 0.0001

// dose performs one channel's withdraw-then-infuse injection: switch the
// valve to the source port, withdraw the dose volume, switch to the
// target port, then infuse it while recording cumulative volume
// dispensed. Grounded on ProcessHandler.dose_pump's withdraw/infuse
// valve-switch sequence.
func (r *Recipe) dose(ctx context.Context, d DoseConfig) error {
	pump := r.cfg.Pump

	if err := pump.SetValve(ctx, d.Channel, d.WithdrawPort); err != nil {
		return fmt.Errorf("set withdraw valve: %w", err)
	}
	if err := r.runToVolume(ctx, d.Channel, device.Withdraw, d.WithdrawRateMlMin, d.VolumeMl, nil); err != nil {
		return fmt.Errorf("withdraw: %w", err)
	}

	if err := pump.SetValve(ctx, d.Channel, d.InfusePort); err != nil {
		return fmt.Errorf("set infuse valve: %w", err)
	}
	if err := r.runToVolume(ctx, d.Channel, device.Infuse, d.InfuseRateMlMin, d.VolumeMl, d.Recordable); err != nil {
		return fmt.Errorf("infuse: %w", err)
	}
	return nil
}

// runToVolume starts one channel moving at rateMlMin and polls plunger
// position until volumeMl has moved, then stops it, recording the
// running dispensed total against recordable (if non-nil) each poll.
// Grounded on station/channel.go's Tick: the engine differences plunger
// position itself rather than trusting the device to honor a finite
// command (the simulated pump only auto-stops at full plunger travel).
func (r *Recipe) runToVolume(ctx context.Context, channel int, dir device.Direction, rateMlMin, volumeMl float64, recordable *host.Recordable) error {
	pump := r.cfg.Pump
	cmds := pump.MakeStartCommands()
	cmds[channel] = device.StartCmd{
		Set:         true,
		Mode:        device.Finite,
		Direction:   dir,
		RateValue:   rateMlMin,
		RateUnits:   device.MlPerMin,
		FiniteValue: volumeMl,
		FiniteUnits: string(device.MlPerMin),
	}
	if err := pump.Start(ctx, cmds); err != nil {
		return err
	}

	startPos, err := pump.PlungerPositionVolumeUl(ctx)
	if err != nil {
		return err
	}
	startUl, _ := startPos[channel].Get()
	targetUl := volumeMl * 1000

	for {
		r.clk.Sleep(r.pollOrDefault())

		pos, err := pump.PlungerPositionVolumeUl(ctx)
		if err != nil {
			return err
		}
		cur, ok := pos[channel].Get()
		if !ok {
			continue
		}
		dispensedUl := startUl - cur
		if dir == device.Withdraw {
			dispensedUl = cur - startUl
		}
		if dispensedUl < 0 {
			dispensedUl = 0
		}
		if recordable != nil {
			recordable.Append(dispensedUl / 1000)
		}

		if dispensedUl+doseVolumeTolerance*1000 >= targetUl {
			stop := device.StopCmd{Mask: make([]bool, pump.Channels())}
			stop.Mask[channel] = true
			return pump.Stop(ctx, stop)
		}

		active, err := pump.GetActive(ctx)
		if err == nil && channel < len(active) && !active[channel] {
			// Plunger ran to its physical limit before reaching the
			// requested dose volume (syringe too small for the dose).
			return fmt.Errorf("channel %d ran out of travel at %.1f/%.1f uL", channel, dispensedUl, targetUl)
		}
	}
}

func (r *Recipe) pollOrDefault() time.Duration {
	if r.cfg.PollInterval > 0 {
		return r.cfg.PollInterval
	}
	return time.Second
}
