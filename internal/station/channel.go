package station

import (
	"context"
	"sync"
	"time"

	"fluidctl/internal/clock"
	"fluidctl/internal/device"
	"fluidctl/internal/host"
)

// PlanStep is one (rate, duration) pair in a channel's infusion plan.
type PlanStep struct {
	RateUlMin float64
	Minutes   float64
}

func (s PlanStep) volumeUl() float64 { return s.RateUlMin * s.Minutes }

// completeToleranceUl is the "within 0.1 µL" completion tolerance named
// in spec §4.6.
const completeToleranceUl = 0.1

// Channel tracks one syringe input's dispense progress against its plan
// (spec §4.6's co-dispense example): a plan-vector of rate/duration
// steps, a step index, the running dispensed total, and a wait gate for
// zero-rate steps.
type Channel struct {
	Pump         device.SyringePump
	Index        int
	MinRateUlMin float64
	Recordable   *host.Recordable

	mu             sync.Mutex
	plan           []PlanStep
	stepIndex      int
	dispensedUl    float64
	lastPositionUl float64
	primed         bool
	waiting        bool
	waitUntil      time.Time
	complete       bool
}

// NewChannel builds a channel bound to a syringe pump index with the
// given plan.
func NewChannel(pump device.SyringePump, index int, minRateUlMin float64, plan []PlanStep, recordable *host.Recordable) *Channel {
	return &Channel{Pump: pump, Index: index, MinRateUlMin: minRateUlMin, plan: plan, Recordable: recordable}
}

// Complete reports whether the channel's plan has fully dispensed.
func (c *Channel) Complete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.complete
}

// DispensedUl returns the running dispensed total.
func (c *Channel) DispensedUl() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dispensedUl
}

func (c *Channel) totalPlanVolumeUl() float64 {
	total := 0.0
	for _, s := range c.plan {
		total += s.volumeUl()
	}
	return total
}

func (c *Channel) cumulativeTargetUl(uptoStep int) float64 {
	total := 0.0
	for i := 0; i <= uptoStep && i < len(c.plan); i++ {
		total += c.plan[i].volumeUl()
	}
	return total
}

// PlungerModeForRate implements the resolution-selection rule: N2 for
// fine control when the planned rate is at or below 8x the channel's
// minimum rate, N0 otherwise (spec §4.6 "Withdraw sizing").
func (c *Channel) PlungerModeForRate(rateUlMin float64) device.PlungerMode {
	if rateUlMin <= 8*c.MinRateUlMin {
		return device.N2
	}
	return device.N0
}

// WithdrawVolumeUl computes to_withdraw = min(remaining_to_dispense +
// firstInfusionPrimeUl, syringeCapacityUl).
func WithdrawVolumeUl(remainingToDispenseUl, firstInfusionPrimeUl, syringeCapacityUl float64) float64 {
	want := remainingToDispenseUl + firstInfusionPrimeUl
	if want > syringeCapacityUl {
		return syringeCapacityUl
	}
	return want
}

func (c *Channel) startInfuseLocked(ctx context.Context, rateUlMin float64) error {
	_ = c.Pump.SetPlungerMode(ctx, c.Index, c.PlungerModeForRate(rateUlMin))
	cmds := c.Pump.MakeStartCommands()
	cmds[c.Index] = device.StartCmd{Set: true, RateValue: rateUlMin, RateUnits: device.UlPerMin, Direction: device.Infuse}
	return c.Pump.Start(ctx, cmds)
}

func (c *Channel) stopLocked(ctx context.Context) error {
	cmd := device.StopCmd{Mask: make([]bool, c.Pump.Channels())}
	cmd.Mask[c.Index] = true
	return c.Pump.Stop(ctx, cmd)
}

// Start begins infusion at the first plan step's rate. Call once before
// the first Tick.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.plan) == 0 {
		c.complete = true
		return nil
	}
	positions, err := c.Pump.PlungerPositionVolumeUl(ctx)
	if err != nil {
		return err
	}
	if v, ok := positions[c.Index].Get(); ok {
		c.lastPositionUl = v
	}
	c.primed = true
	return c.startInfuseLocked(ctx, c.plan[0].RateUlMin)
}

// Tick advances the channel's progress by one engine tick: differences
// the plunger position since the last tick, appends to the recordable,
// and handles step transitions (stop/advance/wait/restart) and overall
// completion (spec §4.6).
func (c *Channel) Tick(ctx context.Context, clk clock.Clock) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.complete {
		return nil
	}
	if !c.primed {
		return nil
	}

	if c.waiting {
		if clk.Now().Before(c.waitUntil) {
			return nil
		}
		c.waiting = false
		c.stepIndex++
		return c.advanceToStepLocked(ctx, clk)
	}

	positions, err := c.Pump.PlungerPositionVolumeUl(ctx)
	if err != nil {
		return err
	}
	cur, ok := positions[c.Index].Get()
	if !ok {
		return nil
	}
	delta := c.lastPositionUl - cur // infuse drains the plunger
	if delta > 0 {
		c.dispensedUl += delta
	}
	c.lastPositionUl = cur
	if c.Recordable != nil {
		c.Recordable.Append(c.dispensedUl)
	}

	target := c.cumulativeTargetUl(c.stepIndex)
	if c.dispensedUl+1e-9 >= target && c.stepIndex+1 < len(c.plan) {
		if err := c.stopLocked(ctx); err != nil {
			return err
		}
		c.stepIndex++
		if err := c.advanceToStepLocked(ctx, clk); err != nil {
			return err
		}
	}

	total := c.totalPlanVolumeUl()
	if total-c.dispensedUl <= completeToleranceUl {
		c.complete = true
		return c.stopLocked(ctx)
	}
	return nil
}

// advanceToStepLocked starts the step at c.stepIndex, entering a timed
// wait instead if that step's rate is zero for a positive duration.
func (c *Channel) advanceToStepLocked(ctx context.Context, clk clock.Clock) error {
	if c.stepIndex >= len(c.plan) {
		return nil
	}
	step := c.plan[c.stepIndex]
	if step.RateUlMin == 0 && step.Minutes > 0 {
		c.waiting = true
		c.waitUntil = clk.Now().Add(time.Duration(step.Minutes * float64(time.Minute)))
		return nil
	}
	return c.startInfuseLocked(ctx, step.RateUlMin)
}
