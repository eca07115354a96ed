package loops

import (
	"context"

	"fluidctl/internal/data"
	"fluidctl/internal/device"
)

// MonitorConfig bundles the pinch-valve/feed-pump handles and pressure
// field names the Monitor loop adjusts against (spec §4.8 "monitor" —
// the regime-switching corrective controller that runs alongside a
// ramp or lock-in, distinct from the alarm watchdog).
type MonitorConfig struct {
	Valve        device.Valve
	ValveChannel int
	FeedPump     device.Pump
	FeedChannel  int

	Cache    *data.TrailingCache
	P1Field  string
	P3Field  string

	PvAdjustEnabled bool
	// P23WatchActive is true only while a pump2/3 ramp is in flight; it
	// gates the extra low-pressure regime that only applies during that
	// window (spec §4.8).
	P23WatchActive bool
}

func (m MonitorConfig) readings() (p1, p3 float64, ok1, ok3 bool) {
	p1, ok1 = m.Cache.TrailingMean(m.P1Field, 1).Get()
	p3, ok3 = m.Cache.TrailingMean(m.P3Field, 1).Get()
	return
}

// errorSizedStep picks a pinch-valve step size from the magnitude of
// the pressure error, finer steps as the error narrows so the valve
// doesn't overshoot on approach.
func errorSizedStep(errAbs float64) float64 {
	switch {
	case errAbs >= 2:
		return 0.02
	case errAbs >= 1:
		return 0.001
	case errAbs >= 0.5:
		return 0.0005
	default:
		return 0.0002
	}
}

func (m MonitorConfig) adjustValve(ctx context.Context, delta float64) error {
	cur, err := m.Valve.PctOpen(ctx)
	if err != nil {
		return err
	}
	pct, ok := cur[m.ValveChannel].Get()
	if !ok {
		pct = 0
	}
	pct = clampf(pct+delta, 0, 1)
	cmds := m.Valve.MakeCommands()
	cmds[m.ValveChannel] = device.PositionCmd{Set: true, PctOpen: pct}
	return m.Valve.SetPosition(ctx, cmds)
}

func (m MonitorConfig) decreaseFeedPumpRate(ctx context.Context, step, floor float64) error {
	rates, err := m.FeedPump.GetRate(ctx)
	if err != nil {
		return err
	}
	rate, ok := rates[m.FeedChannel].Get()
	if !ok {
		return nil
	}
	rate -= step
	if rate < floor {
		rate = floor
	}
	cmds := m.FeedPump.MakeSpeedCommands()
	cmds[m.FeedChannel] = device.SpeedCmd{Set: true, RateValue: rate, RateUnits: device.MlPerMin}
	return m.FeedPump.ChangeSpeed(ctx, cmds)
}

// RunOnce evaluates the four mutually-exclusive corrective regimes
// against the latest P1/P3 readings and applies at most one adjustment
// (spec §4.8): the P2/P3-ramp low-pressure watch, then Conditions 1-3 in
// order, first match wins.
func (m MonitorConfig) RunOnce(ctx context.Context) error {
	if !m.PvAdjustEnabled {
		return nil
	}
	p1, p3, ok1, ok3 := m.readings()
	if !ok1 || !ok3 {
		return nil
	}

	switch {
	case m.P23WatchActive && p3 < 0 && p1 < 15:
		return m.adjustValve(ctx, -0.005)
	case p3 < 2 && p1 < 30:
		return m.adjustValve(ctx, -errorSizedStep(2-p3))
	case p3 > 0 && p1 > 30:
		return m.adjustValve(ctx, 0.0005)
	case p3 < 0 && p1 > 30:
		return m.decreaseFeedPumpRate(ctx, 0.1, 0.1)
	}
	return nil
}
