// Package mixing is a concrete protocol script composing the engine's
// core primitives: an overhead mixer ramps to a temperature setpoint,
// holds, then ramps back down, while each configured syringe channel
// performs a timed withdraw-then-infuse dose once the setpoint is first
// reached. Grounded on original_source/local/recipes/mixing/
// mixing_with_injections.py's ProcessHandler.do_process, generalized
// from that recipe's fixed three-pump layout to a configurable dose
// list and from its direct time.sleep loop to the engine's injected
// Clock.
package mixing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fluidctl/internal/clock"
	"fluidctl/internal/device"
	"fluidctl/internal/host"
)

// DoseConfig describes one channel's withdraw-then-infuse injection,
// triggered DelayAfterSetpoint after the mixer first reaches its
// temperature setpoint (spec: pump{i}_dose_delay_s).
type DoseConfig struct {
	Channel            int
	WithdrawPort       int
	InfusePort         int
	VolumeMl           float64
	WithdrawRateMlMin  float64
	InfuseRateMlMin    float64
	DelayAfterSetpoint time.Duration
	Recordable         *host.Recordable // tracks cumulative mL infused, may be nil
}

// Config is one run's full recipe: the mixer's temperature program and
// the pump doses it gates.
type Config struct {
	Mixer device.Mixer
	Pump  device.SyringePump

	TemperatureSetpointC float64
	HoldDuration         time.Duration
	RampDownTargetC      float64
	MixerRPM             float64

	Doses []DoseConfig

	// PollInterval is how often the recipe loop samples temperature and
	// checks dose delays; the original recipe used a fixed 1s heartbeat.
	PollInterval time.Duration
}

// Recipe runs Config's temperature program and dose schedule to
// completion. Safe for single use; build a new Recipe per run.
type Recipe struct {
	cfg Config
	clk clock.Clock
	log *logrus.Logger

	mu       sync.Mutex
	dosed    []bool
	doseOnce []sync.Once
}

// New builds a Recipe bound to the given clock and logger.
func New(cfg Config, clk clock.Clock, log *logrus.Logger) *Recipe {
	return &Recipe{
		cfg:      cfg,
		clk:      clk,
		log:      log,
		dosed:    make([]bool, len(cfg.Doses)),
		doseOnce: make([]sync.Once, len(cfg.Doses)),
	}
}

// Run drives the mixer through ramp-up, hold, and ramp-down, firing each
// configured dose once after the setpoint is first reached, and returns
// once the ramp-down completes or ctx is cancelled. terminate, if
// non-nil, ends the run early when set true (mirrors the recipe's own
// terminate Setpoint).
func (r *Recipe) Run(ctx context.Context, terminate *host.Setpoint[any]) error {
	if err := r.cfg.Mixer.Start(ctx, r.cfg.MixerRPM); err != nil {
		return fmt.Errorf("mixing: start mixer: %w", err)
	}
	if err := r.cfg.Mixer.SetTemperatureTarget(ctx, r.cfg.TemperatureSetpointC); err != nil {
		return fmt.Errorf("mixing: set temperature target: %w", err)
	}

	poll := r.cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}

	var setpointReachedAt time.Time
	setpointReached := false
	rampdownStarted := false

	var doseWG sync.WaitGroup
	defer doseWG.Wait()

	for {
		select {
		case <-ctx.Done():
			_ = r.cfg.Mixer.Stop(ctx)
			return ctx.Err()
		default:
		}
		if terminate != nil {
			if v, ok := terminate.Get().(bool); ok && v {
				r.log.Info("mixing recipe terminated early")
				_ = r.cfg.Mixer.Stop(ctx)
				return nil
			}
		}

		temp, err := r.cfg.Mixer.Temperature(ctx)
		if err != nil {
			r.log.WithError(err).Warn("mixing: temperature read failed")
		} else if v, ok := temp.Get(); ok {
			if !setpointReached && v >= r.cfg.TemperatureSetpointC {
				r.log.WithField("temperature_c", v).Info("mixing: setpoint reached")
				setpointReached = true
				setpointReachedAt = r.clk.Now()
			}
			if setpointReached && !rampdownStarted && r.clk.Now().Sub(setpointReachedAt) >= r.cfg.HoldDuration {
				r.log.Info("mixing: hold complete, ramping down")
				rampdownStarted = true
				if err := r.cfg.Mixer.SetTemperatureTarget(ctx, r.cfg.RampDownTargetC); err != nil {
					r.log.WithError(err).Warn("mixing: set rampdown target failed")
				}
			}
			if rampdownStarted && v <= r.cfg.RampDownTargetC {
				r.log.Info("mixing: rampdown complete, recipe finished")
				if err := r.cfg.Mixer.Stop(ctx); err != nil {
					return fmt.Errorf("mixing: stop mixer: %w", err)
				}
				return nil
			}
		}

		if setpointReached {
			elapsed := r.clk.Now().Sub(setpointReachedAt)
			for i, d := range r.cfg.Doses {
				i, d := i, d
				if elapsed < d.DelayAfterSetpoint {
					continue
				}
				r.mu.Lock()
				already := r.dosed[i]
				r.dosed[i] = true
				r.mu.Unlock()
				if already {
					continue
				}
				doseWG.Add(1)
				go func() {
					defer doseWG.Done()
					if err := r.dose(ctx, d); err != nil {
						r.log.WithError(err).WithField("channel", d.Channel).Error("mixing: dose failed")
					}
				}()
			}
		}

		r.clk.Sleep(poll)
	}
}
