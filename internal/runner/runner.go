// Package runner implements the process runner main loop: it ticks every
// station forward on the control task's cadence, and on a second cadence
// runs the data task — pulling every bound sensor/pump/valve into a
// Snapshot, caching it, updating recordables, and invoking the alarm
// watchdog (spec §4.3, §4.7, §5's two-task model). Grounded on the
// teacher's core.Worker: two background goroutines launched from Start,
// coordinated by a stop channel and a sync.WaitGroup, with an atomic
// guard so Stop is safe to call more than once.
package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"fluidctl/internal/alarm"
	"fluidctl/internal/clock"
	"fluidctl/internal/device"
	"fluidctl/internal/host"
	"fluidctl/internal/station"
	"fluidctl/internal/telemetry"
)

// Runner owns the set of stations, the data-acquisition/alarm cycle, and
// ticks both forward on independent cadences.
type Runner struct {
	clk           clock.Clock
	log           *logrus.Logger
	stations      []*station.Station
	watchdog      *alarm.Watchdog
	alarmCtx      *alarm.Context
	dataCfg       *DataTaskConfig
	tickInterval  time.Duration
	alarmInterval time.Duration
	terminate     *host.Setpoint[any]

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  uint32
}

// New builds a Runner. terminate, if non-nil, is polled once per tick;
// when its value is truthy the runner stops itself. dataCfg may be nil,
// in which case the data task degenerates to alarm checks only (no
// sensors/pumps/valves are bound to pull a snapshot from).
func New(clk clock.Clock, log *logrus.Logger, stations []*station.Station, watchdog *alarm.Watchdog, alarmCtx *alarm.Context, dataCfg *DataTaskConfig, tickInterval, alarmInterval time.Duration, terminate *host.Setpoint[any]) *Runner {
	return &Runner{
		clk:           clk,
		log:           log,
		stations:      stations,
		watchdog:      watchdog,
		alarmCtx:      alarmCtx,
		dataCfg:       dataCfg,
		tickInterval:  tickInterval,
		alarmInterval: alarmInterval,
		terminate:     terminate,
		stopChan:      make(chan struct{}),
	}
}

// Start launches the station-tick (control) and data/alarm loops.
func (r *Runner) Start() {
	r.log.Info("process runner starting")
	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		r.tickLoop()
	}()
	go func() {
		defer r.wg.Done()
		r.monitorLoop()
	}()
}

// Stop signals both loops to exit and waits for them to finish. Safe to
// call more than once or from multiple goroutines.
func (r *Runner) Stop() {
	if !atomic.CompareAndSwapUint32(&r.stopped, 0, 1) {
		return
	}
	r.log.Info("process runner stopping")
	close(r.stopChan)
	r.wg.Wait()
}

func (r *Runner) tickLoop() {
	ticker := r.clk.NewTicker(r.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C():
			r.runTick()
			if r.terminate != nil {
				if v, ok := r.terminate.Get().(bool); ok && v {
					r.log.Info("terminate setpoint set, stopping runner")
					go r.Stop() // avoid deadlocking on our own wg.Wait
					return
				}
			}
		case <-r.stopChan:
			return
		}
	}
}

func (r *Runner) runTick() {
	start := r.clk.Now()
	ctx := context.Background()

	phaseCounts := make(map[string]int, 3)
	for _, s := range r.stations {
		if s.Enabled != nil {
			if v, ok := s.Enabled.Get().(bool); ok && !v {
				continue
			}
		}

		if err := s.Tick(ctx, r.clk); err != nil {
			r.handleDeviceError(s, err)
			continue
		}

		idle, err := s.IsIdle(ctx)
		if err != nil {
			r.handleDeviceError(s, err)
			continue
		}
		if idle && s.PhaseStatus() != station.Complete {
			if err := s.Advance(ctx); err != nil {
				r.handleDeviceError(s, err)
			}
		}
		phaseCounts[s.PhaseStatus().String()]++
	}

	if telemetry.Enabled() {
		telemetry.SetStationsByPhase(phaseCounts)
		telemetry.ObserveTick(r.clk.Now().Sub(start))
	}
}

// handleDeviceError disables the offending station (so the runner
// stops retrying it every tick) and logs the bus error, per spec §7's
// device-error-disables-station policy.
func (r *Runner) handleDeviceError(s *station.Station, err error) {
	kind := "unknown"
	name := "unknown"
	if busErr, ok := err.(*device.BusError); ok {
		kind = busErr.Kind.String()
		name = busErr.Device
	}
	if telemetry.Enabled() {
		telemetry.ObserveDeviceError(name, kind)
	}
	r.log.WithFields(logrus.Fields{"station": s.Index, "err": err}).Error("device error, disabling station")
	if s.Enabled != nil {
		s.Enabled.Set(false)
	}
}

// monitorLoop is the data task of spec §5: every alarmInterval tick, it
// pulls a fresh snapshot (if sensors/pumps/valves are bound), pushes it to
// the cache, updates recordables, and then runs the alarm watchdog against
// the just-refreshed cache — the data pull and the alarm check share one
// cadence because an alarm can only see what the cache already holds.
func (r *Runner) monitorLoop() {
	ticker := r.clk.NewTicker(r.alarmInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C():
			if r.dataCfg != nil {
				snap := r.dataTask(context.Background())
				if r.alarmCtx != nil && r.alarmCtx.Cache != nil {
					r.alarmCtx.Cache.Push(snap)
				}
				r.updateRecordables(snap)
			}
			if r.alarmCtx != nil && r.watchdog != nil {
				before := activeAlarms(r.watchdog)
				r.watchdog.CheckAll(r.alarmCtx)
				if telemetry.Enabled() {
					for _, a := range r.watchdog.Alarms() {
						if a.Active() && !before[a.Name()] {
							telemetry.ObserveAlarmTrip(a.Name())
						}
					}
				}
			}
		case <-r.stopChan:
			return
		}
	}
}

func activeAlarms(w *alarm.Watchdog) map[string]bool {
	out := make(map[string]bool)
	for _, a := range w.Alarms() {
		out[a.Name()] = a.Active()
	}
	return out
}
