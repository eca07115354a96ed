// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main is the entry point for the fluidctl lab runner: it wires
// a station topology (from an optional YAML config, or a small built-in
// demo topology) to a set of simulated devices, starts the tick/data
// loops, and serves Prometheus metrics until an OS signal arrives.
//
// Every top-level protocol in this domain connects to a host runtime
// using the same four launch parameters: user id, ip address, port, and
// an init flag distinguishing a fresh lab-mode bring-up from a regular
// run. This binary parses them with flag, the same way the teacher's
// rate limiter demo turns its batching knobs into flags.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"fluidctl/internal/alarm"
	"fluidctl/internal/clock"
	fconfig "fluidctl/internal/config"
	"fluidctl/internal/control"
	"fluidctl/internal/csvimport"
	"fluidctl/internal/data"
	"fluidctl/internal/device"
	"fluidctl/internal/device/simdevice"
	"fluidctl/internal/host"
	"fluidctl/internal/host/devhost"
	"fluidctl/internal/loops"
	"fluidctl/internal/persist"
	"fluidctl/internal/protocols/mixing"
	"fluidctl/internal/runner"
	"fluidctl/internal/station"
	"fluidctl/internal/telemetry"
)

func main() {
	// --- Launch parameters ---
	// Every protocol in this domain connects to a host runtime with the
	// same four values; ip_address/port are where that runtime (or, in
	// lab mode, nothing at all — the in-process devhost stands in for
	// it) is reachable, user_id identifies the operator session, and
	// init marks a fresh lab bring-up so the host starts in lab mode.
	userID := flag.String("user_id", "operator", "Operator/session identifier")
	ipAddress := flag.String("ip_address", "127.0.0.1", "Host runtime address")
	port := flag.Uint("port", 9000, "Host runtime port")
	initFlag := flag.Bool("init", false, "Run in lab-mode bring-up (vs. a regular run)")

	configPath := flag.String("config", "", "Path to a YAML station/protocol topology config")
	metricsAddr := flag.String("metrics_addr", "", "If non-empty, expose Prometheus /metrics on this address (e.g., :9090), overriding the config file")
	tickIntervalMs := flag.Int("tick_interval_ms", 0, "Engine tick interval override in milliseconds (0 = use config/default)")
	recipeName := flag.String("recipe", "", "Run a standalone composite recipe instead of the station topology (currently: \"mixing\")")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *tickIntervalMs > 0 {
		cfg.TickIntervalMs = *tickIntervalMs
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	logger.WithFields(logrus.Fields{
		"user_id":    *userID,
		"ip_address": *ipAddress,
		"port":       *port,
		"init":       *initFlag,
	}).Info("fluidctl runner starting")

	if cfg.MetricsAddr != "" {
		telemetry.Enable(cfg.MetricsAddr)
		fmt.Printf("Prometheus metrics listening on %s\n", cfg.MetricsAddr)
	}

	archiver, err := persist.Build(cfg.Persist.Backend, persist.Options{
		RedisAddr:      cfg.Persist.RedisAddr,
		RedisMarkerTTL: parseDurationOrZero(cfg.Persist.RedisMarkerTTL),
	})
	if err != nil {
		logger.Fatalf("build archiver: %v", err)
	}

	devHost := devhost.New(logger, archiver, *initFlag)
	terminate := devHost.Setpoint("terminate", false, host.DTypeBool)

	clk := clock.Real{}

	// A composite recipe runs to completion on its own and never touches
	// the station topology/runner below (spec §10's mixing-with-injections
	// composite phase).
	if *recipeName == "mixing" {
		runMixingRecipe(clk, logger, devHost, terminate)
		return
	}

	pumps, stations, err := buildTopology(cfg, devHost, clk)
	if err != nil {
		logger.Fatalf("build topology: %v", err)
	}

	sensors := buildDemoSensors(clk)
	valve := simdevice.NewValve("PV1", 1)

	bufferPump := simdevice.NewSyringePump("P2", 1, 5000, 1, 10000, clk)
	startCmds := bufferPump.MakeStartCommands()
	startCmds[0] = device.StartCmd{Set: true, Mode: device.Continuous, Direction: device.Infuse, RateValue: 10, RateUnits: device.MlPerMin}
	if err := bufferPump.Start(context.Background(), startCmds); err != nil {
		logger.WithError(err).Warn("buffer pump P2 pre-start failed")
	}
	pumps["P2"] = bufferPump

	dosePump := simdevice.NewSyringePump("P4", 1, 2000, 1, 5000, clk)
	pumps["P4"] = dosePump

	cache := data.NewTrailingCache(600, time.Second)

	volCtrl := loops.NewVolumeAccumulationController(loops.ModeStabilize, 0, 0)

	watchdog := alarm.NewWatchdog(
		alarm.NewOverPressureAlarm(),
		alarm.NewLowPressureAlarm(nil),
		alarm.NewVacuumConditionAlarm(),
		alarm.NewBufferVesselEmptyAlarm(),
		alarm.NewRetentateVesselLowAlarm(),
		alarm.NewVolumeAccumulationAlarm(adjustVolumeAccumulation(volCtrl, "P2")),
	)

	monitorCfg := loops.MonitorConfig{
		Valve:           valve,
		ValveChannel:    0,
		FeedPump:        pumps["P1"],
		FeedChannel:     0,
		Cache:           cache,
		P1Field:         "P1",
		P3Field:         "P3",
		PvAdjustEnabled: true,
	}

	alarmCtx := &alarm.Context{
		Ctx:    context.Background(),
		Cache:  cache,
		Pumps:  pumps,
		Host:   devHost,
		Config: cfg.Alarms,
		Ramp:   rampFunc(clk, pumps, logger, monitorCfg),
	}

	dataCfg := &runner.DataTaskConfig{
		Sensors: []runner.SensorBinding{
			{Sensor: sensors.p1, Kind: device.Pressure, Fields: []string{"P1"}},
			{Sensor: sensors.p2, Kind: device.Pressure, Fields: []string{"P2"}},
			{Sensor: sensors.p3, Kind: device.Pressure, Fields: []string{"P3"}},
			{Sensor: sensors.w1, Kind: device.Balance, Fields: []string{"W1"}},
			{Sensor: sensors.w2, Kind: device.Balance, Fields: []string{"W2"}},
			{Sensor: sensors.ph1, Kind: device.PH, Fields: []string{"PH1"}},
		},
		Pumps: []runner.PumpRateBinding{
			{Pump: pumps["P2"], Fields: []string{"R2"}},
		},
		Valves: []runner.ValveBinding{
			{Valve: valve, Fields: []string{"PV"}},
		},
		Recordables: map[string]*host.Recordable{
			"W1": devHost.Recordable("feed_vessel_mass_g", 0.0, host.DTypeFloat),
			"W2": devHost.Recordable("buffer_vessel_mass_g", 0.0, host.DTypeFloat),
		},
		Retries:      5,
		PauseOnError: false,
		Prompt:       devHost.Setpoint("data_task_blocked", false, host.DTypeBool),
	}

	stations = append(stations, buildProcessControlStation(2, devHost, clk, cache, valve, dosePump, cfg))

	tickInterval := time.Duration(cfg.TickIntervalMs) * time.Millisecond
	alarmInterval := time.Duration(cfg.AlarmIntervalMs) * time.Millisecond

	r := runner.New(clk, logger, stations, watchdog, alarmCtx, dataCfg, tickInterval, alarmInterval, terminate)
	r.Start()

	exporter := telemetry.NewExporter(clk, logger, 30*time.Second, func() logrus.Fields {
		fields := logrus.Fields{"stations": len(stations)}
		for i, st := range stations {
			fields[fmt.Sprintf("station_%d_phase", i)] = string(st.Phase())
		}
		return fields
	})
	exporter.Start()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	fmt.Println("\nShutting down runner...")
	exporter.Stop()
	r.Stop()
	fmt.Println("Runner stopped.")
}

// runMixingRecipe builds a standalone mixer/syringe pair and runs the
// mixing-with-injections composite recipe (spec §10) to completion or
// until terminate is set, then returns; it does not touch the station
// topology at all.
func runMixingRecipe(clk clock.Clock, logger *logrus.Logger, devHost *devhost.DevHost, terminate *host.Setpoint[any]) {
	mixer := simdevice.NewMixer("mix1", 20, clk)
	pump := simdevice.NewSyringePump("syr1", 1, 2000, 1, 10000, clk)
	dose0 := devHost.Recordable("recipe_dose0_ml", 0.0, host.DTypeFloat)

	cfg := mixing.Config{
		Mixer:                mixer,
		Pump:                 pump,
		TemperatureSetpointC: 35,
		HoldDuration:         10 * time.Minute,
		RampDownTargetC:      22,
		MixerRPM:             300,
		Doses: []mixing.DoseConfig{
			{Channel: 0, WithdrawPort: 1, InfusePort: 2, VolumeMl: 0.5, WithdrawRateMlMin: 1, InfuseRateMlMin: 1, Recordable: dose0},
		},
		PollInterval: time.Second,
	}

	recipe := mixing.New(cfg, clk, logger)
	if err := recipe.Run(context.Background(), terminate); err != nil {
		logger.WithError(err).Error("mixing recipe failed")
		return
	}
	logger.Info("mixing recipe complete")
}

// demoSensors bundles the simulated sensors the built-in demo topology
// feeds to the runner's data task: three pressure transducers, two
// balances (feed/buffer vessels), and a pH probe (spec §4.1, §4.3).
type demoSensors struct {
	p1, p2, p3 *simdevice.Sensor
	w1, w2     *simdevice.Sensor
	ph1        *simdevice.Sensor
}

func buildDemoSensors(clk clock.Clock) demoSensors {
	p1 := simdevice.NewSensor("P1", 1, clk)
	p1.SetSimValues([]float64{12})
	p2 := simdevice.NewSensor("P2", 1, clk)
	p2.SetSimValues([]float64{10})
	p3 := simdevice.NewSensor("P3", 1, clk)
	p3.SetSimValues([]float64{3})

	w1 := simdevice.NewSensor("W1", 1, clk)
	w1.SetSimValues([]float64{50})
	w1.SetSimRatesOfChange([]float64{-0.2})
	w2 := simdevice.NewSensor("W2", 1, clk)
	w2.SetSimValues([]float64{20})
	w2.SetSimRatesOfChange([]float64{0.3})

	ph1 := simdevice.NewSensor("PH1", 1, clk)
	ph1.SetSimValues([]float64{6.8})

	return demoSensors{p1: p1, p2: p2, p3: p3, w1: w1, w2: w2, ph1: ph1}
}

// adjustVolumeAccumulation adapts VolumeAccumulationController.Update to
// the alarm package's per-tick adjust callback (spec §4.8's two-mode
// buffer-pump rate control, wired to run continuously through the
// VolumeAccumulationAlarm table entry).
func adjustVolumeAccumulation(ctrl *loops.VolumeAccumulationController, bufferPumpName string) func(ctx *alarm.Context) {
	return func(ctx *alarm.Context) {
		rates := ctx.Cache.TrailingRates()
		w1Rate, ok1 := rates["W1"].Get()
		w2Rate, ok2 := rates["W2"].Get()
		feedMass, ok3 := ctx.Cache.TrailingMean("W1", 1).Get()
		if !ok1 || !ok2 || !ok3 {
			return
		}

		pump, ok := ctx.Pumps[bufferPumpName]
		if !ok {
			return
		}
		current, err := pump.GetRate(ctx.Ctx)
		if err != nil || len(current) == 0 {
			return
		}
		r2, ok := current[0].Get()
		if !ok {
			return
		}

		newRate, commanded := ctrl.Update(r2, w1Rate, feedMass, w2Rate)
		if !commanded {
			ctx.Host.Log("volume accumulation: buffer pump rate deviates from its command, cycle skipped")
			return
		}
		cmds := pump.MakeSpeedCommands()
		cmds[0] = device.SpeedCmd{Set: true, RateValue: newRate, RateUnits: device.MlPerMin}
		if err := pump.ChangeSpeed(ctx.Ctx, cmds); err != nil {
			ctx.Host.Error("volume accumulation: adjust buffer pump: " + err.Error())
		}
	}
}

// buildProcessControlStation wires a second, channel-less station whose
// phases run the remaining §4.8 control loops as blocking entry actions:
// pinch-valve PID lock-in against P3, then a bolus pH dose against PH1
// (spec §4.7's "control task is single-threaded and cooperative" — a
// lock-in/dose blocking the tick loop while it runs is the intended
// shape, not a bug).
func buildProcessControlStation(index int, devHost *devhost.DevHost, clk clock.Clock, cache *data.TrailingCache, valve device.Valve, dosePump device.SyringePump, cfg *fconfig.Config) *station.Station {
	lockInPID := control.New(
		nonZero(cfg.PinchValvePID.Kp, 0.0005),
		nonZero(cfg.PinchValvePID.Ki, 0.0001),
		nonZero(cfg.PinchValvePID.Kd, 0),
		nonZero(cfg.PinchValvePID.Setpoint, 3),
		nonZero(cfg.PinchValvePID.PeriodSeconds, 0.2),
		cfg.PinchValvePID.OutputMin,
		nonZero(cfg.PinchValvePID.OutputMax, 0.001),
		nonZero(cfg.PinchValvePID.ControllableBand, 1),
	)
	phCtrl := loops.NewPhOnOffController(nonZero(cfg.PhPID.Setpoint, 7), 0.05, 2.0, 0.1)

	lockIn := func(ctx context.Context, s *station.Station) (bool, error) {
		_, err := loops.PinchValveLockIn(ctx, clk, lockInPID, valve, 0, cache, "P3", 0.5, 30*time.Second)
		return false, err
	}
	phDose := func(ctx context.Context, s *station.Station) (bool, error) {
		ph, ok := cache.TrailingMean("PH1", 1).Get()
		if !ok {
			return false, nil
		}
		doseMl := phCtrl.Dose(ph, clk.Now())
		cmds := dosePump.MakeStartCommands()
		cmds[0] = device.StartCmd{Set: true, Direction: device.Infuse, RateValue: 1, RateUnits: device.MlPerMin, Mode: device.Finite, FiniteValue: doseMl, FiniteUnits: "ml"}
		return false, dosePump.Start(ctx, cmds)
	}

	transitions := map[station.Phase]station.Phase{"lock_in": "ph_dose"}
	entryFuncs := map[station.Phase]station.EntryFunc{"lock_in": lockIn, "ph_dose": phDose}

	enabled := devHost.Setpoint(fmt.Sprintf("station%d_enabled", index), true, host.DTypeBool)
	return station.New(index, enabled, "lock_in", transitions, entryFuncs)
}

func nonZero(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

// loadConfig reads path if non-empty, otherwise returns a small
// built-in demo topology so the binary is runnable with no flags.
func loadConfig(path string) (*fconfig.Config, error) {
	if path == "" {
		return demoConfig(), nil
	}
	return fconfig.Load(path)
}

func demoConfig() *fconfig.Config {
	return &fconfig.Config{
		TickIntervalMs:  1000,
		AlarmIntervalMs: 1000,
		Stations: []fconfig.StationConfig{
			{
				Index:        1,
				InitialPhase: "dispensing",
				Channels: []fconfig.ChannelConfig{
					{PumpName: "P1", Index: 0, MinRateUlMin: 1},
				},
			},
		},
		Alarms: alarm.DefaultConfig(),
		PinchValvePID: fconfig.PIDConfig{
			Kp: 0.0005, Ki: 0.0001, Kd: 0,
			Setpoint: 3, PeriodSeconds: 0.2,
			OutputMin: -0.001, OutputMax: 0.001,
			ControllableBand: 1,
		},
		PhPID: fconfig.PIDConfig{
			Kp: 0.5, Ki: 0.05, Kd: 0,
			Setpoint: 7, PeriodSeconds: 1,
			OutputMin: 0, OutputMax: 2,
			ControllableBand: 0.3,
		},
		Persist: fconfig.PersistConfig{
			Backend: "mock",
		},
	}
}

// buildTopology constructs one simulated syringe pump per distinct pump
// name referenced by the config and wires each station's channels to
// them, loading a CSV plan table per channel when one is configured
// (spec §6's CSV import path).
func buildTopology(cfg *fconfig.Config, devHost *devhost.DevHost, clk clock.Clock) (map[string]device.Pump, []*station.Station, error) {
	pumps := make(map[string]device.Pump)
	syringePumps := make(map[string]device.SyringePump)

	for _, st := range cfg.Stations {
		for _, ch := range st.Channels {
			if _, ok := syringePumps[ch.PumpName]; ok {
				continue
			}
			p := simdevice.NewSyringePump(ch.PumpName, 4, 5000, 1, 5000, clk)
			syringePumps[ch.PumpName] = p
			pumps[ch.PumpName] = p
		}
	}

	var stations []*station.Station
	for _, st := range cfg.Stations {
		enabled := devHost.Setpoint(fmt.Sprintf("station%d_enabled", st.Index), true, host.DTypeBool)
		s := station.New(st.Index, enabled, station.Phase(st.InitialPhase), nil, nil)

		for _, ch := range st.Channels {
			pump := syringePumps[ch.PumpName]
			steps, err := channelPlan(ch)
			if err != nil {
				return nil, nil, fmt.Errorf("station %d channel %d: %w", st.Index, ch.Index, err)
			}
			recordable := devHost.Recordable(fmt.Sprintf("station%d_channel%d_dispensed_ml", st.Index, ch.Index), 0.0, host.DTypeFloat)
			channel := station.NewChannel(pump, ch.Index, ch.MinRateUlMin, steps, recordable)
			s.AddChannel(channel)
			if err := channel.Start(context.Background()); err != nil {
				return nil, nil, fmt.Errorf("station %d channel %d: start: %w", st.Index, ch.Index, err)
			}
		}
		stations = append(stations, s)
	}
	return pumps, stations, nil
}

// channelPlan loads ch's plan steps from its CSV file if configured,
// otherwise returns an empty plan (Channel.Start marks a channel with
// no plan complete at once, so it never dispenses and never holds its
// station back).
func channelPlan(ch fconfig.ChannelConfig) ([]station.PlanStep, error) {
	if ch.PlanCSV == "" {
		return nil, nil
	}
	f, err := os.Open(ch.PlanCSV)
	if err != nil {
		return nil, fmt.Errorf("open plan csv: %w", err)
	}
	defer f.Close()

	plans, err := csvimport.ParseStationPlans(f)
	if err != nil {
		return nil, fmt.Errorf("parse plan csv: %w", err)
	}
	for _, p := range plans {
		if p.ReactorIndex == ch.Index {
			return p.Steps, nil
		}
	}
	return nil, nil
}

// rampFunc adapts alarm.RampFunc to internal/loops.PumpRamp: each named
// pump's channel 0 ramps from fromPct to toPct of its current rate over
// a fixed window, run in its own goroutine so a multi-pump ramp request
// (e.g. LowPressure's {"P2","P3"}) doesn't serialize. monitorCfg's
// regime-switching corrective check (spec §4.8 "monitor") runs alongside
// every increment, the same way the original pairs a ramp with a monitor
// callback.
func rampFunc(clk clock.Clock, pumps map[string]device.Pump, log *logrus.Logger, monitorCfg loops.MonitorConfig) alarm.RampFunc {
	return func(pumpNames []string, fromPct, toPct float64) {
		for _, name := range pumpNames {
			pump, ok := pumps[name]
			if !ok {
				continue
			}
			go func(name string, pump device.Pump) {
				rates, err := pump.GetRate(context.Background())
				if err != nil || len(rates) == 0 {
					return
				}
				base, ok := rates[0].Get()
				if !ok || base == 0 {
					return
				}
				base *= 1000 // GetRate reports ml/min; RampParams is in ul/min
				params := loops.RampParams{
					StartRateUlMin: base * fromPct,
					EndRateUlMin:   base * toPct,
					RateStepUlMin:  base * 0.05,
					IntervalS:      1,
					Timeout:        30 * time.Second,
				}
				monitor := func() {
					if err := monitorCfg.RunOnce(context.Background()); err != nil {
						log.WithError(err).Warn("monitor adjustment failed during ramp")
					}
				}
				if _, err := loops.PumpRamp(context.Background(), clk, pump, 0, params, nil, monitor); err != nil {
					log.WithError(err).WithField("pump", name).Warn("alarm ramp failed")
				}
			}(name, pump)
		}
	}
}

func parseDurationOrZero(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Printf("invalid duration %q: %v", s, err)
		return 0
	}
	return d
}
