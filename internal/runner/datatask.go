package runner

import (
	"context"
	"time"

	"fluidctl/internal/data"
	"fluidctl/internal/device"
	"fluidctl/internal/host"
)

// dataRetryBackoff is the "short back-off" spec §4.3's update() pauses for
// between balance-read retries.
const dataRetryBackoff = 200 * time.Millisecond

// SensorBinding names a sensor and the snapshot field each of its channels
// feeds. Fields[i] == "" skips channel i (a sensor wired with fewer live
// channels than its hardware supports).
type SensorBinding struct {
	Sensor device.Sensor[float64]
	Kind   device.Kind
	Fields []string
}

// PumpRateBinding names a pump and the snapshot field each channel's
// commanded rate feeds.
type PumpRateBinding struct {
	Pump   device.Pump
	Fields []string
}

// ValveBinding names a valve and the snapshot field each channel's
// fractional position feeds.
type ValveBinding struct {
	Valve  device.Valve
	Fields []string
}

// DataTaskConfig wires the sensors, pumps, and valves the runner's data
// task pulls every cycle into a Snapshot, plus the recordables that mirror
// selected fields out to the host (spec §4.3, §4.7).
type DataTaskConfig struct {
	Sensors []SensorBinding
	Pumps   []PumpRateBinding
	Valves  []ValveBinding

	// Recordables maps a snapshot field name to the Recordable it should
	// be appended to whenever the field reads present.
	Recordables map[string]*host.Recordable

	// Retries bounds how many times a cycle with a missing balance
	// reading is retried before giving up (spec §4.3 "retries=5").
	Retries int

	// PauseOnError raises Prompt instead of silently accepting Nones
	// once Retries is exhausted (spec §4.3 "pause_on_error").
	PauseOnError bool
	Prompt       *host.Setpoint[any]
}

// dataTask runs one cycle of spec §4.3's update(): pull every sensor,
// retrying while any balance channel reads back None, then pull pump
// rates and valve positions, and stamp the snapshot once every field has
// been set.
func (r *Runner) dataTask(ctx context.Context) data.Snapshot {
	cfg := r.dataCfg
	snap := data.NewSnapshot(r.clk.Now())

	retries := cfg.Retries
	if retries <= 0 {
		retries = 1
	}

	for attempt := 0; attempt < retries; attempt++ {
		balanceMissing := false

		for _, sb := range cfg.Sensors {
			readings, err := sb.Sensor.ReadAll(ctx)
			if err != nil {
				r.log.WithError(err).WithField("sensor", sb.Sensor.Name()).Warn("sensor read failed")
				for _, f := range sb.Fields {
					if f != "" {
						snap.Set(f, 0, false)
					}
				}
				if sb.Kind == device.Balance {
					balanceMissing = true
				}
				continue
			}
			for i, f := range sb.Fields {
				if f == "" || i >= len(readings) {
					continue
				}
				v, ok := readings[i].Get()
				snap.Set(f, v, ok)
				if !ok && sb.Kind == device.Balance {
					balanceMissing = true
				}
			}
		}

		if !balanceMissing {
			break
		}
		if attempt < retries-1 {
			r.clk.Sleep(dataRetryBackoff)
			continue
		}
		if cfg.PauseOnError && cfg.Prompt != nil {
			cfg.Prompt.Set(true)
		}
	}

	for _, pb := range cfg.Pumps {
		rates, err := pb.Pump.GetRate(ctx)
		if err != nil {
			r.log.WithError(err).WithField("pump", pb.Pump.Name()).Warn("pump rate read failed")
			continue
		}
		for i, f := range pb.Fields {
			if f == "" || i >= len(rates) {
				continue
			}
			v, ok := rates[i].Get()
			snap.Set(f, v, ok)
		}
	}

	for _, vb := range cfg.Valves {
		positions, err := vb.Valve.PctOpen(ctx)
		if err != nil {
			r.log.WithError(err).WithField("valve", vb.Valve.Name()).Warn("valve position read failed")
			continue
		}
		for i, f := range vb.Fields {
			if f == "" || i >= len(positions) {
				continue
			}
			v, ok := positions[i].Get()
			snap.Set(f, v, ok)
		}
	}

	snap.Timestamp = r.clk.Now()
	return snap
}

// updateRecordables appends every configured recordable field present in
// snap to its bound Recordable.
func (r *Runner) updateRecordables(snap data.Snapshot) {
	for name, rec := range r.dataCfg.Recordables {
		if v, ok := snap.Get(name); ok {
			rec.Append(v)
		}
	}
}
