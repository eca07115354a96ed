// Package data provides the DataSnapshot record and TrailingCache ring
// buffer shared by controllers and alarms (spec §3, §4.3).
package data

import (
	"time"

	"fluidctl/internal/device"
)

// Snapshot is a timestamped record of every named measurement/actuation
// in a station's subsystem: pressures (P1..Pn), masses (W1..Wn), pump
// rates (R1..Rn), valve position (PV), pH readings, temperatures. All
// fields are optional; a missing sensor reads as device.None.
//
// Timestamp must be the wall-clock time at which the snapshot's last
// field was populated (spec §3 invariant) — callers that build a
// snapshot field-by-field should stamp Timestamp only once every field
// has been set.
type Snapshot struct {
	Timestamp time.Time
	Fields    map[string]device.Option[float64]
}

// NewSnapshot builds an empty snapshot ready to receive fields.
func NewSnapshot(ts time.Time) Snapshot {
	return Snapshot{Timestamp: ts, Fields: make(map[string]device.Option[float64])}
}

// Set stores a field value (or marks it missing if !ok).
func (s Snapshot) Set(name string, value float64, ok bool) {
	if ok {
		s.Fields[name] = device.Some(value)
	} else {
		s.Fields[name] = device.None[float64]()
	}
}

// Get reads a field, returning (0, false) if absent from this snapshot
// entirely or present-but-missing.
func (s Snapshot) Get(name string) (float64, bool) {
	opt, present := s.Fields[name]
	if !present {
		return 0, false
	}
	return opt.Get()
}
