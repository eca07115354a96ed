package alarm

// Config carries the configurable thresholds and field names the six
// alarms test against (spec §4.5 table). Field names are DataSnapshot
// keys (e.g. "P1", "W2"); pump identifiers are Context.Pumps keys and
// share the same letter/number convention as the alarm table's prose
// ("stop P2,P3") even though they live in a separate namespace from the
// pressure field names.
type Config struct {
	PressureFields     []string // e.g. {"P1","P2","P3"}: OverPressure scans all of these
	OverPressureMaxPsi float64  // default 35

	LowPressureField     string // e.g. "P3"
	LowPressureUpperPsi  float64 // 0.3, exclusive
	LowPressureLowerPsi  float64 // -3, inclusive
	LowPressurePumpNames []string // pumps stopped on trip, e.g. {"P2","P3"}
	LowPressureWaitSeconds float64

	VacuumField        string // shares LowPressureField in practice, e.g. "P3"
	VacuumThresholdPsi float64 // -3; VacuumCondition takes precedence over LowPressure at the boundary

	BufferVesselField    string // e.g. "W2"
	BufferVesselEmptyG   float64 // 5
	BufferVesselPumpNames []string // {"P2","P3"}

	// RetentateVesselLowAlarm follows the documented intent (feed vessel
	// W1) per the bug noted in spec §9's redesign flags, gated behind
	// this flag since the shipped condition historically checked W2.
	RetentateVesselLowEnabled   bool
	RetentateVesselField        string // "W1"
	RetentateVesselThresholdG   float64

	RampLowPct  float64 // 0.5
	RampHighPct float64 // 1.0; read only by OverPressure's restart (LowPressure ramps to a fixed 0.9, the others to a fixed 1.0)
}

// DefaultConfig returns the thresholds named in spec §4.5's table.
func DefaultConfig() Config {
	return Config{
		PressureFields:         []string{"P1", "P2", "P3"},
		OverPressureMaxPsi:     35,
		LowPressureField:       "P3",
		LowPressureUpperPsi:    0.3,
		LowPressureLowerPsi:    -3,
		LowPressurePumpNames:   []string{"P2", "P3"},
		LowPressureWaitSeconds: 5,
		VacuumField:            "P3",
		VacuumThresholdPsi:     -3,
		BufferVesselField:      "W2",
		BufferVesselEmptyG:     5,
		BufferVesselPumpNames:  []string{"P2", "P3"},
		RetentateVesselLowEnabled: false,
		RetentateVesselField:      "W1",
		RetentateVesselThresholdG: 0,
		RampLowPct:  0.5,
		RampHighPct: 1.0,
	}
}
