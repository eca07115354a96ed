package loops

// VolumeAccumulationMode selects between the two volume-accumulation
// regimes of spec §4.8.
type VolumeAccumulationMode int

const (
	// ModeStabilize drives dW1/dt toward zero only (mode 1).
	ModeStabilize VolumeAccumulationMode = iota
	// ModeTargetTime additionally drives the feed vessel mass toward a
	// setpoint within a target time window (mode 2).
	ModeTargetTime
)

// defaultPump2MaxDeviationMlMin is the safety-check bound named in
// spec §4.8: if the buffer pump's observed rate has drifted this far
// from its commanded rate, Update skips the cycle (returns
// commanded=false) rather than compounding an already-wrong command; the
// runner's adjust callback logs the skip.
const defaultPump2MaxDeviationMlMin = 10.0

// VolumeAccumulationController holds the feed-scale target and timing
// used by mode 2; mode 1 ignores them. Grounded on the spec §8 worked
// example: R2=10, W1_rate=-0.2 mL/min, current=95g, setpoint=100g,
// target_time=1min => clamp(10 - (-0.2) + (100-95)/1, [8,12]) = 12.0.
type VolumeAccumulationController struct {
	Mode                   VolumeAccumulationMode
	FeedScaleSetpointG     float64
	TargetTimeMin          float64
	Pump2MaxDeviationMlMin float64
}

// NewVolumeAccumulationController builds a controller in the given
// mode. Pump2MaxDeviationMlMin defaults to 10 mL/min; override directly
// on the returned value if the config calls for something else.
func NewVolumeAccumulationController(mode VolumeAccumulationMode, feedScaleSetpointG, targetTimeMin float64) *VolumeAccumulationController {
	return &VolumeAccumulationController{
		Mode:                   mode,
		FeedScaleSetpointG:     feedScaleSetpointG,
		TargetTimeMin:          targetTimeMin,
		Pump2MaxDeviationMlMin: defaultPump2MaxDeviationMlMin,
	}
}

// Update computes the next buffer-pump rate (R2's replacement) given the
// currently commanded buffer rate r2MlMin, the feed vessel's observed
// mass rate w1RateMlMin (dW1/dt), its current mass currentFeedMassG, and
// the buffer pump's observed rate w2RateMlMin (dW2/dt) used for the
// safety check. commanded is false when the safety check vetoes the
// cycle, in which case newRate echoes r2MlMin unchanged.
func (c *VolumeAccumulationController) Update(r2MlMin, w1RateMlMin, currentFeedMassG, w2RateMlMin float64) (newRate float64, commanded bool) {
	maxDev := c.Pump2MaxDeviationMlMin
	if maxDev <= 0 {
		maxDev = defaultPump2MaxDeviationMlMin
	}
	if absf(w2RateMlMin-r2MlMin) > maxDev {
		return r2MlMin, false
	}

	band := maxf(r2MlMin*0.05, 2)
	raw := r2MlMin - w1RateMlMin
	if c.Mode == ModeTargetTime && c.TargetTimeMin > 0 {
		raw += (c.FeedScaleSetpointG - currentFeedMassG) / c.TargetTimeMin
	}
	return clampf(raw, r2MlMin-band, r2MlMin+band), true
}
