package alarm

// VolumeAccumulationAlarm is the continuous member of the alarm table:
// it never "trips" in the snapshot-stop-prompt sense (Active always
// reports false) and has no restart behavior, but Handle runs every
// tick to adjust the buffer-pump rate. The two-mode accumulation math
// itself lives in internal/loops.VolumeAccumulationController; this
// alarm only wires the watchdog's per-tick cadence to that controller's
// Update, keeping the alarm package free of a dependency on the
// control-loop package.
type VolumeAccumulationAlarm struct {
	adjust func(ctx *Context)
}

// NewVolumeAccumulationAlarm wraps an adjust callback invoked every tick.
func NewVolumeAccumulationAlarm(adjust func(ctx *Context)) *VolumeAccumulationAlarm {
	return &VolumeAccumulationAlarm{adjust: adjust}
}

func (a *VolumeAccumulationAlarm) Name() string { return "volume_accumulation" }

func (a *VolumeAccumulationAlarm) Active() bool { return false }

func (a *VolumeAccumulationAlarm) Condition(ctx *Context) bool { return true }

func (a *VolumeAccumulationAlarm) Handle(ctx *Context) {
	if a.adjust != nil {
		a.adjust(ctx)
	}
}

func (a *VolumeAccumulationAlarm) Restart(ctx *Context) {}
