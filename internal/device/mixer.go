package device

import "context"

// Mixer is the overhead-stirrer capability: start/stop agitation and set
// a temperature target for vessels with heating/cooling jackets. Present
// only in passing in the distilled spec's component table; the original
// recipe set (original_source/local/recipes/mixing/mixing_with_injections.py)
// drives it directly, so it is specified here as a first-class capability.
type Mixer interface {
	Handle

	Start(ctx context.Context, rpm float64) error
	Stop(ctx context.Context) error

	SetTemperatureTarget(ctx context.Context, celsius float64) error
	TemperatureTarget() (celsius float64, ok bool)
	Temperature(ctx context.Context) (Option[float64], error)
}
