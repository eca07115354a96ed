package device

import "context"

// Sensor is the read-only capability shared by balances, pressure
// transducers, pH probes, thermocouples, and mass-flow meters: read
// every channel in one batched call, optionally tare a channel.
//
// T is the reading type (float64 for every sensor kind in this engine);
// kept generic so a future non-numeric sensor can reuse the shape.
type Sensor[T any] interface {
	Handle

	ReadAll(ctx context.Context) ([]Option[T], error)
	Tare(ctx context.Context, channel int) error
}

// Kind names a sensor subsystem for logging and snapshot field naming.
type Kind string

const (
	Balance     Kind = "balance"
	Pressure    Kind = "pressure"
	PH          Kind = "ph"
	Temperature Kind = "temperature"
	MassFlow    Kind = "mass_flow"
)
