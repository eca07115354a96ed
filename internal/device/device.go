// Package device defines the polymorphic, capability-based contracts for
// laboratory fluidic hardware (pumps, valves, sensors, mixers). A device
// is identity plus a set of capabilities, not a class hierarchy — the
// same shape the teacher uses for its pluggable Persister backends
// (one small interface, many interchangeable implementations), here
// applied to hardware instead of storage.
//
// Every capability exposes the same batched-command pattern: the caller
// builds a command vector sized to the device's channel count, fills in
// per-channel commands (leaving the rest zero-valued/unset), and submits
// it atomically in one bus transaction. This mirrors the teacher's
// Persister.CommitBatch(commits []Commit) shape: one call, many entries,
// all-or-nothing.
package device

// Handle identifies a device and its channel count. Every capability
// interface embeds Handle.
type Handle interface {
	Name() string
	Channels() int
}

// BusErrorKind classifies a failed batched submit or query.
type BusErrorKind int

const (
	// Unreachable means the device did not respond at all (power, cabling).
	Unreachable BusErrorKind = iota
	// BusBusy means another transaction owns the bus; retry shortly.
	BusBusy
	// ProtocolError means the device responded but rejected the command
	// (malformed frame, checksum failure, unsupported opcode).
	ProtocolError
)

func (k BusErrorKind) String() string {
	switch k {
	case Unreachable:
		return "unreachable"
	case BusBusy:
		return "bus_busy"
	case ProtocolError:
		return "protocol_error"
	default:
		return "unknown"
	}
}

// BusError is returned by a capability's batched command methods (Start,
// Stop, SetPosition, ...) and by ReadAll when a transaction fails.
// Retryable marks BusBusy as transient; nothing in this repository
// retries automatically, and the runner disables the owning station on
// any device error (spec §7: device bus error policy).
type BusError struct {
	Device string
	Kind   BusErrorKind
	Err    error
}

func (e *BusError) Error() string {
	if e.Err != nil {
		return "device " + e.Device + ": " + e.Kind.String() + ": " + e.Err.Error()
	}
	return "device " + e.Device + ": " + e.Kind.String()
}

func (e *BusError) Unwrap() error { return e.Err }

// Retryable reports whether the caller should retry the submission.
// BusBusy is transient; Unreachable and ProtocolError are not.
func (e *BusError) Retryable() bool { return e.Kind == BusBusy }

// Option is a nullable numeric reading. A missing sensor reading is the
// zero value with Valid=false (spec §3: "All fields optional (missing
// sensor ⇒ None)").
type Option[T any] struct {
	Value T
	Valid bool
}

// Some wraps a present value.
func Some[T any](v T) Option[T] { return Option[T]{Value: v, Valid: true} }

// None returns an absent value of type T.
func None[T any]() Option[T] { return Option[T]{} }

// Get returns the value and whether it was present.
func (o Option[T]) Get() (T, bool) { return o.Value, o.Valid }
