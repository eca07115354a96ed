package device

import "context"

// PositionCmd sets a pinch valve channel's fractional open position.
type PositionCmd struct {
	Set     bool
	PctOpen float64 // 0.0 (closed) .. 1.0 (fully open)
}

// Valve is the pinch-valve capability: set and read fractional position.
type Valve interface {
	Handle

	MakeCommands() []PositionCmd
	SetPosition(ctx context.Context, cmds []PositionCmd) error

	PctOpen(ctx context.Context) ([]Option[float64], error)
}
