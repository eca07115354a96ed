// Package host defines the narrow RPC-shaped contract the engine uses to
// talk to whatever operator UI and logging backend is running it:
// setpoints, recordables, operator input/prompt, and a structured log
// sink. The engine never manages files directly; it writes only through
// this interface (spec §6).
package host

import "context"

// DType names the wire type of a Setpoint/Recordable/Input value, mirroring
// the host RPC's dtype argument.
type DType string

const (
	DTypeBool   DType = "bool"
	DTypeInt    DType = "int"
	DTypeFloat  DType = "float"
	DTypeString DType = "string"
)

// InputKind names the operator-input widget the host should render.
type InputKind string

const (
	InputCSV     InputKind = "csv"
	InputTable   InputKind = "table"
	InputButtons InputKind = "buttons"
)

// Host is the full RPC surface the engine consumes. Exactly one
// implementation runs per process: a reference in-process Host
// (internal/host/devhost) for demos and tests, or a real operator-UI
// adapter in production.
type Host interface {
	Setpoint(name string, initial any, dtype DType) *Setpoint[any]
	Recordable(name string, initial any, dtype DType) *Recordable

	Input(ctx context.Context, message string, kind InputKind, dtype DType, options ...string) (*Input, error)
	Prompt(message string, pauseRecipe bool) *Prompt

	Log(line string)
	Error(line string)

	IsLabMode() bool
	SetLogFileName(name string)
}

// Input is a single blocking operator-input request. Value is populated
// once the operator responds; Done closes at that point.
type Input struct {
	Message string
	Kind    InputKind
	DType   DType
	Options []string

	Done  <-chan struct{}
	Value any
}

// Prompt is an operator acknowledgement gate. The handle stays truthy
// (Active) until the operator dismisses it; PauseRecipe indicates the
// recipe should halt advancing phases while the prompt is outstanding.
type Prompt struct {
	Message     string
	PauseRecipe bool

	dismissed chan struct{}
}

// NewPrompt constructs a Prompt in the active state.
func NewPrompt(message string, pauseRecipe bool) *Prompt {
	return &Prompt{Message: message, PauseRecipe: pauseRecipe, dismissed: make(chan struct{})}
}

// Active reports whether the operator has not yet dismissed the prompt.
func (p *Prompt) Active() bool {
	select {
	case <-p.dismissed:
		return false
	default:
		return true
	}
}

// Dismiss closes the prompt; safe to call more than once.
func (p *Prompt) Dismiss() {
	select {
	case <-p.dismissed:
	default:
		close(p.dismissed)
	}
}

// Done returns a channel that closes when the prompt is dismissed.
func (p *Prompt) Done() <-chan struct{} { return p.dismissed }
