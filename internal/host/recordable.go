package host

import "sync"

// Recordable is a write-only scalar time series appended to by the
// engine and consumed by the host UI (spec §3). Unlike Setpoint it is
// never read back by engine code; it exists purely to surface state to
// an operator or to optional archival (internal/persist).
type Recordable struct {
	name  string
	dtype DType

	mu     sync.Mutex
	values []any
	sink   func(name string, value any)
}

// NewRecordable constructs a Recordable. sink, if non-nil, is invoked
// synchronously on every Append call — this is the hook a Host
// implementation uses to forward values to a logger or an
// internal/persist.Archiver.
func NewRecordable(name string, initial any, dtype DType, sink func(name string, value any)) *Recordable {
	r := &Recordable{name: name, dtype: dtype, sink: sink}
	r.Append(initial)
	return r
}

func (r *Recordable) Name() string  { return r.name }
func (r *Recordable) DType() DType  { return r.dtype }

// Append adds the next value in the series.
func (r *Recordable) Append(value any) {
	r.mu.Lock()
	r.values = append(r.values, value)
	r.mu.Unlock()
	if r.sink != nil {
		r.sink(r.name, value)
	}
}

// Last returns the most recently appended value, and false if nothing
// has been appended yet.
func (r *Recordable) Last() (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.values) == 0 {
		return nil, false
	}
	return r.values[len(r.values)-1], true
}

// Len returns how many values have been appended.
func (r *Recordable) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}
