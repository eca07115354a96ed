package station

import (
	"context"
	"sync"

	"fluidctl/internal/clock"
	"fluidctl/internal/host"
)

// EntryFunc runs a phase's entry actions; it may submit device commands.
// repeat requests immediate re-entry within the same Advance call (used
// for pure bookkeeping transitions, spec §4.6).
type EntryFunc func(ctx context.Context, s *Station) (repeat bool, err error)

// Station owns a phase enum and tri-state status, a set of per-channel
// dispense trackers, and free-form counters. Grounded structurally on
// the teacher's managedVSA: a registry entry carrying its own mutable
// lifecycle state (armed/lastAccessed there; PhaseStatus/counters here).
type Station struct {
	Index   int
	Enabled *host.Setpoint[any]

	mu          sync.Mutex
	phase       Phase
	phaseStatus PhaseStatus
	channels    []*Channel
	counters    map[string]int
	logging     bool

	transitions map[Phase]Phase
	entryFuncs  map[Phase]EntryFunc
}

// New builds a Station starting in NotStarted at the given initial phase.
func New(index int, enabled *host.Setpoint[any], initial Phase, transitions map[Phase]Phase, entryFuncs map[Phase]EntryFunc) *Station {
	return &Station{
		Index:       index,
		Enabled:     enabled,
		phase:       initial,
		phaseStatus: NotStarted,
		counters:    make(map[string]int),
		transitions: transitions,
		entryFuncs:  entryFuncs,
		logging:     true,
	}
}

// AddChannel registers a channel owned by this station.
func (s *Station) AddChannel(c *Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = append(s.channels, c)
}

func (s *Station) Channels() []*Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Channel(nil), s.channels...)
}

func (s *Station) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Station) PhaseStatus() PhaseStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phaseStatus
}

func (s *Station) Counter(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[name]
}

func (s *Station) IncrCounter(name string, by int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name] += by
}

func (s *Station) SetLoggingEnabled(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logging = v
}

func (s *Station) LoggingEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logging
}

// IsIdle reports whether every channel owned by this station has
// finished its current motion (complete, or not yet started). The
// runner only calls Advance once this holds (spec §4.6: "a station
// advances only when all of its channels are inactive").
func (s *Station) IsIdle(ctx context.Context) (bool, error) {
	s.mu.Lock()
	channels := append([]*Channel(nil), s.channels...)
	s.mu.Unlock()

	for _, c := range channels {
		if !c.Complete() {
			active, err := c.Pump.GetActive(ctx)
			if err != nil {
				return false, err
			}
			if c.Index < len(active) && active[c.Index] {
				return false, nil
			}
		}
	}
	return true, nil
}

// Advance runs the tri-state transition rule of spec §4.6:
//
//	NotStarted -> Started:   run the new phase's entry actions
//	Started    -> NotStarted or Complete: move to the next phase per the
//	                                      transition table, or Complete
//	                                      if the table has no next phase
//
// If an entry action requests repeat, Advance recurses once so a purely
// bookkeeping transition can take effect within the same tick.
func (s *Station) Advance(ctx context.Context) error {
	s.mu.Lock()
	status := s.phaseStatus
	phase := s.phase
	s.mu.Unlock()

	switch status {
	case NotStarted:
		s.mu.Lock()
		s.phaseStatus = Started
		s.mu.Unlock()

		fn, ok := s.entryFuncs[phase]
		if !ok {
			return nil
		}
		repeat, err := fn(ctx, s)
		if err != nil {
			return err
		}
		if repeat {
			s.mu.Lock()
			s.phaseStatus = NotStarted
			s.mu.Unlock()
			return s.Advance(ctx)
		}
		return nil

	case Started:
		next, hasNext := s.transitions[phase]
		s.mu.Lock()
		if hasNext {
			s.phaseStatus = NotStarted
			s.phase = next
		} else {
			s.phaseStatus = Complete
		}
		s.mu.Unlock()
		return nil

	case Complete:
		return nil
	}
	return nil
}

// Tick advances every channel's dispense progress by one engine tick.
func (s *Station) Tick(ctx context.Context, clk clock.Clock) error {
	for _, c := range s.Channels() {
		if err := c.Tick(ctx, clk); err != nil {
			return err
		}
	}
	return nil
}
