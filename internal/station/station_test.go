package station

import (
	"context"
	"testing"

	"fluidctl/internal/host"
)

func TestStationAdvanceTogglesNotStartedStarted(t *testing.T) {
	entered := 0
	transitions := map[Phase]Phase{"fill": "wait", "wait": "drain"}
	entryFuncs := map[Phase]EntryFunc{
		"fill": func(ctx context.Context, s *Station) (bool, error) { entered++; return false, nil },
	}
	sp := host.NewSetpoint[any]("st1_enabled", true, nil)
	st := New(1, sp, "fill", transitions, entryFuncs)

	if st.PhaseStatus() != NotStarted {
		t.Fatalf("expected NotStarted initially")
	}

	if err := st.Advance(context.Background()); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if st.PhaseStatus() != Started {
		t.Fatalf("expected Started after first Advance")
	}
	if entered != 1 {
		t.Fatalf("expected entry action to run once, got %d", entered)
	}

	if err := st.Advance(context.Background()); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if st.PhaseStatus() != NotStarted {
		t.Fatalf("expected NotStarted after second Advance")
	}
	if st.Phase() != "wait" {
		t.Fatalf("expected phase advanced to 'wait', got %v", st.Phase())
	}
}

func TestStationAdvanceReachesCompleteAtTerminalPhase(t *testing.T) {
	transitions := map[Phase]Phase{} // no transition out of "done" => terminal
	sp := host.NewSetpoint[any]("st1_enabled", true, nil)
	st := New(1, sp, "done", transitions, nil)

	_ = st.Advance(context.Background()) // NotStarted -> Started
	_ = st.Advance(context.Background()) // Started -> Complete (no transition)

	if st.PhaseStatus() != Complete {
		t.Fatalf("expected Complete at terminal phase, got %v", st.PhaseStatus())
	}

	// Further Advance calls on a Complete station are no-ops.
	if err := st.Advance(context.Background()); err != nil {
		t.Fatalf("Advance on Complete station: %v", err)
	}
	if st.PhaseStatus() != Complete {
		t.Fatalf("expected still Complete")
	}
}

func TestStationAdvanceRepeatEntryReentersSameTick(t *testing.T) {
	calls := 0
	transitions := map[Phase]Phase{"bookkeeping": "next"}
	entryFuncs := map[Phase]EntryFunc{
		"bookkeeping": func(ctx context.Context, s *Station) (bool, error) {
			calls++
			return calls < 2, nil // repeat once, then stop repeating
		},
	}
	sp := host.NewSetpoint[any]("st1_enabled", true, nil)
	st := New(1, sp, "bookkeeping", transitions, entryFuncs)

	if err := st.Advance(context.Background()); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected entry action invoked twice within one Advance call, got %d", calls)
	}
	if st.PhaseStatus() != Started {
		t.Fatalf("expected Started after repeat resolves")
	}
}
