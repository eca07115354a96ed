package simdevice

import (
	"context"
	"testing"

	"fluidctl/internal/device"
)

func TestValveSetPositionClamps(t *testing.T) {
	v := NewValve("valve1", 2)
	ctx := context.Background()

	err := v.SetPosition(ctx, []device.PositionCmd{
		{Set: true, PctOpen: 1.5},
		{Set: true, PctOpen: -0.2},
	})
	if err != nil {
		t.Fatalf("SetPosition: %v", err)
	}

	pct, err := v.PctOpen(ctx)
	if err != nil {
		t.Fatalf("PctOpen: %v", err)
	}
	got0, _ := pct[0].Get()
	got1, _ := pct[1].Get()
	if got0 != 1 {
		t.Fatalf("expected channel 0 clamped to 1, got %v", got0)
	}
	if got1 != 0 {
		t.Fatalf("expected channel 1 clamped to 0, got %v", got1)
	}
}

func TestValveUnsetCommandLeavesPositionUnchanged(t *testing.T) {
	v := NewValve("valve1", 1)
	ctx := context.Background()

	_ = v.SetPosition(ctx, []device.PositionCmd{{Set: true, PctOpen: 0.5}})
	_ = v.SetPosition(ctx, []device.PositionCmd{{Set: false, PctOpen: 0.9}})

	pct, _ := v.PctOpen(ctx)
	got, _ := pct[0].Get()
	if got != 0.5 {
		t.Fatalf("expected position unchanged at 0.5, got %v", got)
	}
}
