package models

import (
	"math"
	"testing"
)

func TestPnlAt(t *testing.T) {
	long := Position{Side: SideLong, EntryPrice: 50000, Qty: 0.1}
	if got := long.PnlAt(52500); math.Abs(got-250) > 1e-9 {
		t.Errorf("long pnl = %v, want 250", got)
	}
	if got := long.PnlAt(49000); math.Abs(got-(-100)) > 1e-9 {
		t.Errorf("long pnl = %v, want -100", got)
	}

	short := Position{Side: SideShort, EntryPrice: 50000, Qty: 0.1}
	if got := short.PnlAt(49000); math.Abs(got-100) > 1e-9 {
		t.Errorf("short pnl = %v, want 100", got)
	}
}

func TestPnlPercentAt(t *testing.T) {
	p := Position{Side: SideLong, EntryPrice: 50000, Qty: 0.1}
	if got := p.PnlPercentAt(52500); math.Abs(got-5) > 1e-9 {
		t.Errorf("pnl percent = %v, want 5", got)
	}

	zero := Position{Side: SideLong, EntryPrice: 0, Qty: 0.1}
	if got := zero.PnlPercentAt(100); got != 0 {
		t.Errorf("zero entry must yield 0, got %v", got)
	}
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status PositionStatus
		want   bool
	}{
		{StatusEntryPending, false},
		{StatusOpen, false},
		{StatusClosed, true},
		{StatusCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}
