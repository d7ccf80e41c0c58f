package trailing

import (
	"math"
	"testing"

	"trade_engine/internal/models"
)

func TestNextExitPriceWalksTowardEntry(t *testing.T) {
	// entry 100000, initial exit 110000, 10% per step: the exit descends by
	// 1000 each step and clamps exactly at entry on the tenth.
	entry, initialTP := 100000.0, 110000.0
	prev := initialTP

	for step := 1; step <= 9; step++ {
		next, crossed := NextExitPrice(prev, entry, initialTP, models.SideLong, step, 10, 0)
		if crossed {
			t.Fatalf("step %d: crossed too early (next=%v)", step, next)
		}
		want := initialTP - float64(step)*1000
		if math.Abs(next-want) > 1e-9 {
			t.Fatalf("step %d: next = %v, want %v", step, next, want)
		}
		prev = next
	}

	next, crossed := NextExitPrice(prev, entry, initialTP, models.SideLong, 10, 10, 0)
	if !crossed {
		t.Fatal("step 10: expected crossed")
	}
	if next != entry {
		t.Fatalf("step 10: next = %v, want clamp at entry %v", next, entry)
	}
}

func TestNextExitPriceShortSide(t *testing.T) {
	// short: entry above exit, price walks upward
	entry, initialTP := 100000.0, 90000.0

	next, crossed := NextExitPrice(initialTP, entry, initialTP, models.SideShort, 1, 10, 0)
	if crossed {
		t.Fatal("first step should not cross")
	}
	if math.Abs(next-91000) > 1e-9 {
		t.Fatalf("next = %v, want 91000", next)
	}

	// a huge step overshoots entry: clamp, never past it
	next, crossed = NextExitPrice(99500, entry, initialTP, models.SideShort, 1, 10, 0)
	if !crossed || next != entry {
		t.Fatalf("overshoot: next = %v crossed = %v, want clamp at %v", next, crossed, entry)
	}
}

func TestNextExitPriceAcceleration(t *testing.T) {
	// up_reduce_pct adds (step-1) percent per step on top of the base
	entry, initialTP := 100.0, 110.0

	tests := []struct {
		step int
		want float64 // delta off prev, distance is 10
	}{
		{1, 1.0}, // 10%
		{2, 1.2}, // 10% + 2%
		{3, 1.4}, // 10% + 4%
	}
	for _, tt := range tests {
		next, _ := NextExitPrice(110, entry, initialTP, models.SideLong, tt.step, 10, 2)
		got := 110 - next
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("step %d: delta = %v, want %v", tt.step, got, tt.want)
		}
	}
}

func TestNextExitPriceDegenerateInputs(t *testing.T) {
	next, crossed := NextExitPrice(0, 100, 110, models.SideLong, 1, 10, 0)
	if next != 0 || crossed {
		t.Fatalf("zero prev must be a no-op, got next=%v crossed=%v", next, crossed)
	}
	next, crossed = NextExitPrice(110, 0, 110, models.SideLong, 1, 10, 0)
	if next != 110 || crossed {
		t.Fatalf("zero entry must be a no-op, got next=%v crossed=%v", next, crossed)
	}
}

func TestMoveExceeds(t *testing.T) {
	tests := []struct {
		name       string
		oldPx, new float64
		minMovePct float64
		want       bool
	}{
		{"well above threshold", 100000, 100100, 0.02, true},
		{"exactly threshold", 100000, 100020, 0.02, true},
		{"below threshold", 100000, 100010, 0.02, false},
		{"downward move counts", 100000, 99900, 0.02, true},
		{"no previous price", 0, 100, 0.02, true},
	}
	for _, tt := range tests {
		if got := moveExceeds(tt.oldPx, tt.new, tt.minMovePct); got != tt.want {
			t.Errorf("%s: moveExceeds(%v, %v, %v) = %v, want %v",
				tt.name, tt.oldPx, tt.new, tt.minMovePct, got, tt.want)
		}
	}
}
