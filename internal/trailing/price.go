package trailing

import (
	"github.com/shopspring/decimal"

	"trade_engine/internal/models"
)

// One trailing step moves the exit price toward entry by a fixed fraction of
// the initial exit distance. The step size never depends on how far wall-clock
// time has jumped: the caller advances at most one step per pass.

// stepPct is the percent applied at step n (1-based): the base reduce percent
// plus the per-minute acceleration accrued so far.
func stepPct(reducePct, upReducePct float64, step int) decimal.Decimal {
	base := decimal.NewFromFloat(reducePct)
	if upReducePct <= 0 || step <= 1 {
		return base
	}
	accel := decimal.NewFromFloat(upReducePct).Mul(decimal.NewFromInt(int64(step - 1)))
	return base.Add(accel)
}

// NextExitPrice advances the exit price one step from prev toward entry.
// Returns the new price (clamped at entry, never past it) and whether the
// step reached or crossed entry — the signal to flip the protective order
// from take-profit to stop.
func NextExitPrice(prev, entry, initialTP float64, side models.Side, step int, reducePct, upReducePct float64) (float64, bool) {
	if prev <= 0 || entry <= 0 || initialTP <= 0 {
		return prev, false
	}

	dist := decimal.NewFromFloat(initialTP).Sub(decimal.NewFromFloat(entry)).Abs()
	delta := dist.Mul(stepPct(reducePct, upReducePct, step)).Div(decimal.NewFromInt(100))

	prevD := decimal.NewFromFloat(prev)
	entryD := decimal.NewFromFloat(entry)

	var next decimal.Decimal
	if side == models.SideShort {
		next = prevD.Add(delta)
		if next.GreaterThanOrEqual(entryD) {
			f, _ := entryD.Float64()
			return f, true
		}
	} else {
		next = prevD.Sub(delta)
		if next.LessThanOrEqual(entryD) {
			f, _ := entryD.Float64()
			return f, true
		}
	}

	f, _ := next.Float64()
	return f, false
}

// moveExceeds reports whether the price move from old to new is at least
// minMovePct percent of old — the threshold below which replacing the resting
// order is pointless churn.
func moveExceeds(oldPx, newPx, minMovePct float64) bool {
	if oldPx <= 0 {
		return true
	}
	oldD := decimal.NewFromFloat(oldPx)
	diff := decimal.NewFromFloat(newPx).Sub(oldD).Abs()
	threshold := oldD.Mul(decimal.NewFromFloat(minMovePct)).Div(decimal.NewFromInt(100))
	return diff.GreaterThanOrEqual(threshold)
}
