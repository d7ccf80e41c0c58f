// Package trailing re-prices the protective exit order of each open position
// on a fixed time cadence. The exit price walks from the initial take-profit
// toward entry, one bounded step per minute boundary; once it reaches entry
// the protection flips from take-profit to a stop below the market.
package trailing

import (
	"context"
	"time"

	"trade_engine/internal/helper"
	"trade_engine/internal/models"
	"trade_engine/internal/modules/gateway"
	"trade_engine/pkg/logger"
	"trade_engine/pkg/metrics"
)

// Store is the slice of the position store the engine needs.
type Store interface {
	UpdateTrailing(ctx context.Context, p *models.Position) error
}

type Config struct {
	MinMovePct    float64 // skip replace below this move
	StopBufferPct float64 // stop distance from market after the flip
}

type Engine struct {
	gw    gateway.Gateway
	store Store
	cfg   Config
	now   func() time.Time
}

func New(gw gateway.Gateway, store Store, cfg Config) *Engine {
	return &Engine{gw: gw, store: store, cfg: cfg, now: time.Now}
}

// Run executes one trailing pass for one open position. The caller holds the
// position's soft lock. markPrice may be 0 when no fresh tick is available;
// the engine then fetches the ticker itself only if it must flip or close.
func (e *Engine) Run(ctx context.Context, p *models.Position, markPrice float64) error {
	if p.Status != models.StatusOpen || p.OpenedAt == nil {
		return nil
	}

	if markPrice > 0 {
		p.Pnl = p.PnlAt(markPrice)
		p.PnlPercent = p.PnlPercentAt(markPrice)
	}

	// move at most once per minute boundary; if the process slept through
	// several minutes, advance exactly one step per pass anyway
	elapsed := int(e.now().Sub(*p.OpenedAt).Minutes())
	if elapsed <= p.MinutesElapsed {
		if p.ExitNotSynced && p.TPPrice > 0 {
			// a failed placement left the position unprotected: retry at
			// the persisted price without waiting for the next boundary
			return e.resyncExit(ctx, p, markPrice)
		}
		return e.store.UpdateTrailing(ctx, p)
	}
	step := p.MinutesElapsed + 1

	prev := p.TPPrice
	if prev <= 0 {
		prev = p.InitialTP
	}
	next, crossed := NextExitPrice(prev, p.EntryPrice, p.InitialTP, p.Side, step, p.ReducePct, p.UpReducePct)

	if !crossed {
		return e.trailTakeProfit(ctx, p, next, step)
	}
	return e.flipToStop(ctx, p, next, step, markPrice)
}

// resyncExit re-runs the placement for the already persisted exit price. Step
// and price stay as they are; only the venue side catches up.
func (e *Engine) resyncExit(ctx context.Context, p *models.Position, markPrice float64) error {
	crossed := p.TPPrice <= p.EntryPrice
	if p.Side == models.SideShort {
		crossed = p.TPPrice >= p.EntryPrice
	}
	if crossed {
		return e.flipToStop(ctx, p, p.TPPrice, p.MinutesElapsed, markPrice)
	}
	return e.trailTakeProfit(ctx, p, p.TPPrice, p.MinutesElapsed)
}

func (e *Engine) trailTakeProfit(ctx context.Context, p *models.Position, next float64, step int) error {
	// below the churn threshold: book the step, keep the resting order. The
	// comparison is against the price resting on the venue, not the last
	// computed one, so skipped sub-threshold steps accumulate into a replace.
	if p.ExitOrderID != "" && !p.ExitNotSynced && !moveExceeds(restingPrice(p), next, e.cfg.MinMovePct) {
		p.MinutesElapsed = step
		p.TPPrice = next
		return e.store.UpdateTrailing(ctx, p)
	}

	err := e.replaceExitOrder(ctx, p, models.ExitTakeProfit, next)
	p.MinutesElapsed = step
	p.TPPrice = next
	if err != nil {
		// trailing state survives the failed placement; retried next pass
		logger.Error("[TRAIL] position=%d replace tp: %v", p.ID, err)
		p.ExitNotSynced = true
	} else {
		p.ExitNotSynced = false
		metrics.TrailSteps.Inc()
	}
	return e.store.UpdateTrailing(ctx, p)
}

// flipToStop handles the step that reached entry: protection moves to the
// loss side. If the market is already at or past the crossed price, waiting
// for a resting trigger only loses more — close at market instead.
func (e *Engine) flipToStop(ctx context.Context, p *models.Position, next float64, step int, markPrice float64) error {
	var err error
	if markPrice <= 0 {
		markPrice, err = e.gw.GetTickerPrice(ctx, p.Symbol)
		if err != nil {
			logger.Error("[TRAIL] position=%d ticker: %v", p.ID, err)
			p.MinutesElapsed = step
			p.TPPrice = next
			p.ExitNotSynced = true
			return e.store.UpdateTrailing(ctx, p)
		}
	}

	marketBetter := markPrice >= next
	if p.Side == models.SideShort {
		marketBetter = markPrice <= next
	}
	if marketBetter {
		if _, err := e.gw.CloseMarket(ctx, p.Symbol, p.Side, p.Qty); err != nil {
			if gateway.IsSoftReject(err) {
				logger.Warn("[TRAIL] position=%d market close rejected: %v", p.ID, err)
			} else {
				logger.Error("[TRAIL] position=%d market close: %v", p.ID, err)
				p.ExitNotSynced = true
			}
		} else {
			logger.Info("[TRAIL] position=%d closing at market (px=%.4f crossed=%.4f)", p.ID, markPrice, next)
			p.ExitOrderKind = "" // the close fill is attributed to trailing, not tp/sl
			p.ExitNotSynced = false
		}
		p.MinutesElapsed = step
		p.TPPrice = next
		return e.store.UpdateTrailing(ctx, p)
	}

	trigger := markPrice * (1 - e.cfg.StopBufferPct/100)
	if p.Side == models.SideShort {
		trigger = markPrice * (1 + e.cfg.StopBufferPct/100)
	}

	err = e.replaceExitOrder(ctx, p, models.ExitStop, trigger)
	p.MinutesElapsed = step
	p.TPPrice = next
	if err != nil {
		logger.Error("[TRAIL] position=%d flip to stop: %v", p.ID, err)
		p.ExitNotSynced = true
	} else {
		p.ExitNotSynced = false
		metrics.TrailSteps.Inc()
	}
	return e.store.UpdateTrailing(ctx, p)
}

// restingPrice is the trigger of the order actually on the venue. Rows
// written before exit_order_price existed fall back to the computed price.
func restingPrice(p *models.Position) float64 {
	if p.ExitOrderPrice > 0 {
		return p.ExitOrderPrice
	}
	return p.TPPrice
}

// replaceExitOrder places the new protective order before cancelling the old
// one, so the position is never unprotected. A failed cancel of the stale
// order is logged only; the monitor's sibling sweep picks it up at close.
func (e *Engine) replaceExitOrder(ctx context.Context, p *models.Position, kind models.ExitOrderKind, trigger float64) error {
	oldID := p.ExitOrderID

	newID, err := e.gw.PlaceOrder(ctx, gateway.PlaceOrderRequest{
		Symbol:       p.Symbol,
		PosSide:      p.Side,
		Qty:          p.Qty,
		TriggerPrice: trigger,
		Kind:         kind,
		ClientTag:    helper.BuildOrderTag(p.ID, helper.RoleExit),
		ReduceOnly:   true,
	})
	if err != nil {
		return err
	}

	p.ExitOrderID = newID
	p.ExitOrderKind = kind
	p.ExitOrderPrice = trigger

	if oldID != "" && oldID != newID {
		if err := e.gw.CancelOrder(ctx, p.Symbol, oldID); err != nil {
			logger.Error("[TRAIL] position=%d cancel stale exit %s: %v", p.ID, oldID, err)
		}
	}
	return nil
}
