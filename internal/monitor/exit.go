package monitor

import (
	"context"

	"trade_engine/internal/helper"
	"trade_engine/internal/models"
	"trade_engine/pkg/logger"
	"trade_engine/pkg/metrics"
)

// handleExitFill processes a fill that is not an entry confirmation. The
// owning position is located by, in order: the position id embedded in the
// client tag, the recorded exit order id, and finally a tolerant symbol scan
// over open positions. A fill that matches nothing is never dropped silently.
func (m *Monitor) handleExitFill(ctx context.Context, u models.OrderUpdate) {
	p := m.matchPosition(ctx, u)
	if p == nil {
		m.handleOrphanFill(ctx, u)
		return
	}

	taken, err := m.withLock(ctx, p.ID, func(p *models.Position) error {
		m.closeFromFill(ctx, p, u)
		return nil
	})
	if err != nil {
		logger.Error("[MONITOR] exit fill position=%d: %v", p.ID, err)
		return
	}
	if !taken {
		// contention: the exit order state is cached, the reconcile pass
		// finishes the close on its next cycle
		logger.Info("[MONITOR] position=%d busy, exit fill deferred", p.ID)
	}
}

func (m *Monitor) matchPosition(ctx context.Context, u models.OrderUpdate) *models.Position {
	// (a) position id parsed from the client-supplied tag
	if tag := helper.ParseOrderTag(u.ClientTag); tag != nil && tag.Role == helper.RoleExit {
		p, err := m.store.GetByID(ctx, tag.PositionID)
		if err != nil {
			logger.Error("[MONITOR] lookup tagged position=%d: %v", tag.PositionID, err)
		}
		if p != nil && helper.SymbolsMatch(p.Symbol, u.Symbol) {
			return p
		}
	}

	// (b) exact exit order id
	p, err := m.store.GetByExitOrderID(ctx, m.cfg.AccountID, u.OrderID)
	if err != nil {
		logger.Error("[MONITOR] lookup exit order %s: %v", u.OrderID, err)
	}
	if p != nil {
		return p
	}

	// (c) open positions on the same symbol, tolerant of venue formatting
	open, err := m.store.ListByStatus(ctx, m.cfg.AccountID, models.StatusOpen)
	if err != nil {
		logger.Error("[MONITOR] list open: %v", err)
		return nil
	}
	for _, candidate := range open {
		if helper.SymbolsMatch(candidate.Symbol, u.Symbol) {
			return candidate
		}
	}
	return nil
}

// handleOrphanFill: an executed exit with no owning position is a state
// integrity violation. Alert the operator with the raw identifiers and sweep
// any other resting orders on the symbol so nothing stays live unattended.
func (m *Monitor) handleOrphanFill(ctx context.Context, u models.OrderUpdate) {
	metrics.ReconcileOrphans.Inc()
	logger.Error("[MONITOR] orphan exit fill order=%s symbol=%s px=%.4f", u.OrderID, u.Symbol, u.AvgPrice)
	m.sink.NotifyReconciliationOrphan(ctx, u.OrderID, u.Symbol, u.AvgPrice)

	if err := m.gw.CancelAllOpenOrders(ctx, u.Symbol); err != nil {
		logger.Error("[MONITOR] orphan sweep %s: %v", u.Symbol, err)
	}
}

// closeFromFill closes the position at the verified fill price. Caller holds
// the soft lock.
func (m *Monitor) closeFromFill(ctx context.Context, p *models.Position, u models.OrderUpdate) {
	if p.Status.Terminal() {
		return // duplicate delivery
	}

	px := u.AvgPrice
	if px <= 0 {
		px = m.lastPrice(p.Symbol)
	}

	reason := m.closeReason(p, u, px)
	m.closePosition(ctx, p, px, reason)
}

// closeReason: a fill of the tracked exit order keeps that order's kind; a
// fill arriving through tag or symbol match (a sibling stop, or a market
// close issued by the trailing engine) is classified by realized direction.
func (m *Monitor) closeReason(p *models.Position, u models.OrderUpdate, px float64) models.CloseReason {
	if u.OrderID == p.ExitOrderID {
		switch p.ExitOrderKind {
		case models.ExitTakeProfit:
			return models.CloseReasonTPHit
		case models.ExitStop:
			return models.CloseReasonSLHit
		}
		return models.CloseReasonTrailingExit
	}
	if p.PnlAt(px) >= 0 {
		return models.CloseReasonTPHit
	}
	return models.CloseReasonSLHit
}

// closePosition is the single terminal-close path. It refuses to write
// status=closed while the exchange still reports closable exposure — a
// stuck-but-safe row beats a corrupted one.
func (m *Monitor) closePosition(ctx context.Context, p *models.Position, px float64, reason models.CloseReason) {
	if reason != models.CloseReasonExchangeManual {
		qty, err := m.gw.GetClosableQuantity(ctx, p.Symbol, p.Side)
		if err != nil {
			// the fill itself is exchange-verified; a failed sanity read
			// must not block convergence
			logger.Error("[MONITOR] closable qty %s: %v", p.Symbol, err)
		} else if qty > 0 {
			logger.Error("[MONITOR] position=%d close blocked: exchange still reports %.6f", p.ID, qty)
			m.sink.NotifyReconciliationOrphan(ctx, p.ExitOrderID, p.Symbol, px)
			return
		}
	}

	pnl := p.PnlAt(px)
	pnlPct := p.PnlPercentAt(px)

	won, err := m.store.Close(ctx, p.ID, px, pnl, pnlPct, reason)
	if err != nil {
		logger.Error("[MONITOR] close position=%d: %v", p.ID, err)
		return
	}
	if !won {
		return // already closed: duplicate event, no second notification
	}

	metrics.PositionsClosed.WithLabelValues(string(reason)).Inc()
	logger.Info("[MONITOR] position=%d %s closed @ %.4f pnl=%.4f (%s)", p.ID, p.Symbol, px, pnl, reason)
	m.setCooldown(p.Symbol)

	// the sibling stop or take-profit left behind must not stay live; the
	// close itself is authoritative once the row is written
	if err := m.gw.CancelAllOpenOrders(ctx, p.Symbol); err != nil {
		logger.Error("[MONITOR] sibling sweep %s: %v", p.Symbol, err)
	}
	if err := m.slots.Release(ctx, p.AccountID); err != nil {
		logger.Error("[MONITOR] release slot account=%d: %v", p.AccountID, err)
	}

	p.Pnl, p.PnlPercent, p.ClosePrice, p.CloseReason = pnl, pnlPct, px, reason
	p.Status = models.StatusClosed
	m.sink.NotifyPositionClosed(ctx, p)
}

// closeExternally handles exposure-gone-to-zero without a recognized exit
// fill: re-verify the resting exit once (it may have filled moments ago),
// otherwise close with the externally-closed reason at the best known price.
func (m *Monitor) closeExternally(ctx context.Context, id int64) {
	_, err := m.withLock(ctx, id, func(p *models.Position) error {
		if p.Status != models.StatusOpen {
			return nil
		}

		if p.ExitOrderID != "" {
			if st, err := m.gw.GetOrderStatus(ctx, p.Symbol, p.ExitOrderID); err == nil &&
				st.Status == models.OrderClosed && st.FilledQty > 0 {
				m.closeFromFill(ctx, p, models.OrderUpdate{
					OrderID:   p.ExitOrderID,
					Symbol:    p.Symbol,
					Status:    models.OrderClosed,
					AvgPrice:  st.AvgPrice,
					FilledQty: st.FilledQty,
				})
				return nil
			}
		}

		px := m.lastPrice(p.Symbol)
		if px <= 0 {
			var err error
			px, err = m.gw.GetTickerPrice(ctx, p.Symbol)
			if err != nil {
				logger.Error("[MONITOR] position=%d external close, no price: %v", p.ID, err)
				px = p.EntryPrice
			}
		}
		m.closePosition(ctx, p, px, models.CloseReasonExchangeManual)
		return nil
	})
	if err != nil {
		logger.Error("[MONITOR] external close position=%d: %v", id, err)
	}
}
