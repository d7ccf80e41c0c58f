package monitor

import (
	"context"

	"trade_engine/internal/helper"
	"trade_engine/internal/models"
	"trade_engine/pkg/logger"
)

func normKey(symbol string) string { return helper.NormalizeSymbol(symbol) }

// HandlePriceTick keeps the in-process last-price map current. Used for pnl
// refreshes and as the fill-price estimate for externally closed positions.
func (m *Monitor) HandlePriceTick(t models.PriceTick) {
	if t.Price <= 0 {
		return
	}
	m.mu.Lock()
	m.lastPx[normKey(t.Symbol)] = t.Price
	m.mu.Unlock()
}

// HandleOrderUpdate routes a pushed order event: feed the cache, then treat
// fills as entry confirmations or exit fills depending on what the order id
// and client tag resolve to.
func (m *Monitor) HandleOrderUpdate(ctx context.Context, u models.OrderUpdate) {
	m.cache.Update(u.OrderID, u.Exchange, u.Symbol, string(u.Status), u.FilledQty, u.AvgPrice)

	if !u.Filled() {
		return
	}

	// entry fills confirm pending positions
	if p, err := m.store.GetByEntryOrderID(ctx, m.cfg.AccountID, u.OrderID); err != nil {
		logger.Error("[MONITOR] lookup entry order %s: %v", u.OrderID, err)
		return
	} else if p != nil {
		m.confirmEntry(ctx, p.ID, u.AvgPrice)
		return
	}

	// a row whose order id never got attached is still reachable through
	// the entry tag
	if tag := helper.ParseOrderTag(u.ClientTag); tag != nil && tag.Role == helper.RoleEntry {
		p, err := m.store.GetByID(ctx, tag.PositionID)
		if err != nil {
			logger.Error("[MONITOR] lookup tagged entry position=%d: %v", tag.PositionID, err)
			return
		}
		if p != nil && p.Status == models.StatusEntryPending && helper.SymbolsMatch(p.Symbol, u.Symbol) {
			m.confirmEntry(ctx, p.ID, u.AvgPrice)
			return
		}
	}

	m.handleExitFill(ctx, u)
}

// HandleAccountUpdate reacts to per-symbol net exposure deltas. Exposure at
// zero with an open local position and no recognized exit fill means someone
// closed it on the exchange side; the position is closed with a distinct
// reason rather than left dangling forever.
func (m *Monitor) HandleAccountUpdate(ctx context.Context, u models.AccountUpdate) {
	if u.NetExposure != 0 {
		return
	}

	open, err := m.store.ListByStatus(ctx, m.cfg.AccountID, models.StatusOpen)
	if err != nil {
		logger.Error("[MONITOR] list open: %v", err)
		return
	}

	for _, p := range open {
		if !helper.SymbolsMatch(p.Symbol, u.Symbol) {
			continue
		}
		m.closeExternally(ctx, p.ID)
	}
}
