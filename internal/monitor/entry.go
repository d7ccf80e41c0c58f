package monitor

import (
	"context"
	"errors"

	"trade_engine/internal/helper"
	"trade_engine/internal/models"
	"trade_engine/internal/modules/gateway"
	"trade_engine/pkg/logger"
	"trade_engine/pkg/metrics"
)

// confirmEntry promotes entry_pending -> open on a verified fill. The whole
// promote-then-protect sequence runs under the position's soft lock so a
// concurrent reconcile pass cannot persist a stale row over the freshly
// placed protective order. The status guard in the store makes a replayed
// fill event a no-op: no duplicate write, no duplicate notification, no
// second protective order.
func (m *Monitor) confirmEntry(ctx context.Context, id int64, avgPrice float64) {
	taken, err := m.withLock(ctx, id, func(p *models.Position) error {
		entryPx := p.EntryPrice
		if avgPrice > 0 {
			entryPx = avgPrice // verified average fill beats the submitted price
		}

		openedAt := m.now()
		won, err := m.store.PromoteToOpen(ctx, p.ID, entryPx, openedAt)
		if err != nil {
			return err
		}
		if !won {
			return nil // already open/terminal: duplicate event
		}

		metrics.PositionsOpened.Inc()
		logger.Info("[MONITOR] position=%d %s %s open @ %.4f", p.ID, p.Symbol, p.Side, entryPx)

		p.Status = models.StatusOpen
		p.EntryPrice = entryPx
		p.OpenedAt = &openedAt

		m.placeInitialProtection(ctx, p)
		m.sink.NotifyOrderOpened(ctx, p)
		return nil
	})
	if err != nil {
		logger.Error("[MONITOR] promote position=%d: %v", id, err)
		return
	}
	if !taken {
		// contention: the fill is cached, the poller confirms next pass
		logger.Info("[MONITOR] position=%d busy, entry fill deferred", id)
	}
}

// placeInitialProtection rests the initial take-profit exit and, if the
// account carries a one-time stop-loss, that stop. Only the take-profit side
// is trailed afterwards; the stop is set once and left alone.
func (m *Monitor) placeInitialProtection(ctx context.Context, p *models.Position) {
	if p.InitialTP > 0 {
		id, err := m.gw.PlaceOrder(ctx, gateway.PlaceOrderRequest{
			Symbol:       p.Symbol,
			PosSide:      p.Side,
			Qty:          p.Qty,
			TriggerPrice: p.InitialTP,
			Kind:         models.ExitTakeProfit,
			ClientTag:    helper.BuildOrderTag(p.ID, helper.RoleExit),
			ReduceOnly:   true,
		})
		if err != nil {
			logger.Error("[MONITOR] position=%d initial tp: %v", p.ID, err)
			p.ExitNotSynced = true
		} else {
			p.ExitOrderID = id
			p.ExitOrderKind = models.ExitTakeProfit
			p.ExitOrderPrice = p.InitialTP
			p.ExitNotSynced = false
		}
		p.TPPrice = p.InitialTP
	}

	if p.SLPrice > 0 {
		if _, err := m.gw.PlaceOrder(ctx, gateway.PlaceOrderRequest{
			Symbol:       p.Symbol,
			PosSide:      p.Side,
			Qty:          p.Qty,
			TriggerPrice: p.SLPrice,
			Kind:         models.ExitStop,
			ClientTag:    helper.BuildOrderTag(p.ID, helper.RoleExit),
			ReduceOnly:   true,
		}); err != nil {
			// best effort, not retried: the trailed exit still protects
			logger.Error("[MONITOR] position=%d initial sl: %v", p.ID, err)
		}
	}

	if err := m.store.UpdateTrailing(ctx, p); err != nil {
		logger.Error("[MONITOR] position=%d persist protection: %v", p.ID, err)
	}
}

// PollEntryPending is the REST fallback for venues or stretches where the
// push feed is down: re-check every pending entry order, promote fills, and
// expire rows older than the entry TTL.
func (m *Monitor) PollEntryPending(ctx context.Context) {
	pending, err := m.store.ListByStatus(ctx, m.cfg.AccountID, models.StatusEntryPending)
	if err != nil {
		logger.Error("[MONITOR] list entry_pending: %v", err)
		return
	}

	for _, p := range pending {
		select {
		case <-ctx.Done():
			return
		default:
		}
		m.pollOne(ctx, p)
	}
}

func (m *Monitor) pollOne(ctx context.Context, p *models.Position) {
	// cache first: a pushed state may already have the answer
	if st, ok := m.cache.Get(p.EntryOrderID, p.Exchange); ok {
		if st.Status == models.OrderClosed && st.FilledQty > 0 {
			m.confirmEntry(ctx, p.ID, st.AvgPrice)
			return
		}
		if st.Status == models.OrderCanceled {
			m.cancelPending(ctx, p, models.CloseReasonManual)
			return
		}
	}

	expired := m.cfg.EntryTTL > 0 && m.now().Sub(p.CreatedAt) > m.cfg.EntryTTL

	if p.EntryOrderID == "" {
		// the order id never got attached after placement; a pushed fill
		// still resolves the row through its client tag, but REST can only
		// wait for it. On expiry sweep the symbol so the untracked order
		// cannot fill after the row is terminated.
		if expired {
			if err := m.gw.CancelAllOpenOrders(ctx, p.Symbol); err != nil {
				logger.Error("[MONITOR] sweep unattached entry %s: %v", p.Symbol, err)
				return
			}
			m.cancelPending(ctx, p, models.CloseReasonTTLExpired)
		}
		return
	}

	st, err := m.gw.GetOrderStatus(ctx, p.Symbol, p.EntryOrderID)
	if err != nil {
		// unknown is never a confirmation either way; only an expired row
		// with a definitively missing order may be cancelled
		if expired && errors.Is(err, gateway.ErrOrderNotFound) {
			m.cancelPending(ctx, p, models.CloseReasonTTLExpired)
		} else {
			logger.Error("[MONITOR] poll entry %s: %v", p.EntryOrderID, err)
		}
		return
	}

	switch st.Status {
	case models.OrderClosed:
		if st.FilledQty > 0 {
			m.confirmEntry(ctx, p.ID, st.AvgPrice)
		}
	case models.OrderCanceled:
		m.cancelPending(ctx, p, models.CloseReasonManual)
	default:
		if !expired {
			return
		}
		// TTL passed and the re-verification above still shows unfilled:
		// cancel on the venue, then terminate the row
		if err := m.gw.CancelOrder(ctx, p.Symbol, p.EntryOrderID); err != nil && !gateway.IsSoftReject(err) {
			logger.Error("[MONITOR] cancel expired entry %s: %v", p.EntryOrderID, err)
			return // order may still fill; retry next poll
		}
		m.cancelPending(ctx, p, models.CloseReasonTTLExpired)
	}
}

func (m *Monitor) cancelPending(ctx context.Context, p *models.Position, reason models.CloseReason) {
	won, err := m.store.MarkCancelled(ctx, p.ID, reason)
	if err != nil {
		logger.Error("[MONITOR] cancel position=%d: %v", p.ID, err)
		return
	}
	if !won {
		return
	}

	logger.Info("[MONITOR] position=%d %s cancelled (%s)", p.ID, p.Symbol, reason)
	m.setCooldown(p.Symbol)
	if err := m.slots.Release(ctx, p.AccountID); err != nil {
		logger.Error("[MONITOR] release slot account=%d: %v", p.AccountID, err)
	}
}
