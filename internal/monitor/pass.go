package monitor

import (
	"context"
	"strconv"

	"trade_engine/internal/models"
	"trade_engine/pkg/logger"
	"trade_engine/pkg/metrics"

	"github.com/opentracing/opentracing-go"
)

// ReconcilePass is the scheduled sweep over open positions: finish closes
// whose push event lost the lock race, then hand each position to the
// trailing engine. A failure on one position never blocks the rest.
func (m *Monitor) ReconcilePass(ctx context.Context) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "reconcile_pass")
	defer span.Finish()

	open, err := m.store.ListByStatus(ctx, m.cfg.AccountID, models.StatusOpen)
	if err != nil {
		logger.Error("[MONITOR] reconcile list open: %v", err)
		return
	}
	metrics.OpenPositions.WithLabelValues(accountLabel(m.cfg.AccountID)).Set(float64(len(open)))

	for _, p := range open {
		select {
		case <-ctx.Done():
			return
		default:
		}
		m.reconcileOne(ctx, p.ID)
	}
}

func (m *Monitor) reconcileOne(ctx context.Context, id int64) {
	taken, err := m.withLock(ctx, id, func(p *models.Position) error {
		if p.Status != models.StatusOpen {
			return nil
		}

		// a deferred exit fill: the cache remembers what the push said while
		// the row was busy
		if p.ExitOrderID != "" {
			if st, ok := m.cache.Get(p.ExitOrderID, p.Exchange); ok &&
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

		return m.trail.Run(ctx, p, m.lastPrice(p.Symbol))
	})
	if err != nil {
		logger.Error("[MONITOR] reconcile position=%d: %v", id, err)
	}
	_ = taken // contention: silently retried next pass
}

func accountLabel(id int64) string {
	return strconv.FormatInt(id, 10)
}
