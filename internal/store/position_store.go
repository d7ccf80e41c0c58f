// Package store is the relational mirror of position state. Status and
// close_reason are written only through the reconciliation monitor; every
// read-modify-write runs under the soft row lock in lock.go.
package store

import (
	"context"
	"time"

	"trade_engine/internal/models"
	"trade_engine/pkg/db"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

type PositionStore struct {
	tm db.TxManager
}

func NewPositionStore(tm db.TxManager) *PositionStore {
	return &PositionStore{tm: tm}
}

const positionColumns = `
	id, account_id, exchange, symbol, side, status,
	entry_order_id, entry_price, amount, qty,
	exit_order_id, exit_order_kind, exit_order_price, tp_price, sl_price, initial_tp, exit_not_synced,
	minutes_elapsed, reduce_pct, up_reduce_pct,
	pnl, pnl_percent, close_reason, close_price,
	busy_at, created_at, opened_at, closed_at`

func scanPosition(row pgx.Row) (*models.Position, error) {
	var p models.Position
	var exitKind, closeReason *string
	err := row.Scan(
		&p.ID, &p.AccountID, &p.Exchange, &p.Symbol, &p.Side, &p.Status,
		&p.EntryOrderID, &p.EntryPrice, &p.Amount, &p.Qty,
		&p.ExitOrderID, &exitKind, &p.ExitOrderPrice, &p.TPPrice, &p.SLPrice, &p.InitialTP, &p.ExitNotSynced,
		&p.MinutesElapsed, &p.ReducePct, &p.UpReducePct,
		&p.Pnl, &p.PnlPercent, &closeReason, &p.ClosePrice,
		&p.BusyAt, &p.CreatedAt, &p.OpenedAt, &p.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	if exitKind != nil {
		p.ExitOrderKind = models.ExitOrderKind(*exitKind)
	}
	if closeReason != nil {
		p.CloseReason = models.CloseReason(*closeReason)
	}
	return &p, nil
}

func (s *PositionStore) Create(ctx context.Context, p *models.Position) (err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "PositionStore.Create")
		}
	}()

	return s.tm.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			INSERT INTO positions (
				account_id, exchange, symbol, side, status,
				entry_order_id, entry_price, amount, qty,
				tp_price, sl_price, initial_tp,
				reduce_pct, up_reduce_pct, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,now())
			RETURNING id, created_at`,
			p.AccountID, p.Exchange, p.Symbol, p.Side, p.Status,
			p.EntryOrderID, p.EntryPrice, p.Amount, p.Qty,
			p.TPPrice, p.SLPrice, p.InitialTP,
			p.ReducePct, p.UpReducePct,
		).Scan(&p.ID, &p.CreatedAt)
	})
}

// SetEntryOrder attaches the venue order to a freshly inserted row. The client
// tag embeds the row id, so the insert has to happen before the order does.
func (s *PositionStore) SetEntryOrder(ctx context.Context, id int64, orderID string) error {
	_, err := s.tm.Conn().Exec(ctx, `
		UPDATE positions SET entry_order_id = $2
		WHERE id = $1 AND status = 'entry_pending'`,
		id, orderID)
	return errors.Wrap(err, "PositionStore.SetEntryOrder")
}

func (s *PositionStore) GetByID(ctx context.Context, id int64) (*models.Position, error) {
	p, err := scanPosition(s.tm.Conn().QueryRow(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, errors.Wrap(err, "PositionStore.GetByID")
}

func (s *PositionStore) GetByEntryOrderID(ctx context.Context, accountID int64, orderID string) (*models.Position, error) {
	p, err := scanPosition(s.tm.Conn().QueryRow(ctx,
		`SELECT `+positionColumns+` FROM positions
		 WHERE account_id = $1 AND entry_order_id = $2`, accountID, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, errors.Wrap(err, "PositionStore.GetByEntryOrderID")
}

func (s *PositionStore) GetByExitOrderID(ctx context.Context, accountID int64, orderID string) (*models.Position, error) {
	p, err := scanPosition(s.tm.Conn().QueryRow(ctx,
		`SELECT `+positionColumns+` FROM positions
		 WHERE account_id = $1 AND exit_order_id = $2`, accountID, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, errors.Wrap(err, "PositionStore.GetByExitOrderID")
}

func (s *PositionStore) ListByStatus(ctx context.Context, accountID int64, status models.PositionStatus) ([]*models.Position, error) {
	rows, err := s.tm.Conn().Query(ctx,
		`SELECT `+positionColumns+` FROM positions
		 WHERE account_id = $1 AND status = $2 ORDER BY id`, accountID, status)
	if err != nil {
		return nil, errors.Wrap(err, "PositionStore.ListByStatus")
	}
	defer rows.Close()

	var res []*models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, errors.Wrap(err, "PositionStore.ListByStatus scan")
		}
		res = append(res, p)
	}
	return res, errors.Wrap(rows.Err(), "PositionStore.ListByStatus rows")
}

// CountActive counts rows holding an admission slot: open plus entry_pending.
func (s *PositionStore) CountActive(ctx context.Context, accountID int64) (int, error) {
	var n int
	err := s.tm.Conn().QueryRow(ctx,
		`SELECT count(*) FROM positions
		 WHERE account_id = $1 AND status IN ('entry_pending','open')`, accountID).Scan(&n)
	return n, errors.Wrap(err, "PositionStore.CountActive")
}

// PromoteToOpen moves entry_pending -> open. The status guard makes replayed
// fill events no-ops; the return value tells the caller whether this call won.
func (s *PositionStore) PromoteToOpen(ctx context.Context, id int64, entryPrice float64, openedAt time.Time) (bool, error) {
	tag, err := s.tm.Conn().Exec(ctx, `
		UPDATE positions
		SET status = 'open', entry_price = $2, opened_at = $3
		WHERE id = $1 AND status = 'entry_pending'`,
		id, entryPrice, openedAt)
	if err != nil {
		return false, errors.Wrap(err, "PositionStore.PromoteToOpen")
	}
	return tag.RowsAffected() == 1, nil
}

// Close writes the terminal closed state. Guarded on non-terminal status so a
// re-delivered fill can never double-close or overwrite the close reason. The
// exit order id stays on the row: a replayed fill event must still resolve to
// this position instead of reading as an orphan.
func (s *PositionStore) Close(ctx context.Context, id int64, closePrice, pnl, pnlPct float64, reason models.CloseReason) (bool, error) {
	tag, err := s.tm.Conn().Exec(ctx, `
		UPDATE positions
		SET status = 'closed', close_price = $2, pnl = $3, pnl_percent = $4,
		    close_reason = $5, closed_at = now()
		WHERE id = $1 AND status IN ('entry_pending','open')`,
		id, closePrice, pnl, pnlPct, reason)
	if err != nil {
		return false, errors.Wrap(err, "PositionStore.Close")
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCancelled terminates an entry_pending row whose order never filled.
func (s *PositionStore) MarkCancelled(ctx context.Context, id int64, reason models.CloseReason) (bool, error) {
	tag, err := s.tm.Conn().Exec(ctx, `
		UPDATE positions
		SET status = 'cancelled', close_reason = $2, closed_at = now()
		WHERE id = $1 AND status = 'entry_pending'`,
		id, reason)
	if err != nil {
		return false, errors.Wrap(err, "PositionStore.MarkCancelled")
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateTrailing persists one trailing step: new exit price/order plus the
// refreshed pnl snapshot. initial_tp is deliberately not touched here.
func (s *PositionStore) UpdateTrailing(ctx context.Context, p *models.Position) error {
	_, err := s.tm.Conn().Exec(ctx, `
		UPDATE positions
		SET exit_order_id = $2, exit_order_kind = $3, exit_order_price = $4, tp_price = $5,
		    minutes_elapsed = $6, exit_not_synced = $7, pnl = $8, pnl_percent = $9
		WHERE id = $1 AND status = 'open'`,
		p.ID, p.ExitOrderID, string(p.ExitOrderKind), p.ExitOrderPrice, p.TPPrice,
		p.MinutesElapsed, p.ExitNotSynced, p.Pnl, p.PnlPercent)
	return errors.Wrap(err, "PositionStore.UpdateTrailing")
}
