// Package admission bounds how many positions an account may hold at once.
// The counter lives in the shared datastore and is moved only by single
// conditional updates, so it stays correct when several scanner instances
// race for the last slot.
package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trade_engine/internal/models"
	"trade_engine/pkg/db"
	"trade_engine/pkg/logger"
	"trade_engine/pkg/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrContention: the underlying lock could not be acquired quickly. Not a real
// refusal — callers skip silently and retry next cycle, no operator alert.
var ErrContention = errors.New("admission: lock contention")

// LimitError is the real, alertable refusal: the account is at its limit.
type LimitError struct {
	Used int
	Max  int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("admission: limit reached %d/%d", e.Used, e.Max)
}

// ActiveCounter re-derives slot usage from position rows during reclaim.
type ActiveCounter interface {
	CountActive(ctx context.Context, accountID int64) (int, error)
}

type Admission struct {
	tm       db.TxManager
	maxSlots int
}

func New(tm db.TxManager, maxSlots int) *Admission {
	return &Admission{tm: tm, maxSlots: maxSlots}
}

// Reserve takes one slot for the account, or refuses. A refusal is either
// *LimitError (at capacity) or ErrContention (lock timeout) — the two must
// stay distinguishable because only the former is user-visible.
func (a *Admission) Reserve(ctx context.Context, accountID int64) (*models.SlotReservation, error) {
	res := &models.SlotReservation{
		Token:     uuid.NewString(),
		AccountID: accountID,
		State:     models.ReservationReserved,
	}

	err := a.tm.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SET LOCAL lock_timeout = '2s'`); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO account_slots (account_id, used, max_slots)
			VALUES ($1, 0, $2)
			ON CONFLICT (account_id) DO NOTHING`,
			accountID, a.maxSlots); err != nil {
			return err
		}

		// increment iff below limit — never read-then-write
		tag, err := tx.Exec(ctx, `
			UPDATE account_slots SET used = used + 1
			WHERE account_id = $1 AND used < max_slots`,
			accountID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var used, max int
			if err := tx.QueryRow(ctx,
				`SELECT used, max_slots FROM account_slots WHERE account_id = $1`,
				accountID).Scan(&used, &max); err != nil {
				return err
			}
			return &LimitError{Used: used, Max: max}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO slot_reservations (token, account_id, state, created_at)
			VALUES ($1, $2, 'reserved', now())`,
			res.Token, accountID)
		return err
	})
	if err != nil {
		var le *LimitError
		if errors.As(err, &le) {
			metrics.AdmissionRefused.WithLabelValues("limit").Inc()
			return nil, le
		}
		if isContention(err) {
			metrics.AdmissionRefused.WithLabelValues("contention").Inc()
			return nil, ErrContention
		}
		return nil, fmt.Errorf("Admission.Reserve: %w", err)
	}

	res.CreatedAt = time.Now()
	return res, nil
}

// Finalize releases or cancels a reservation. Idempotent: a token already out
// of the reserved state is a no-op, the slot is not decremented twice.
func (a *Admission) Finalize(ctx context.Context, token string, outcome models.ReservationState) error {
	if outcome != models.ReservationReleased && outcome != models.ReservationCancelled {
		return fmt.Errorf("Admission.Finalize: bad outcome %q", outcome)
	}

	return a.tm.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE slot_reservations SET state = $2
			WHERE token = $1 AND state = 'reserved'`,
			token, outcome)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil // already finalized
		}

		// a cancelled reservation frees its slot; a released one is now
		// represented by the position row and freed when that closes
		if outcome == models.ReservationCancelled {
			_, err = tx.Exec(ctx, `
				UPDATE account_slots SET used = GREATEST(used - 1, 0)
				WHERE account_id = (SELECT account_id FROM slot_reservations WHERE token = $1)`,
				token)
		}
		return err
	})
}

// Attach records the position a reservation turned into. From that point the
// slot is represented by the position row, and reclaim must not count the
// reservation a second time while both exist.
func (a *Admission) Attach(ctx context.Context, token string, positionID int64) error {
	return a.tm.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE slot_reservations SET position_id = $2
			WHERE token = $1`, token, positionID)
		return err
	})
}

// Release frees the slot held by a position that reached a terminal state.
func (a *Admission) Release(ctx context.Context, accountID int64) error {
	return a.tm.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE account_slots SET used = GREATEST(used - 1, 0)
			WHERE account_id = $1`, accountID)
		return err
	})
}

// Reclaim defensively repairs counter drift: reservations stuck in reserved
// past staleAfter are cancelled, then used is re-derived from the position
// table plus still-live reservations.
func (a *Admission) Reclaim(ctx context.Context, accountID int64, counter ActiveCounter, staleAfter time.Duration) error {
	return a.tm.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE slot_reservations SET state = 'cancelled'
			WHERE account_id = $1 AND state = 'reserved' AND created_at < now() - $2::interval`,
			accountID, staleAfter)
		if err != nil {
			return err
		}
		if n := tag.RowsAffected(); n > 0 {
			logger.Warn("[ADMISSION] account=%d reclaimed %d stale reservations", accountID, n)
		}

		active, err := counter.CountActive(ctx, accountID)
		if err != nil {
			return err
		}
		// reservations that already produced a position row are counted
		// through CountActive, not here
		var pending int
		if err := tx.QueryRow(ctx, `
			SELECT count(*) FROM slot_reservations
			WHERE account_id = $1 AND state = 'reserved' AND position_id IS NULL`,
			accountID).Scan(&pending); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE account_slots SET used = $2
			WHERE account_id = $1 AND used <> $2`,
			accountID, active+pending)
		return err
	})
}

func isContention(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", "40001", "40P01": // lock_not_available, serialization, deadlock
			return true
		}
	}
	return errors.Is(err, context.DeadlineExceeded)
}
