package engine

import (
	"context"
	"errors"
	"fmt"

	"trade_engine/internal/admission"
	"trade_engine/internal/helper"
	"trade_engine/internal/models"
	"trade_engine/internal/modules/gateway"
	"trade_engine/pkg/logger"
)

// OpenFromSignal runs the entry path: reserve a slot, insert the pending row,
// place the entry order tagged with the row id. Failure after the reservation
// always walks back both the slot and the row, otherwise the account leaks
// capacity until reclaim.
func (s *Session) OpenFromSignal(ctx context.Context, sig Signal) error {
	res, err := s.adm.Reserve(ctx, s.AccountID)
	if err != nil {
		var le *admission.LimitError
		if errors.As(err, &le) {
			logger.Info("[ENGINE] account=%d %s refused: %v", s.AccountID, sig.Symbol, le)
			s.sink.NotifyAdmissionRejected(ctx, s.AccountID, sig.Symbol, le.Used, le.Max)
			return nil
		}
		if errors.Is(err, admission.ErrContention) {
			return nil // silent, retried on the next signal
		}
		return fmt.Errorf("Session.OpenFromSignal: %w", err)
	}

	var sl float64
	if s.cfg.InitialStopPct > 0 {
		if sig.Side == models.SideLong {
			sl = sig.Price * (1 - s.cfg.InitialStopPct/100)
		} else {
			sl = sig.Price * (1 + s.cfg.InitialStopPct/100)
		}
	}

	p := &models.Position{
		AccountID:   s.AccountID,
		Exchange:    s.gw.Name(),
		Symbol:      sig.Symbol,
		Side:        sig.Side,
		Status:      models.StatusEntryPending,
		EntryPrice:  sig.Price, // submitted price; replaced by avg fill on promote
		Amount:      sig.Amount,
		Qty:         sig.Qty,
		TPPrice:     sig.TP,
		SLPrice:     sl,
		InitialTP:   sig.TP,
		ReducePct:   s.cfg.ReducePct,
		UpReducePct: s.cfg.UpReducePct,
	}
	if err := s.store.Create(ctx, p); err != nil {
		s.rollbackReservation(ctx, res.Token)
		return fmt.Errorf("Session.OpenFromSignal: %w", err)
	}
	if err := s.adm.Attach(ctx, res.Token, p.ID); err != nil {
		logger.Error("[ENGINE] position=%d attach reservation %s: %v", p.ID, res.Token, err)
	}

	orderID, err := s.gw.PlaceOrder(ctx, gateway.PlaceOrderRequest{
		Symbol:    sig.Symbol,
		PosSide:   sig.Side,
		OrdType:   "limit",
		Qty:       sig.Qty,
		Price:     sig.Price,
		ClientTag: helper.BuildOrderTag(p.ID, helper.RoleEntry),
	})
	if err != nil {
		if _, mErr := s.store.MarkCancelled(ctx, p.ID, models.CloseReasonManual); mErr != nil {
			logger.Error("[ENGINE] position=%d cancel after failed place: %v", p.ID, mErr)
		}
		s.rollbackReservation(ctx, res.Token)
		if gateway.IsSoftReject(err) {
			logger.Warn("[ENGINE] account=%d %s entry rejected by venue: %v", s.AccountID, sig.Symbol, err)
			return nil
		}
		return fmt.Errorf("Session.OpenFromSignal place: %w", err)
	}

	if err := s.store.SetEntryOrder(ctx, p.ID, orderID); err != nil {
		// the order is live; a pushed fill still resolves the row through
		// the position id embedded in the client tag
		logger.Error("[ENGINE] position=%d attach order %s: %v", p.ID, orderID, err)
	}
	if err := s.adm.Finalize(ctx, res.Token, models.ReservationReleased); err != nil {
		logger.Error("[ENGINE] position=%d finalize reservation: %v", p.ID, err)
	}

	logger.Info("[ENGINE] account=%d placed entry %s %s qty=%s order=%s position=%d",
		s.AccountID, sig.Symbol, sig.Side, helper.FormatSize(sig.Qty), orderID, p.ID)
	return nil
}

func (s *Session) rollbackReservation(ctx context.Context, token string) {
	if err := s.adm.Finalize(ctx, token, models.ReservationCancelled); err != nil {
		logger.Error("[ENGINE] rollback reservation %s: %v", token, err)
	}
}
