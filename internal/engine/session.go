// Package engine ties one account's components together: stream subscriptions,
// the scheduled reconciliation and polling passes, and the signal intake that
// turns detected entries into pending positions.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trade_engine/internal/admission"
	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/gateway"
	"trade_engine/internal/modules/notify"
	"trade_engine/internal/modules/stream"
	"trade_engine/internal/monitor"
	"trade_engine/internal/store"
	"trade_engine/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Signal is a detected entry opportunity. Detection itself lives outside this
// module; the session only consumes the result.
type Signal struct {
	Symbol string
	Side   models.Side
	Price  float64
	Qty    float64
	Amount float64
	TP     float64
}

// Slots is the admission surface the session drives.
type Slots interface {
	Reserve(ctx context.Context, accountID int64) (*models.SlotReservation, error)
	Attach(ctx context.Context, token string, positionID int64) error
	Finalize(ctx context.Context, token string, outcome models.ReservationState) error
	Reclaim(ctx context.Context, accountID int64, counter admission.ActiveCounter, staleAfter time.Duration) error
}

// EntryStore is the slice of the position store the entry path writes.
type EntryStore interface {
	admission.ActiveCounter
	Create(ctx context.Context, p *models.Position) error
	SetEntryOrder(ctx context.Context, id int64, orderID string) error
	MarkCancelled(ctx context.Context, id int64, reason models.CloseReason) (bool, error)
}

// Session runs the full lifecycle machinery for one account.
type Session struct {
	AccountID int64

	cfg    *config.Config
	mon    *monitor.Monitor
	adm    Slots
	store  EntryStore
	gw     gateway.Gateway
	sink   notify.Sink
	stream *stream.Client

	cron  *cron.Cron
	queue chan Signal

	mu      sync.Mutex
	pending map[string]bool // symbols with an in-flight open attempt
}

func NewSession(
	cfg *config.Config,
	mon *monitor.Monitor,
	adm *admission.Admission,
	st *store.PositionStore,
	gw gateway.Gateway,
	sink notify.Sink,
	sc *stream.Client,
) *Session {
	return &Session{
		AccountID: cfg.AccountID,
		cfg:       cfg,
		mon:       mon,
		adm:       adm,
		store:     st,
		gw:        gw,
		sink:      sink,
		stream:    sc,
		cron:      cron.New(),
		queue:     make(chan Signal, 32),
		pending:   make(map[string]bool),
	}
}

// Enqueue hands a signal to the session worker. Drops when the queue is full:
// a missed entry is recoverable, a blocked detector is not.
func (s *Session) Enqueue(sig Signal) {
	select {
	case s.queue <- sig:
	default:
		logger.Warn("[ENGINE] account=%d signal queue full, dropped %s", s.AccountID, sig.Symbol)
	}
}

// Start wires stream handlers and scheduled passes, then launches the worker.
// Everything stops when ctx is cancelled; in-flight exchange calls finish or
// time out naturally.
func (s *Session) Start(ctx context.Context) error {
	s.stream.WatchSymbols(s.cfg.Symbols)
	s.stream.OnOrderUpdate(func(u models.OrderUpdate) {
		s.mon.HandleOrderUpdate(ctx, u)
	})
	s.stream.OnAccountUpdate(func(u models.AccountUpdate) {
		s.mon.HandleAccountUpdate(ctx, u)
	})
	s.stream.OnPriceTick(func(t models.PriceTick) {
		s.mon.HandlePriceTick(t)
	})

	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.cfg.PollInterval), func() {
		s.mon.PollEntryPending(ctx)
	}); err != nil {
		return fmt.Errorf("session: poll cron: %w", err)
	}
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.cfg.TrailInterval), func() {
		s.mon.ReconcilePass(ctx)
	}); err != nil {
		return fmt.Errorf("session: reconcile cron: %w", err)
	}
	if _, err := s.cron.AddFunc("@every 5m", func() {
		if err := s.adm.Reclaim(ctx, s.AccountID, s.store, s.cfg.ReclaimAfter); err != nil {
			logger.Error("[ENGINE] account=%d reclaim: %v", s.AccountID, err)
		}
	}); err != nil {
		return fmt.Errorf("session: reclaim cron: %w", err)
	}

	s.stream.Start(ctx)
	s.cron.Start()
	go s.worker(ctx)

	logger.Info("[ENGINE] account=%d session started", s.AccountID)
	return nil
}

func (s *Session) Stop() {
	s.cron.Stop()
}

func (s *Session) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-s.queue:
			if s.mon.InCooldown(sig.Symbol) || s.isPending(sig.Symbol) {
				continue
			}
			s.setPending(sig.Symbol, true)
			func() {
				defer s.setPending(sig.Symbol, false)
				if err := s.OpenFromSignal(ctx, sig); err != nil {
					logger.Error("[ENGINE] account=%d open %s: %v", s.AccountID, sig.Symbol, err)
				}
			}()
		}
	}
}

func (s *Session) isPending(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[symbol]
}

func (s *Session) setPending(symbol string, v bool) {
	s.mu.Lock()
	s.pending[symbol] = v
	s.mu.Unlock()
}
