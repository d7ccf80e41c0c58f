// Package monitor drives the position state machine. It is the only component
// that transitions a position between entry_pending, open, closed and
// cancelled, and the only writer of close_reason. Inputs are normalized push
// events plus a REST polling fallback; every transition is guarded so that
// replayed or out-of-order events converge to the same state.
package monitor

import (
	"context"
	"sync"
	"time"

	"trade_engine/internal/models"
	"trade_engine/internal/modules/gateway"
	"trade_engine/internal/modules/notify"
	"trade_engine/internal/ordercache"
	"trade_engine/internal/trailing"
)

// Store is the position persistence surface the monitor mutates.
type Store interface {
	GetByID(ctx context.Context, id int64) (*models.Position, error)
	GetByEntryOrderID(ctx context.Context, accountID int64, orderID string) (*models.Position, error)
	GetByExitOrderID(ctx context.Context, accountID int64, orderID string) (*models.Position, error)
	ListByStatus(ctx context.Context, accountID int64, status models.PositionStatus) ([]*models.Position, error)
	PromoteToOpen(ctx context.Context, id int64, entryPrice float64, openedAt time.Time) (bool, error)
	Close(ctx context.Context, id int64, closePrice, pnl, pnlPct float64, reason models.CloseReason) (bool, error)
	MarkCancelled(ctx context.Context, id int64, reason models.CloseReason) (bool, error)
	UpdateTrailing(ctx context.Context, p *models.Position) error
	TryLock(ctx context.Context, id int64, lockTimeout time.Duration) (bool, error)
	Unlock(ctx context.Context, id int64) error
}

// SlotReleaser frees the admission slot when a position reaches a terminal
// state.
type SlotReleaser interface {
	Release(ctx context.Context, accountID int64) error
}

type Config struct {
	AccountID         int64
	EntryTTL          time.Duration
	LockTimeout       time.Duration
	CooldownPerSymbol time.Duration
}

type Monitor struct {
	cfg   Config
	store Store
	gw    gateway.Gateway
	cache *ordercache.Cache
	sink  notify.Sink
	slots SlotReleaser
	trail *trailing.Engine

	mu       sync.Mutex
	lastPx   map[string]float64 // normalized symbol -> last tick
	cooldown map[string]time.Time
	now      func() time.Time
}

func New(cfg Config, store Store, gw gateway.Gateway, cache *ordercache.Cache, sink notify.Sink, slots SlotReleaser, trail *trailing.Engine) *Monitor {
	return &Monitor{
		cfg:      cfg,
		store:    store,
		gw:       gw,
		cache:    cache,
		sink:     sink,
		slots:    slots,
		trail:    trail,
		lastPx:   make(map[string]float64),
		cooldown: make(map[string]time.Time),
		now:      time.Now,
	}
}

// InCooldown reports whether new entries for the symbol should be skipped
// because a position was just closed or cancelled there.
func (m *Monitor) InCooldown(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.cooldown[normKey(symbol)]
	return ok && m.now().Before(until)
}

func (m *Monitor) setCooldown(symbol string) {
	if m.cfg.CooldownPerSymbol <= 0 {
		return
	}
	m.mu.Lock()
	m.cooldown[normKey(symbol)] = m.now().Add(m.cfg.CooldownPerSymbol)
	m.mu.Unlock()
}

func (m *Monitor) lastPrice(symbol string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPx[normKey(symbol)]
}

// withLock runs fn on the position under its soft lock. A lock that cannot be
// taken is contention: the caller skips silently and the next pass retries.
func (m *Monitor) withLock(ctx context.Context, id int64, fn func(p *models.Position) error) (bool, error) {
	ok, err := m.store.TryLock(ctx, id, m.cfg.LockTimeout)
	if err != nil || !ok {
		return false, err
	}
	defer func() {
		_ = m.store.Unlock(context.WithoutCancel(ctx), id)
	}()

	p, err := m.store.GetByID(ctx, id)
	if err != nil || p == nil {
		return true, err
	}
	return true, fn(p)
}
