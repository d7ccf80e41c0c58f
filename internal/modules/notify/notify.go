// Package notify delivers operator notifications. All sends are fire and
// forget: delivery failures are logged and never escalated to callers.
package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"trade_engine/internal/models"
)

// Sink is the notification surface produced to by the engine.
type Sink interface {
	NotifyOrderOpened(ctx context.Context, p *models.Position)
	NotifyPositionClosed(ctx context.Context, p *models.Position)
	NotifyAdmissionRejected(ctx context.Context, accountID int64, symbol string, used, max int)
	NotifyReconciliationOrphan(ctx context.Context, orderID, symbol string, price float64)
}

// dedup rate-limits repeated notifications by key, the way repeated
// limit-reached warnings would otherwise spam the chat.
type dedup struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func newDedup() *dedup {
	return &dedup{last: make(map[string]time.Time)}
}

func (d *dedup) canSend(key string, ttl time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if at, ok := d.last[key]; ok && time.Since(at) < ttl {
		return false
	}
	d.last[key] = time.Now()
	return true
}

// Stdout logs every notification; used when no Telegram token is configured
// and in tests.
type Stdout struct{}

func NewStdout() *Stdout { return &Stdout{} }

func (s *Stdout) NotifyOrderOpened(_ context.Context, p *models.Position) {
	log.Printf("[NOTIFY] order opened: %s %s @ %.4f", p.Symbol, p.Side, p.EntryPrice)
}

func (s *Stdout) NotifyPositionClosed(_ context.Context, p *models.Position) {
	log.Printf("[NOTIFY] position closed: %s %s pnl=%.4f reason=%s", p.Symbol, p.Side, p.Pnl, p.CloseReason)
}

func (s *Stdout) NotifyAdmissionRejected(_ context.Context, accountID int64, symbol string, used, max int) {
	log.Printf("[NOTIFY] admission rejected: account=%d symbol=%s %d/%d", accountID, symbol, used, max)
}

func (s *Stdout) NotifyReconciliationOrphan(_ context.Context, orderID, symbol string, price float64) {
	log.Printf("[NOTIFY] orphan fill: order=%s symbol=%s px=%.4f", orderID, symbol, price)
}
