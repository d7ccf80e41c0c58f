package notify

import (
	"context"
	"fmt"
	"time"

	"trade_engine/internal/models"
	"trade_engine/pkg/logger"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram is the production sink: one chat per deployment.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
	dedup  *dedup
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{
		bot:    b,
		chatID: chatID,
		dedup:  newDedup(),
	}, nil
}

func (t *Telegram) send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		logger.Error("[NOTIFY] telegram send: %v", err)
	}
}

func (t *Telegram) sendf(format string, args ...any) { t.send(fmt.Sprintf(format, args...)) }

func (t *Telegram) NotifyOrderOpened(_ context.Context, p *models.Position) {
	t.sendf("🟢 [%s] %s открыта @ %.4f | qty=%.4f tp=%.4f sl=%.4f",
		p.Symbol, p.Side, p.EntryPrice, p.Qty, p.TPPrice, p.SLPrice)
}

func (t *Telegram) NotifyPositionClosed(_ context.Context, p *models.Position) {
	emoji := "✅"
	if p.Pnl < 0 {
		emoji = "🔻"
	}
	t.sendf("%s [%s] %s закрыта @ %.4f | pnl=%.4f (%.2f%%) | reason=%s",
		emoji, p.Symbol, p.Side, p.ClosePrice, p.Pnl, p.PnlPercent, p.CloseReason)
}

func (t *Telegram) NotifyAdmissionRejected(_ context.Context, accountID int64, symbol string, used, max int) {
	key := fmt.Sprintf("admission:%d", accountID)
	if !t.dedup.canSend(key, 30*time.Minute) {
		return
	}
	t.sendf("⚠️ [%s] Лимит открытых позиций достигнут (%d/%d), сигнал пропущен", symbol, used, max)
}

func (t *Telegram) NotifyReconciliationOrphan(_ context.Context, orderID, symbol string, price float64) {
	t.sendf("❗️ [%s] Исполнен неизвестный ордер %s @ %.4f — требуется ручная сверка",
		symbol, orderID, price)
}
