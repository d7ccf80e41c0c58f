// Package gateway wraps the exchange REST API behind a narrow interface. The
// rest of the engine never sees raw venue payloads or status vocabularies.
package gateway

import (
	"context"

	"trade_engine/internal/models"
)

// OrderState is the REST view of one order, normalized.
type OrderState struct {
	OrderID   string
	ClientTag string
	Symbol    string
	Status    models.OrderStatus
	AvgPrice  float64
	FilledQty float64
}

// ExchangePosition is the venue-side view of one open position.
type ExchangePosition struct {
	Symbol        string
	Side          models.Side
	Size          float64
	EntryPrice    float64
	LastPrice     float64
	UnrealizedPnl float64
}

// PlaceOrderRequest covers plain and conditional (trigger) orders. For
// protective exits set TriggerPrice and Kind; for entries leave them zero.
type PlaceOrderRequest struct {
	Symbol       string
	PosSide      models.Side
	OrdType      string // "market", "limit", "conditional"
	Qty          float64
	Price        float64 // limit price, 0 = market execution on trigger
	TriggerPrice float64
	Kind         models.ExitOrderKind
	ClientTag    string
	ReduceOnly   bool
}

// Gateway is the exchange access surface consumed by the monitor and the
// trailing engine. All calls may fail transiently; see errors.go for the
// retryable / soft-reject split.
type Gateway interface {
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (string, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	CancelAllOpenOrders(ctx context.Context, symbol string) error
	GetOrderStatus(ctx context.Context, symbol, orderID string) (OrderState, error)
	GetOpenPositions(ctx context.Context) ([]ExchangePosition, error)
	GetClosableQuantity(ctx context.Context, symbol string, side models.Side) (float64, error)
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)
	CloseMarket(ctx context.Context, symbol string, side models.Side, size float64) (string, error)
	Name() string
}
