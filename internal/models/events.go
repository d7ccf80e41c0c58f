package models

import "time"

// OrderStatus — normalized across exchange vocabularies at the stream/gateway
// boundary. Everything inward speaks only these three.
type OrderStatus string

const (
	OrderOpen     OrderStatus = "open"
	OrderClosed   OrderStatus = "closed"
	OrderCanceled OrderStatus = "canceled"
)

// NormalizeOrderStatus maps raw exchange order states onto the three normalized
// ones. Unknown states map to open: an unrecognized state must never be read as
// a confirmed fill.
func NormalizeOrderStatus(raw string) OrderStatus {
	switch raw {
	case "FILLED", "filled", "closed", "effective", "2":
		return OrderClosed
	case "CANCELED", "CANCELLED", "EXPIRED", "REJECTED", "canceled", "cancelled", "4":
		return OrderCanceled
	default:
		return OrderOpen
	}
}

// OrderUpdate is a normalized push event for one order.
type OrderUpdate struct {
	OrderID   string
	ClientTag string
	Exchange  string
	Symbol    string
	Status    OrderStatus
	AvgPrice  float64
	FilledQty float64
	EventTime time.Time
}

// Filled reports whether the update confirms a complete fill.
func (u OrderUpdate) Filled() bool {
	return u.Status == OrderClosed && u.FilledQty > 0
}

// AccountUpdate carries per-symbol net exposure after a balance/position delta.
type AccountUpdate struct {
	Symbol      string
	NetExposure float64
	EventTime   time.Time
}

// PriceTick is a public market data tick.
type PriceTick struct {
	Symbol string
	Price  float64
	At     time.Time
}
