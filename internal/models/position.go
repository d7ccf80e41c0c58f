package models

import "time"

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

type PositionStatus string

const (
	StatusEntryPending PositionStatus = "entry_pending"
	StatusOpen         PositionStatus = "open"
	StatusClosed       PositionStatus = "closed"
	StatusCancelled    PositionStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s PositionStatus) Terminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

type CloseReason string

const (
	CloseReasonTPHit          CloseReason = "tp_hit"
	CloseReasonSLHit          CloseReason = "sl_hit"
	CloseReasonManual         CloseReason = "manual"
	CloseReasonExchangeManual CloseReason = "exchange_manual_close"
	CloseReasonTTLExpired     CloseReason = "ttl_expired"
	CloseReasonTrailingExit   CloseReason = "trailing_exit"
)

// ExitOrderKind — type of the resting protective order.
type ExitOrderKind string

const (
	ExitTakeProfit ExitOrderKind = "take_profit"
	ExitStop       ExitOrderKind = "stop"
)

// Position is the local mirror of one exchange position. The exchange is the
// system of record; rows here converge to it through the reconciliation
// monitor, which is the only writer of Status and CloseReason.
type Position struct {
	ID        int64
	AccountID int64
	Exchange  string
	Symbol    string
	Side      Side
	Status    PositionStatus

	EntryOrderID string
	EntryPrice   float64
	Amount       float64 // notional, quote currency
	Qty          float64 // contracts

	// exactly one live protective order at a time
	ExitOrderID    string
	ExitOrderKind  ExitOrderKind
	ExitOrderPrice float64 // trigger of the order actually resting on the venue
	TPPrice        float64
	SLPrice        float64
	InitialTP      float64 // trailing anchor, never mutated after open
	ExitNotSynced  bool    // computed price persisted but resting order not replaced yet

	MinutesElapsed int     // trailing steps applied, monotonic
	ReducePct      float64 // percent of |initialTP-entry| trailed per minute
	UpReducePct    float64 // acceleration added per elapsed minute

	Pnl         float64
	PnlPercent  float64
	CloseReason CloseReason
	ClosePrice  float64

	BusyAt    *time.Time // soft lock, reclaimed after a timeout
	CreatedAt time.Time
	OpenedAt  *time.Time
	ClosedAt  *time.Time
}

// PnlAt computes realized pnl for a fill at px.
func (p *Position) PnlAt(px float64) float64 {
	if p.Qty <= 0 || p.EntryPrice <= 0 {
		return 0
	}
	if p.Side == SideShort {
		return (p.EntryPrice - px) * p.Qty
	}
	return (px - p.EntryPrice) * p.Qty
}

// PnlPercentAt is pnl relative to the notional committed at entry.
func (p *Position) PnlPercentAt(px float64) float64 {
	base := p.EntryPrice * p.Qty
	if base <= 0 {
		return 0
	}
	return p.PnlAt(px) / base * 100
}
