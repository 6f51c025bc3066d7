// Package paper implements a simulated brokerage: it accepts order requests,
// fills them at oracle prices, maintains positions and cash, computes realized
// and unrealized P&L, and enforces risk limits through a circuit breaker and
// per-position stop-loss/take-profit levels. All money and quantity arithmetic
// uses decimals; binary floats appear only at config and transport boundaries.
package paper

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Rejection taxonomy. Every rejection is local and non-fatal: the ledger
// stays valid and the caller may retry or adjust. Check with errors.Is.
var (
	ErrPriceUnavailable     = errors.New("price unavailable")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrCircuitBreakerActive = errors.New("circuit breaker active")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrDuplicatePosition    = errors.New("duplicate position")
	ErrSnapshotInvalid      = errors.New("snapshot invalid")
)

// PriceOracle is the engine's only outward dependency. Implementations must
// bound the lookup; any error is treated as a hard price failure.
type PriceOracle interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

func (s OrderSide) valid() bool {
	switch s {
	case SideBuy, SideSell:
		return true
	}
	return false
}

type OrderKind string

const (
	KindMarket  OrderKind = "MARKET"
	KindLimit   OrderKind = "LIMIT"
	KindStop    OrderKind = "STOP"
	KindBracket OrderKind = "BRACKET"
)

func (k OrderKind) valid() bool {
	switch k {
	case KindMarket, KindLimit, KindStop, KindBracket:
		return true
	}
	return false
}

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusFilled    OrderStatus = "FILLED"
	StatusRejected  OrderStatus = "REJECTED"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusPartial   OrderStatus = "PARTIAL"
)

func (s OrderStatus) valid() bool {
	switch s {
	case StatusPending, StatusFilled, StatusRejected, StatusCancelled, StatusPartial:
		return true
	}
	return false
}

type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

func (s PositionSide) valid() bool {
	switch s {
	case PositionLong, PositionShort:
		return true
	}
	return false
}

// CloseReason records why a fill happened: a caller's signal, or a risk level
// hit by the stop/take monitor.
type CloseReason string

const (
	ReasonSignal     CloseReason = "SIGNAL"
	ReasonStopLoss   CloseReason = "STOP_LOSS"
	ReasonTakeProfit CloseReason = "TAKE_PROFIT"
)

type BreakerState string

const (
	BreakerNormal  BreakerState = "NORMAL"
	BreakerTripped BreakerState = "TRIPPED"
)

// OrderRequest is the caller's side of PlaceOrder. Quantity zero means
// auto-size from available cash; negative quantities are rejected.
// Confidence scales the auto-sized position value and is clamped to (0, 1];
// values outside that range fall back to 1.
type OrderRequest struct {
	Symbol     string           `json:"symbol"`
	Side       OrderSide        `json:"side"`
	Quantity   decimal.Decimal  `json:"quantity"`
	StopLoss   *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit *decimal.Decimal `json:"take_profit,omitempty"`
	Confidence float64          `json:"confidence"`
}

// Order is owned exclusively by the engine once created; public operations
// return copies. Paper trading has no resting book, so an admitted order goes
// straight to FILLED.
type Order struct {
	ID             string           `json:"id"`
	Symbol         string           `json:"symbol"`
	Side           OrderSide        `json:"side"`
	Kind           OrderKind        `json:"kind"`
	Quantity       decimal.Decimal  `json:"quantity"`
	LimitPrice     *decimal.Decimal `json:"limit_price,omitempty"`
	StopLoss       *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit     *decimal.Decimal `json:"take_profit,omitempty"`
	Status         OrderStatus      `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	FilledAt       *time.Time       `json:"filled_at,omitempty"`
	FilledPrice    decimal.Decimal  `json:"filled_price"`
	FilledQuantity decimal.Decimal  `json:"filled_quantity"`
	Commission     decimal.Decimal  `json:"commission"`
	Confidence     float64          `json:"confidence"`
}

// Position is the net exposure in one symbol. Quantity is always positive;
// Side encodes direction. At most one Position exists per symbol, and it is
// removed the moment its quantity reaches zero.
type Position struct {
	Symbol        string           `json:"symbol"`
	Side          PositionSide     `json:"side"`
	Quantity      decimal.Decimal  `json:"quantity"`
	EntryPrice    decimal.Decimal  `json:"entry_price"`
	CurrentPrice  decimal.Decimal  `json:"current_price"`
	UnrealizedPnL decimal.Decimal  `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal  `json:"realized_pnl"`
	StopLoss      *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit    *decimal.Decimal `json:"take_profit,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Trade is the immutable record of exactly one fill. PnL is zero for opening
// fills and the realized delta for closing fills. The trade log is
// append-only.
type Trade struct {
	ID         string          `json:"id"`
	OrderID    string          `json:"order_id"`
	Symbol     string          `json:"symbol"`
	Side       OrderSide       `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Commission decimal.Decimal `json:"commission"`
	PnL        decimal.Decimal `json:"pnl"`
	Reason     CloseReason     `json:"reason"`
	Timestamp  time.Time       `json:"timestamp"`
}

// ClosedPosition is emitted by Tick when a stop-loss or take-profit fully
// closes a position.
type ClosedPosition struct {
	Symbol     string          `json:"symbol"`
	Side       PositionSide    `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	PnL        decimal.Decimal `json:"pnl"`
	Reason     CloseReason     `json:"reason"`
	ClosedAt   time.Time       `json:"closed_at"`
}

// PortfolioSummary is a point-in-time valuation of the account. PortfolioValue
// marks open positions at their last known price; callers needing fresh marks
// should Tick first.
type PortfolioSummary struct {
	InitialCapital decimal.Decimal `json:"initial_capital"`
	AvailableCash  decimal.Decimal `json:"available_cash"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
	TotalPnL       decimal.Decimal `json:"total_pnl"`
	UnrealizedPnL  decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	TotalReturnPct decimal.Decimal `json:"total_return_pct"`
	PositionsCount int             `json:"positions_count"`
	TradesCount    int             `json:"trades_count"`
	BreakerState   BreakerState    `json:"breaker_state"`
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneOrder(o *Order) *Order {
	c := *o
	c.LimitPrice = cloneDecimal(o.LimitPrice)
	c.StopLoss = cloneDecimal(o.StopLoss)
	c.TakeProfit = cloneDecimal(o.TakeProfit)
	c.FilledAt = cloneTime(o.FilledAt)
	return &c
}

func clonePosition(p *Position) Position {
	c := *p
	c.StopLoss = cloneDecimal(p.StopLoss)
	c.TakeProfit = cloneDecimal(p.TakeProfit)
	return c
}
