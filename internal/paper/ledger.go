package paper

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// fillOutcome reports what one fill did to the position map.
type fillOutcome struct {
	// realized is the P&L locked in by this fill, zero for opens and adds.
	realized decimal.Decimal
	// closedQty is how much of an opposite position this fill consumed.
	closedQty decimal.Decimal
	// closed is set when the position was removed entirely.
	closed *ClosedPosition
}

// fill executes an admitted order at the given price: charges commission,
// moves cash, updates the position map, appends the trade, and feeds any
// realized P&L to the circuit breaker. Nothing past this point can reject;
// all checks happened upstream. Caller holds the write lock.
func (e *Engine) fill(order *Order, price decimal.Decimal, reason CloseReason) *ClosedPosition {
	now := e.now()
	notional := order.Quantity.Mul(price)
	commission := notional.Mul(e.commissionRate)

	order.ID = e.nextOrderID()
	order.Status = StatusFilled
	order.FilledAt = &now
	order.FilledPrice = price
	order.FilledQuantity = order.Quantity
	order.Commission = commission
	e.orders[order.ID] = order

	if order.Side == SideBuy {
		e.cash = e.cash.Sub(notional).Sub(commission)
	} else {
		e.cash = e.cash.Add(notional).Sub(commission)
	}

	outcome := e.applyFill(order, price)
	if outcome.closed != nil {
		outcome.closed.Reason = reason
		outcome.closed.ClosedAt = now
	}

	trade := Trade{
		ID:         e.nextTradeID(),
		OrderID:    order.ID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Quantity:   order.FilledQuantity,
		Price:      price,
		Commission: commission,
		PnL:        outcome.realized,
		Reason:     reason,
		Timestamp:  now,
	}
	e.trades = append(e.trades, trade)
	e.recordTrade(trade)

	if outcome.closedQty.IsPositive() {
		if trippedNow := e.breaker.recordClose(outcome.realized, e.equity()); trippedNow {
			e.logger.Error("Circuit breaker tripped",
				zap.Int("consecutive_losses", e.breaker.consecutiveLosses),
				zap.String("daily_pnl", e.breaker.dailyPnL.String()))
		}
	}

	e.logger.Info("Order filled",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.String("quantity", order.FilledQuantity.String()),
		zap.String("price", price.String()),
		zap.String("commission", commission.String()),
		zap.String("cash", e.cash.String()))

	return outcome.closed
}

// applyFill nets one fill into the position map. A fill against an opposite
// position first closes as much of it as it can; any remainder opens a fresh
// position the other way. A position never carries a negative quantity.
func (e *Engine) applyFill(order *Order, price decimal.Decimal) fillOutcome {
	now := e.now()
	pos, ok := e.positions[order.Symbol]
	if !ok {
		e.positions[order.Symbol] = e.openPosition(order, order.FilledQuantity, price, now)
		return fillOutcome{}
	}

	if positionSideFor(order.Side) == pos.Side {
		// Add to the position: volume-weighted average entry.
		newQty := pos.Quantity.Add(order.FilledQuantity)
		notional := pos.Quantity.Mul(pos.EntryPrice).Add(order.FilledQuantity.Mul(price))
		pos.EntryPrice = notional.Div(newQty)
		pos.Quantity = newQty
		if order.StopLoss != nil {
			pos.StopLoss = cloneDecimal(order.StopLoss)
		}
		if order.TakeProfit != nil {
			pos.TakeProfit = cloneDecimal(order.TakeProfit)
		}
		e.mark(pos, price, now)
		return fillOutcome{}
	}

	closeQty := decimal.Min(pos.Quantity, order.FilledQuantity)
	pnl := directionalPnL(pos.Side, pos.EntryPrice, price, closeQty)
	pos.RealizedPnL = pos.RealizedPnL.Add(pnl)
	e.realizedPnL = e.realizedPnL.Add(pnl)

	outcome := fillOutcome{realized: pnl, closedQty: closeQty}
	remaining := pos.Quantity.Sub(closeQty)
	if remaining.IsPositive() {
		pos.Quantity = remaining
		e.mark(pos, price, now)
		return outcome
	}

	delete(e.positions, order.Symbol)
	outcome.closed = &ClosedPosition{
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Quantity:   closeQty,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		PnL:        pnl,
	}

	if flipQty := order.FilledQuantity.Sub(closeQty); flipQty.IsPositive() {
		e.positions[order.Symbol] = e.openPosition(order, flipQty, price, now)
	}
	return outcome
}

func (e *Engine) openPosition(order *Order, quantity, price decimal.Decimal, now time.Time) *Position {
	return &Position{
		Symbol:       order.Symbol,
		Side:         positionSideFor(order.Side),
		Quantity:     quantity,
		EntryPrice:   price,
		CurrentPrice: price,
		StopLoss:     cloneDecimal(order.StopLoss),
		TakeProfit:   cloneDecimal(order.TakeProfit),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// mark refreshes a position's last known price and unrealized P&L.
func (e *Engine) mark(pos *Position, price decimal.Decimal, now time.Time) {
	pos.CurrentPrice = price
	pos.UnrealizedPnL = directionalPnL(pos.Side, pos.EntryPrice, price, pos.Quantity)
	pos.UpdatedAt = now
}

// directionalPnL is the P&L for quantity at price against entry: longs
// profit when price rises, shorts when it falls.
func directionalPnL(side PositionSide, entry, price, quantity decimal.Decimal) decimal.Decimal {
	diff := price.Sub(entry)
	if side == PositionShort {
		diff = entry.Sub(price)
	}
	return diff.Mul(quantity)
}

// marketValue is the position's signed contribution to equity: longs add
// their mark-to-market value, shorts subtract the cost of buying back.
func marketValue(pos *Position) decimal.Decimal {
	value := pos.Quantity.Mul(pos.CurrentPrice)
	if pos.Side == PositionShort {
		return value.Neg()
	}
	return value
}

// equity is available cash plus the signed market value of every open
// position. This is the account's current capital, the base for the daily
// loss limit. Caller holds the lock.
func (e *Engine) equity() decimal.Decimal {
	total := e.cash
	for _, pos := range e.positions {
		total = total.Add(marketValue(pos))
	}
	return total
}

func (e *Engine) unrealizedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range e.positions {
		total = total.Add(pos.UnrealizedPnL)
	}
	return total
}

func positionSideFor(side OrderSide) PositionSide {
	if side == SideBuy {
		return PositionLong
	}
	return PositionShort
}

// closingSide is the order side that shrinks a position.
func closingSide(side PositionSide) OrderSide {
	if side == PositionLong {
		return SideSell
	}
	return SideBuy
}
