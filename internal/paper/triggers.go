package paper

import (
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Tick refreshes every open position's mark from the given prices and fires
// stop-loss/take-profit exits. A triggered position is closed in full at the
// tick price through the normal fill pipeline; the breaker gate does not
// apply since holding a losing position open is worse than the exit. Symbols
// missing from the price map keep their last mark. Calling Tick again with
// unchanged prices produces no further fills.
func (e *Engine) Tick(prices map[string]decimal.Decimal) []ClosedPosition {
	e.mu.Lock()
	defer e.mu.Unlock()

	symbols := make([]string, 0, len(e.positions))
	for symbol := range e.positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	var events []ClosedPosition
	for _, symbol := range symbols {
		pos := e.positions[symbol]
		price, ok := prices[symbol]
		if !ok || !price.IsPositive() {
			continue
		}
		e.mark(pos, price, e.now())

		reason, hit := triggerHit(pos, price)
		if !hit {
			continue
		}
		order := &Order{
			Symbol:    symbol,
			Side:      closingSide(pos.Side),
			Kind:      KindMarket,
			Quantity:  pos.Quantity,
			Status:    StatusPending,
			CreatedAt: e.now(),
		}
		closed := e.fill(order, price, reason)
		if closed == nil {
			continue
		}
		e.logger.Info("Risk exit triggered",
			zap.String("symbol", symbol),
			zap.String("reason", string(reason)),
			zap.String("exit_price", price.String()),
			zap.String("pnl", closed.PnL.String()))
		events = append(events, *closed)
	}

	e.recordEquity()
	return events
}

// triggerHit evaluates the position's risk levels against price. Stop-loss
// is checked before take-profit, so at most one exit fires per tick and a
// misconfigured bracket resolves in favor of the stop.
func triggerHit(pos *Position, price decimal.Decimal) (CloseReason, bool) {
	switch pos.Side {
	case PositionLong:
		if pos.StopLoss != nil && price.LessThanOrEqual(*pos.StopLoss) {
			return ReasonStopLoss, true
		}
		if pos.TakeProfit != nil && price.GreaterThanOrEqual(*pos.TakeProfit) {
			return ReasonTakeProfit, true
		}
	case PositionShort:
		if pos.StopLoss != nil && price.GreaterThanOrEqual(*pos.StopLoss) {
			return ReasonStopLoss, true
		}
		if pos.TakeProfit != nil && price.LessThanOrEqual(*pos.TakeProfit) {
			return ReasonTakeProfit, true
		}
	}
	return "", false
}
