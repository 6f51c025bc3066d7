package paper

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// cashUseCap bounds any single auto-sized order to 95% of available cash so
// the commission can always be paid from the remainder.
var cashUseCap = decimal.RequireFromString("0.95")

// autoSize computes the order quantity from available cash when the caller
// did not give one: position value = cash * max_position_fraction *
// confidence, clamped by cashUseCap. Auto-sizing is an entry mechanism, so a
// symbol that already holds a position is rejected; adds, reduces, and flips
// must state their quantity explicitly.
func (e *Engine) autoSize(req OrderRequest, price decimal.Decimal) (decimal.Decimal, error) {
	if _, exists := e.positions[req.Symbol]; exists {
		return decimal.Zero, fmt.Errorf("%w: %s already has an open position", ErrDuplicatePosition, req.Symbol)
	}
	confidence := decimal.NewFromFloat(normalizeConfidence(req.Confidence))
	value := e.cash.Mul(e.maxPositionFraction).Mul(confidence)
	if limit := e.cash.Mul(cashUseCap); value.GreaterThan(limit) {
		value = limit
	}
	quantity := value.Div(price)
	if !quantity.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: sized to %s with cash %s", ErrInvalidQuantity, quantity, e.cash)
	}
	return quantity, nil
}

// normalizeConfidence maps the advisory confidence scalar into (0, 1].
// Unset (zero), negative, and out-of-range values all mean full size.
func normalizeConfidence(c float64) float64 {
	if c <= 0 || c > 1 {
		return 1
	}
	return c
}

// isReduceOnly reports whether the request can only shrink an existing
// position: an explicit quantity, on the opposite side, no larger than what
// is open. These are admitted even while the breaker is tripped, because
// blocking an exit would hold losses open.
func (e *Engine) isReduceOnly(req OrderRequest) bool {
	if !req.Quantity.IsPositive() {
		return false
	}
	pos, ok := e.positions[req.Symbol]
	if !ok {
		return false
	}
	if req.Side != closingSide(pos.Side) {
		return false
	}
	return req.Quantity.LessThanOrEqual(pos.Quantity)
}

// newOrder constructs the engine-owned order for an admitted request.
// Requests carrying a stop-loss or take-profit become BRACKET orders;
// everything else is a plain MARKET order. Paper trading has no resting
// book, so LIMIT and STOP orders are never produced.
func (e *Engine) newOrder(req OrderRequest, quantity decimal.Decimal) *Order {
	kind := KindMarket
	if req.StopLoss != nil || req.TakeProfit != nil {
		kind = KindBracket
	}
	return &Order{
		Symbol:     req.Symbol,
		Side:       req.Side,
		Kind:       kind,
		Quantity:   quantity,
		StopLoss:   cloneDecimal(req.StopLoss),
		TakeProfit: cloneDecimal(req.TakeProfit),
		Status:     StatusPending,
		CreatedAt:  e.now(),
		Confidence: normalizeConfidence(req.Confidence),
	}
}

// nextOrderID mints the next counter-based order ID. Only admitted orders
// reach this point, so the counter equals the number of fills.
func (e *Engine) nextOrderID() string {
	e.orderCounter++
	return fmt.Sprintf("ORD-%06d", e.orderCounter)
}

func (e *Engine) nextTradeID() string {
	return fmt.Sprintf("TRD-%06d", len(e.trades)+1)
}
