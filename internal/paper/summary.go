package paper

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PortfolioSummary values the account at the last known marks. It is a pure
// read and never fires stop/take exits; call Tick first for fresh marks.
func (e *Engine) PortfolioSummary() PortfolioSummary {
	e.mu.RLock()
	defer e.mu.RUnlock()

	equity := e.equity()
	totalPnL := equity.Sub(e.initialCapital)
	returnPct := decimal.Zero
	if e.initialCapital.IsPositive() {
		returnPct = totalPnL.Div(e.initialCapital).Mul(hundred)
	}

	return PortfolioSummary{
		InitialCapital: e.initialCapital,
		AvailableCash:  e.cash,
		PortfolioValue: equity,
		TotalPnL:       totalPnL,
		UnrealizedPnL:  e.unrealizedTotal(),
		RealizedPnL:    e.realizedPnL,
		TotalReturnPct: returnPct,
		PositionsCount: len(e.positions),
		TradesCount:    len(e.trades),
		BreakerState:   e.breaker.state,
	}
}
