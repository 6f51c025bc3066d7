package paper

import (
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// circuitBreaker gates new order admission. Two states, NORMAL and TRIPPED.
// It trips when the losing-close streak reaches maxConsecutiveLosses or when
// the day's realized P&L falls to -maxDailyLossFraction of current capital.
// The date of the last counter reset is kept as a plain YYYY-MM-DD string so
// it compares and serializes without timezone games. All methods are called
// with the engine lock held.
type circuitBreaker struct {
	maxConsecutiveLosses int
	maxDailyLossFraction decimal.Decimal

	state             BreakerState
	consecutiveLosses int
	dailyPnL          decimal.Decimal
	lastResetDate     string
}

func newCircuitBreaker(maxLosses int, maxDailyLossFraction decimal.Decimal, today string) *circuitBreaker {
	return &circuitBreaker{
		maxConsecutiveLosses: maxLosses,
		maxDailyLossFraction: maxDailyLossFraction,
		state:                BreakerNormal,
		lastResetDate:        today,
	}
}

func (b *circuitBreaker) tripped() bool {
	return b.state == BreakerTripped
}

// maybeDailyReset clears the counters and un-trips the breaker on the first
// order attempt of a new calendar day. Returns whether a reset happened.
func (b *circuitBreaker) maybeDailyReset(today string) bool {
	if today == b.lastResetDate {
		return false
	}
	b.consecutiveLosses = 0
	b.dailyPnL = decimal.Zero
	b.state = BreakerNormal
	b.lastResetDate = today
	return true
}

// recordClose feeds one closing fill's realized P&L into the counters and
// evaluates both trip conditions against the given current capital. Returns
// true only on the NORMAL to TRIPPED transition.
func (b *circuitBreaker) recordClose(pnl, currentCapital decimal.Decimal) bool {
	if pnl.IsNegative() {
		b.consecutiveLosses++
	} else {
		b.consecutiveLosses = 0
	}
	b.dailyPnL = b.dailyPnL.Add(pnl)

	if b.state == BreakerTripped {
		return false
	}
	lossLimit := currentCapital.Mul(b.maxDailyLossFraction).Neg()
	if b.consecutiveLosses >= b.maxConsecutiveLosses || b.dailyPnL.LessThanOrEqual(lossLimit) {
		b.state = BreakerTripped
		return true
	}
	return false
}

// reset is the manual override: it reopens admission and clears the loss
// streak, but leaves the day's P&L standing since it already happened.
func (b *circuitBreaker) reset() {
	b.state = BreakerNormal
	b.consecutiveLosses = 0
}
