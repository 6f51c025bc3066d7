package oracle

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNoQuote is returned when the price source has no quote for a symbol.
var ErrNoQuote = errors.New("no quote for symbol")

// Oracle is a source of current trade prices. Implementations must be safe
// for concurrent use; Price is a synchronous lookup that either returns a
// usable quote or an error, never a stale silent default.
type Oracle interface {
	// Price returns the current price for one symbol.
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)

	// Prices returns current prices for a set of symbols. Symbols without a
	// quote are omitted from the result rather than failing the whole batch.
	Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}
