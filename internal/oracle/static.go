package oracle

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Static is a fixed in-memory price oracle. It backs the "static" provider
// mode for offline runs and stands in for the HTTP client in tests.
type Static struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

var _ Oracle = (*Static)(nil)

// NewStatic creates a static oracle from a symbol -> price map of decimal strings.
func NewStatic(prices map[string]string) (*Static, error) {
	s := &Static{prices: make(map[string]decimal.Decimal, len(prices))}
	for symbol, raw := range prices {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid static price %q for %s: %w", raw, symbol, err)
		}
		s.prices[symbol] = price
	}
	return s, nil
}

// Set updates the quote for a symbol.
func (s *Static) Set(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

// Delete removes the quote for a symbol, simulating a dead listing.
func (s *Static) Delete(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prices, symbol)
}

// Price returns the stored quote for symbol, or ErrNoQuote.
func (s *Static) Price(_ context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.prices[symbol]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrNoQuote, symbol)
	}
	return price, nil
}

// Prices returns the stored quotes for the requested symbols, omitting misses.
func (s *Static) Prices(_ context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prices := make(map[string]decimal.Decimal, len(symbols))
	for _, symbol := range symbols {
		if price, ok := s.prices[symbol]; ok {
			prices[symbol] = price
		}
	}
	return prices, nil
}
