package paper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/caglarilhan/borsailhanos-sub000/internal/config"
	"github.com/caglarilhan/borsailhanos-sub000/internal/journal"
	"github.com/caglarilhan/borsailhanos-sub000/internal/models"
)

// Engine is the paper-trading ledger for a single simulated account. One
// RWMutex guards all state: every order runs its whole admission pipeline
// (daily reset, breaker gate, price lookup, sizing, funds check, fill, ledger
// update, trade record) under the write lock, so interleaved orders can never
// corrupt the weighted-average entry price or double-spend cash.
type Engine struct {
	mu sync.RWMutex

	logger   *zap.Logger
	oracle   PriceOracle
	recorder journal.Recorder

	id        string
	name      string
	startTime time.Time

	commissionRate      decimal.Decimal
	maxPositionFraction decimal.Decimal

	// now is the clock for fills and the daily reset. Tests replace it.
	now func() time.Time

	initialCapital decimal.Decimal
	cash           decimal.Decimal
	positions      map[string]*Position
	orders         map[string]*Order
	trades         []Trade
	realizedPnL    decimal.Decimal
	orderCounter   int

	breaker *circuitBreaker
}

// NewEngine builds an engine with the full initial capital in cash and the
// circuit breaker in NORMAL state.
func NewEngine(logger *zap.Logger, cfg *config.Paper, oracle PriceOracle, recorder journal.Recorder) (*Engine, error) {
	if oracle == nil {
		return nil, errors.New("price oracle is required")
	}
	if recorder == nil {
		recorder = journal.Nop{}
	}
	initial := decimal.NewFromFloat(cfg.InitialCapital)
	if !initial.IsPositive() {
		return nil, fmt.Errorf("initial capital must be positive, got %v", cfg.InitialCapital)
	}
	commission := decimal.NewFromFloat(cfg.CommissionRate)
	if commission.IsNegative() {
		return nil, fmt.Errorf("commission rate must not be negative, got %v", cfg.CommissionRate)
	}
	fraction := decimal.NewFromFloat(cfg.MaxPositionFraction)
	if !fraction.IsPositive() || fraction.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("max position fraction must be in (0, 1], got %v", cfg.MaxPositionFraction)
	}
	if cfg.MaxConsecutiveLosses < 1 {
		return nil, fmt.Errorf("max consecutive losses must be at least 1, got %d", cfg.MaxConsecutiveLosses)
	}
	dailyFraction := decimal.NewFromFloat(cfg.MaxDailyLossFraction)
	if !dailyFraction.IsPositive() {
		return nil, fmt.Errorf("max daily loss fraction must be positive, got %v", cfg.MaxDailyLossFraction)
	}

	e := &Engine{
		logger:              logger.Named("paper"),
		oracle:              oracle,
		recorder:            recorder,
		id:                  uuid.New().String(),
		name:                cfg.Name,
		startTime:           time.Now(),
		commissionRate:      commission,
		maxPositionFraction: fraction,
		now:                 time.Now,
		initialCapital:      initial,
		cash:                initial,
		positions:           make(map[string]*Position),
		orders:              make(map[string]*Order),
	}
	e.breaker = newCircuitBreaker(cfg.MaxConsecutiveLosses, dailyFraction, e.today())
	return e, nil
}

func (e *Engine) ID() string {
	return e.id
}

func (e *Engine) Name() string {
	return e.name
}

func (e *Engine) StartTime() time.Time {
	return e.startTime
}

func (e *Engine) BreakerState() BreakerState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.breaker.state
}

// PlaceOrder runs one request through the full admission pipeline and fills
// it at the current oracle price. Rejections are returned as the sentinel
// taxonomy and mutate nothing; an admitted order is always returned FILLED.
func (e *Engine) PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if reset := e.breaker.maybeDailyReset(e.today()); reset {
		e.logger.Info("Daily risk counters reset",
			zap.String("date", e.breaker.lastResetDate))
	}

	if req.Symbol == "" {
		return nil, errors.New("symbol is required")
	}
	if !req.Side.valid() {
		return nil, fmt.Errorf("unknown order side %q", req.Side)
	}
	if req.Quantity.IsNegative() {
		return nil, fmt.Errorf("%w: quantity %s", ErrInvalidQuantity, req.Quantity)
	}

	if e.breaker.tripped() && !e.isReduceOnly(req) {
		e.logger.Warn("Order rejected by circuit breaker",
			zap.String("symbol", req.Symbol),
			zap.String("side", string(req.Side)))
		return nil, ErrCircuitBreakerActive
	}

	price, err := e.oracle.Price(ctx, req.Symbol)
	if err != nil {
		e.logger.Warn("Price lookup failed",
			zap.String("symbol", req.Symbol),
			zap.Error(err))
		return nil, fmt.Errorf("%w for %s: %v", ErrPriceUnavailable, req.Symbol, err)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w for %s: non-positive quote %s", ErrPriceUnavailable, req.Symbol, price)
	}

	quantity := req.Quantity
	if quantity.IsZero() {
		quantity, err = e.autoSize(req, price)
		if err != nil {
			return nil, err
		}
	}

	if req.Side == SideBuy {
		notional := quantity.Mul(price)
		cost := notional.Add(notional.Mul(e.commissionRate))
		if cost.GreaterThan(e.cash) {
			return nil, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, cost, e.cash)
		}
	}

	order := e.newOrder(req, quantity)
	closed := e.fill(order, price, ReasonSignal)
	if closed != nil {
		e.logger.Info("Position closed",
			zap.String("symbol", closed.Symbol),
			zap.String("side", string(closed.Side)),
			zap.String("pnl", closed.PnL.String()))
	}
	return cloneOrder(order), nil
}

// ResetCircuitBreaker is the operational override: it reopens order admission
// without waiting for the daily reset.
func (e *Engine) ResetCircuitBreaker() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.breaker.reset()
	e.logger.Warn("Circuit breaker manually reset")
}

// Positions returns copies of all open positions, sorted by symbol.
func (e *Engine) Positions() []Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Position, 0, len(e.positions))
	for _, pos := range e.positions {
		out = append(out, clonePosition(pos))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Trades returns the most recent trades, oldest first, newest last. A limit
// of zero or less returns the whole log.
func (e *Engine) Trades(limit int) []Trade {
	e.mu.RLock()
	defer e.mu.RUnlock()
	start := 0
	if limit > 0 && limit < len(e.trades) {
		start = len(e.trades) - limit
	}
	out := make([]Trade, len(e.trades)-start)
	copy(out, e.trades[start:])
	return out
}

func (e *Engine) today() string {
	return e.now().Format(dateLayout)
}

// recordTrade forwards a fill to the journal. The in-memory ledger stays
// authoritative: a journal failure is logged, never propagated.
func (e *Engine) recordTrade(trade Trade) {
	row := models.Trade{
		TradeID:    trade.ID,
		OrderID:    trade.OrderID,
		Symbol:     trade.Symbol,
		Side:       string(trade.Side),
		Price:      trade.Price.InexactFloat64(),
		Quantity:   trade.Quantity.InexactFloat64(),
		Commission: trade.Commission.InexactFloat64(),
		Profit:     trade.PnL.InexactFloat64(),
		Reason:     string(trade.Reason),
		Timestamp:  trade.Timestamp.Unix(),
	}
	if err := e.recorder.RecordTrade(row); err != nil {
		e.logger.Warn("Trade journal write failed",
			zap.String("trade_id", trade.ID),
			zap.Error(err))
	}
}

func (e *Engine) recordEquity() {
	point := models.EquityPoint{
		Cash:       e.cash.InexactFloat64(),
		Equity:     e.equity().InexactFloat64(),
		Realized:   e.realizedPnL.InexactFloat64(),
		Unrealized: e.unrealizedTotal().InexactFloat64(),
		Positions:  len(e.positions),
		Timestamp:  e.now().Unix(),
	}
	if err := e.recorder.RecordEquity(point); err != nil {
		e.logger.Warn("Equity journal write failed", zap.Error(err))
	}
}
