package paper

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// isoTime is time.Time with a tolerant ISO-8601 decoder. Snapshots are
// written as RFC 3339 UTC, but the float-era writer produced naive local
// timestamps without a zone and those must keep loading.
type isoTime struct {
	time.Time
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t isoTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *isoTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range isoLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

// The snapshot document layout. Decimals marshal as quoted strings but also
// decode from bare JSON numbers, so documents written by the float-era
// ledger load unchanged.
type snapshotFile struct {
	InitialCapital       decimal.Decimal             `json:"initial_capital"`
	CurrentCapital       decimal.Decimal             `json:"current_capital"`
	AvailableCash        decimal.Decimal             `json:"available_cash"`
	Orders               map[string]snapshotOrder    `json:"orders"`
	Positions            map[string]snapshotPosition `json:"positions"`
	Trades               []snapshotTrade             `json:"trades"`
	CircuitBreakerActive bool                        `json:"circuit_breaker_active"`
	ConsecutiveLosses    int                         `json:"consecutive_losses"`
	DailyPnL             decimal.Decimal             `json:"daily_pnl"`
	LastResetDate        string                      `json:"last_reset_date"`
	OrderCounter         int                         `json:"order_counter"`
	Timestamp            isoTime                     `json:"timestamp"`
}

type snapshotOrder struct {
	ID             string           `json:"id"`
	Symbol         string           `json:"symbol"`
	Side           OrderSide        `json:"side"`
	Kind           OrderKind        `json:"kind"`
	Quantity       decimal.Decimal  `json:"quantity"`
	LimitPrice     *decimal.Decimal `json:"limit_price,omitempty"`
	StopLoss       *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit     *decimal.Decimal `json:"take_profit,omitempty"`
	Status         OrderStatus      `json:"status"`
	CreatedAt      isoTime          `json:"created_at"`
	FilledAt       *isoTime         `json:"filled_at,omitempty"`
	FilledPrice    decimal.Decimal  `json:"filled_price"`
	FilledQuantity decimal.Decimal  `json:"filled_quantity"`
	Commission     decimal.Decimal  `json:"commission"`
	Confidence     float64          `json:"confidence"`
}

type snapshotPosition struct {
	Symbol        string           `json:"symbol"`
	Side          PositionSide     `json:"side"`
	Quantity      decimal.Decimal  `json:"quantity"`
	EntryPrice    decimal.Decimal  `json:"entry_price"`
	CurrentPrice  decimal.Decimal  `json:"current_price"`
	UnrealizedPnL decimal.Decimal  `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal  `json:"realized_pnl"`
	StopLoss      *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit    *decimal.Decimal `json:"take_profit,omitempty"`
	CreatedAt     isoTime          `json:"created_at"`
	UpdatedAt     isoTime          `json:"updated_at"`
}

type snapshotTrade struct {
	ID         string          `json:"id"`
	OrderID    string          `json:"order_id,omitempty"`
	Symbol     string          `json:"symbol"`
	Side       OrderSide       `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Commission decimal.Decimal `json:"commission"`
	PnL        decimal.Decimal `json:"pnl"`
	Reason     CloseReason     `json:"reason,omitempty"`
	Timestamp  isoTime         `json:"timestamp"`
}

// Snapshot serializes the whole ledger into the persisted JSON document.
func (e *Engine) Snapshot() ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	file := snapshotFile{
		InitialCapital:       e.initialCapital,
		CurrentCapital:       e.equity(),
		AvailableCash:        e.cash,
		Orders:               make(map[string]snapshotOrder, len(e.orders)),
		Positions:            make(map[string]snapshotPosition, len(e.positions)),
		Trades:               make([]snapshotTrade, 0, len(e.trades)),
		CircuitBreakerActive: e.breaker.tripped(),
		ConsecutiveLosses:    e.breaker.consecutiveLosses,
		DailyPnL:             e.breaker.dailyPnL,
		LastResetDate:        e.breaker.lastResetDate,
		OrderCounter:         e.orderCounter,
		Timestamp:            isoTime{e.now()},
	}
	for id, order := range e.orders {
		file.Orders[id] = encodeOrder(order)
	}
	for symbol, pos := range e.positions {
		file.Positions[symbol] = encodePosition(pos)
	}
	for _, trade := range e.trades {
		file.Trades = append(file.Trades, encodeTrade(trade))
	}

	data, err := json.Marshal(file)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize snapshot: %w", err)
	}
	return data, nil
}

// Restore replaces the ledger state with a previously saved snapshot. It
// fails closed: any malformed document, unknown enum value, or impossible
// quantity aborts the restore with ErrSnapshotInvalid and leaves the current
// state untouched. Breaker limits stay as configured; only its counters and
// state come from the snapshot.
func (e *Engine) Restore(data []byte) error {
	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotInvalid, err)
	}
	if err := file.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotInvalid, err)
	}

	positions := make(map[string]*Position, len(file.Positions))
	for symbol, sp := range file.Positions {
		positions[symbol] = decodePosition(symbol, sp)
	}
	orders := make(map[string]*Order, len(file.Orders))
	for id, so := range file.Orders {
		orders[id] = decodeOrder(id, so)
	}
	trades := make([]Trade, 0, len(file.Trades))
	realized := decimal.Zero
	for _, st := range file.Trades {
		trade := decodeTrade(st)
		trades = append(trades, trade)
		realized = realized.Add(trade.PnL)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.initialCapital = file.InitialCapital
	e.cash = file.AvailableCash
	e.positions = positions
	e.orders = orders
	e.trades = trades
	e.realizedPnL = realized
	e.orderCounter = file.OrderCounter
	e.breaker.consecutiveLosses = file.ConsecutiveLosses
	e.breaker.dailyPnL = file.DailyPnL
	e.breaker.lastResetDate = file.LastResetDate
	if file.CircuitBreakerActive {
		e.breaker.state = BreakerTripped
	} else {
		e.breaker.state = BreakerNormal
	}

	e.logger.Info("Ledger restored from snapshot",
		zap.String("cash", e.cash.String()),
		zap.Int("positions", len(e.positions)),
		zap.Int("trades", len(e.trades)),
		zap.Bool("breaker_tripped", file.CircuitBreakerActive))
	return nil
}

func (f *snapshotFile) validate() error {
	if !f.InitialCapital.IsPositive() {
		return fmt.Errorf("initial capital %s is not positive", f.InitialCapital)
	}
	if f.ConsecutiveLosses < 0 {
		return fmt.Errorf("negative consecutive losses %d", f.ConsecutiveLosses)
	}
	if f.OrderCounter < 0 {
		return fmt.Errorf("negative order counter %d", f.OrderCounter)
	}
	if _, err := time.Parse(dateLayout, f.LastResetDate); err != nil {
		return fmt.Errorf("bad last reset date %q", f.LastResetDate)
	}
	for symbol, sp := range f.Positions {
		if sp.Symbol != "" && sp.Symbol != symbol {
			return fmt.Errorf("position key %q does not match symbol %q", symbol, sp.Symbol)
		}
		if !sp.Side.valid() {
			return fmt.Errorf("position %s: unknown side %q", symbol, sp.Side)
		}
		if !sp.Quantity.IsPositive() {
			return fmt.Errorf("position %s: non-positive quantity %s", symbol, sp.Quantity)
		}
		if !sp.EntryPrice.IsPositive() {
			return fmt.Errorf("position %s: non-positive entry price %s", symbol, sp.EntryPrice)
		}
	}
	for id, so := range f.Orders {
		if so.ID != "" && so.ID != id {
			return fmt.Errorf("order key %q does not match id %q", id, so.ID)
		}
		if !so.Side.valid() {
			return fmt.Errorf("order %s: unknown side %q", id, so.Side)
		}
		if !so.Kind.valid() {
			return fmt.Errorf("order %s: unknown kind %q", id, so.Kind)
		}
		if !so.Status.valid() {
			return fmt.Errorf("order %s: unknown status %q", id, so.Status)
		}
		if !so.Quantity.IsPositive() {
			return fmt.Errorf("order %s: non-positive quantity %s", id, so.Quantity)
		}
	}
	for i, st := range f.Trades {
		if !st.Side.valid() {
			return fmt.Errorf("trade %d: unknown side %q", i, st.Side)
		}
		if !st.Quantity.IsPositive() {
			return fmt.Errorf("trade %d: non-positive quantity %s", i, st.Quantity)
		}
		if !st.Price.IsPositive() {
			return fmt.Errorf("trade %d: non-positive price %s", i, st.Price)
		}
		if st.Reason != "" && st.Reason != ReasonSignal && st.Reason != ReasonStopLoss && st.Reason != ReasonTakeProfit {
			return fmt.Errorf("trade %d: unknown reason %q", i, st.Reason)
		}
	}
	return nil
}

func encodeOrder(o *Order) snapshotOrder {
	so := snapshotOrder{
		ID:             o.ID,
		Symbol:         o.Symbol,
		Side:           o.Side,
		Kind:           o.Kind,
		Quantity:       o.Quantity,
		LimitPrice:     o.LimitPrice,
		StopLoss:       o.StopLoss,
		TakeProfit:     o.TakeProfit,
		Status:         o.Status,
		CreatedAt:      isoTime{o.CreatedAt},
		FilledPrice:    o.FilledPrice,
		FilledQuantity: o.FilledQuantity,
		Commission:     o.Commission,
		Confidence:     o.Confidence,
	}
	if o.FilledAt != nil {
		so.FilledAt = &isoTime{*o.FilledAt}
	}
	return so
}

func decodeOrder(id string, so snapshotOrder) *Order {
	o := &Order{
		ID:             id,
		Symbol:         so.Symbol,
		Side:           so.Side,
		Kind:           so.Kind,
		Quantity:       so.Quantity,
		LimitPrice:     cloneDecimal(so.LimitPrice),
		StopLoss:       cloneDecimal(so.StopLoss),
		TakeProfit:     cloneDecimal(so.TakeProfit),
		Status:         so.Status,
		CreatedAt:      so.CreatedAt.Time,
		FilledPrice:    so.FilledPrice,
		FilledQuantity: so.FilledQuantity,
		Commission:     so.Commission,
		Confidence:     so.Confidence,
	}
	if so.FilledAt != nil {
		t := so.FilledAt.Time
		o.FilledAt = &t
	}
	return o
}

func encodePosition(p *Position) snapshotPosition {
	return snapshotPosition{
		Symbol:        p.Symbol,
		Side:          p.Side,
		Quantity:      p.Quantity,
		EntryPrice:    p.EntryPrice,
		CurrentPrice:  p.CurrentPrice,
		UnrealizedPnL: p.UnrealizedPnL,
		RealizedPnL:   p.RealizedPnL,
		StopLoss:      p.StopLoss,
		TakeProfit:    p.TakeProfit,
		CreatedAt:     isoTime{p.CreatedAt},
		UpdatedAt:     isoTime{p.UpdatedAt},
	}
}

func decodePosition(symbol string, sp snapshotPosition) *Position {
	current := sp.CurrentPrice
	if !current.IsPositive() {
		// Older documents did not always carry a mark.
		current = sp.EntryPrice
	}
	return &Position{
		Symbol:        symbol,
		Side:          sp.Side,
		Quantity:      sp.Quantity,
		EntryPrice:    sp.EntryPrice,
		CurrentPrice:  current,
		UnrealizedPnL: sp.UnrealizedPnL,
		RealizedPnL:   sp.RealizedPnL,
		StopLoss:      cloneDecimal(sp.StopLoss),
		TakeProfit:    cloneDecimal(sp.TakeProfit),
		CreatedAt:     sp.CreatedAt.Time,
		UpdatedAt:     sp.UpdatedAt.Time,
	}
}

func encodeTrade(t Trade) snapshotTrade {
	return snapshotTrade{
		ID:         t.ID,
		OrderID:    t.OrderID,
		Symbol:     t.Symbol,
		Side:       t.Side,
		Quantity:   t.Quantity,
		Price:      t.Price,
		Commission: t.Commission,
		PnL:        t.PnL,
		Reason:     t.Reason,
		Timestamp:  isoTime{t.Timestamp},
	}
}

func decodeTrade(st snapshotTrade) Trade {
	return Trade{
		ID:         st.ID,
		OrderID:    st.OrderID,
		Symbol:     st.Symbol,
		Side:       st.Side,
		Quantity:   st.Quantity,
		Price:      st.Price,
		Commission: st.Commission,
		PnL:        st.PnL,
		Reason:     st.Reason,
		Timestamp:  st.Timestamp.Time,
	}
}
