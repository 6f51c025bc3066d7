package paper

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/caglarilhan/borsailhanos-sub000/internal/config"
	"github.com/caglarilhan/borsailhanos-sub000/internal/journal"
	"github.com/caglarilhan/borsailhanos-sub000/internal/oracle"
)

func testConfig() *config.Paper {
	return &config.Paper{
		Name:                 "paper-test",
		InitialCapital:       100000,
		CommissionRate:       0.001,
		MaxPositionFraction:  0.10,
		MaxConsecutiveLosses: 3,
		MaxDailyLossFraction: 0.02,
	}
}

// setupEngine creates an engine over a static price oracle. Tests mutate the
// oracle to move the market between orders.
func setupEngine(t *testing.T, cfg *config.Paper, prices map[string]string) (*Engine, *oracle.Static) {
	src, err := oracle.NewStatic(prices)
	assert.NoError(t, err)

	engine, err := NewEngine(zap.NewNop(), cfg, src, journal.Nop{})
	assert.NoError(t, err)

	return engine, src
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func dp(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

// assertDecimal compares by numeric value, since equal decimals can carry
// different exponents.
func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "want %s, got %s", want, got)
}

func TestNewEngine_RejectsBadConfig(t *testing.T) {
	src, err := oracle.NewStatic(nil)
	assert.NoError(t, err)

	cfg := testConfig()
	cfg.InitialCapital = 0
	_, err = NewEngine(zap.NewNop(), cfg, src, journal.Nop{})
	assert.Error(t, err)

	cfg = testConfig()
	cfg.MaxPositionFraction = 1.5
	_, err = NewEngine(zap.NewNop(), cfg, src, journal.Nop{})
	assert.Error(t, err)

	cfg = testConfig()
	cfg.MaxConsecutiveLosses = 0
	_, err = NewEngine(zap.NewNop(), cfg, src, journal.Nop{})
	assert.Error(t, err)

	_, err = NewEngine(zap.NewNop(), testConfig(), nil, journal.Nop{})
	assert.Error(t, err)
}

func TestPlaceOrder_BracketBuy(t *testing.T) {
	// Arrange
	cfg := testConfig()
	cfg.InitialCapital = 100
	engine, _ := setupEngine(t, cfg, map[string]string{"NVDA": "170.0"})

	// Act
	order, err := engine.PlaceOrder(context.Background(), OrderRequest{
		Symbol:     "NVDA",
		Side:       SideBuy,
		Quantity:   d("0.5"),
		StopLoss:   dp("160.0"),
		TakeProfit: dp("180.0"),
	})

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, "ORD-000001", order.ID)
	assert.Equal(t, StatusFilled, order.Status)
	assert.Equal(t, KindBracket, order.Kind)
	assertDecimal(t, "170", order.FilledPrice)
	// Commission = 0.5 * 170 * 0.001 = 0.085, cash = 100 - 85 - 0.085.
	assertDecimal(t, "0.085", order.Commission)
	assertDecimal(t, "14.915", engine.cash)

	positions := engine.Positions()
	assert.Len(t, positions, 1)
	assert.Equal(t, PositionLong, positions[0].Side)
	assertDecimal(t, "0.5", positions[0].Quantity)
	assertDecimal(t, "170", positions[0].EntryPrice)
	assertDecimal(t, "160", *positions[0].StopLoss)
	assertDecimal(t, "180", *positions[0].TakeProfit)

	trades := engine.Trades(0)
	assert.Len(t, trades, 1)
	assert.Equal(t, "TRD-000001", trades[0].ID)
	assert.Equal(t, ReasonSignal, trades[0].Reason)
	assertDecimal(t, "0", trades[0].PnL)
}

func TestPlaceOrder_AutoSize(t *testing.T) {
	// Arrange
	engine, _ := setupEngine(t, testConfig(), map[string]string{"AAPL": "50"})

	// Act: no quantity given, confidence 0.8.
	order, err := engine.PlaceOrder(context.Background(), OrderRequest{
		Symbol:     "AAPL",
		Side:       SideBuy,
		Confidence: 0.8,
	})

	// Assert: value = 100000 * 0.10 * 0.8 = 8000, quantity = 8000 / 50 = 160.
	assert.NoError(t, err)
	assertDecimal(t, "160", order.FilledQuantity)
	assertDecimal(t, "8", order.Commission)
	assertDecimal(t, "91992", engine.cash)
	assert.Equal(t, KindMarket, order.Kind)
}

func TestPlaceOrder_AutoSizeClampedToCash(t *testing.T) {
	// Arrange: a fraction of 1.0 would spend all cash, so the 95% cap binds.
	cfg := testConfig()
	cfg.MaxPositionFraction = 1.0
	engine, _ := setupEngine(t, cfg, map[string]string{"AAPL": "100"})

	// Act
	order, err := engine.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "AAPL",
		Side:   SideBuy,
	})

	// Assert: value = 100000 * 0.95 = 95000, quantity 950, commission 95.
	assert.NoError(t, err)
	assertDecimal(t, "950", order.FilledQuantity)
	assertDecimal(t, "4905", engine.cash)
}

func TestPlaceOrder_Rejections(t *testing.T) {
	prices := map[string]string{"NVDA": "170", "AAPL": "50"}

	t.Run("PriceUnavailable", func(t *testing.T) {
		engine, _ := setupEngine(t, testConfig(), prices)
		_, err := engine.PlaceOrder(context.Background(), OrderRequest{
			Symbol: "UNKNOWN", Side: SideBuy, Quantity: d("1"),
		})
		assert.ErrorIs(t, err, ErrPriceUnavailable)
	})

	t.Run("InsufficientFunds", func(t *testing.T) {
		engine, _ := setupEngine(t, testConfig(), prices)
		_, err := engine.PlaceOrder(context.Background(), OrderRequest{
			Symbol: "NVDA", Side: SideBuy, Quantity: d("1000"),
		})
		assert.ErrorIs(t, err, ErrInsufficientFunds)
	})

	t.Run("NegativeQuantity", func(t *testing.T) {
		engine, _ := setupEngine(t, testConfig(), prices)
		_, err := engine.PlaceOrder(context.Background(), OrderRequest{
			Symbol: "NVDA", Side: SideBuy, Quantity: d("-1"),
		})
		assert.ErrorIs(t, err, ErrInvalidQuantity)
	})

	t.Run("DuplicatePositionOnAutoSize", func(t *testing.T) {
		engine, _ := setupEngine(t, testConfig(), prices)
		_, err := engine.PlaceOrder(context.Background(), OrderRequest{
			Symbol: "NVDA", Side: SideBuy, Quantity: d("1"),
		})
		assert.NoError(t, err)

		// Auto-sized re-entry on an occupied symbol is refused.
		_, err = engine.PlaceOrder(context.Background(), OrderRequest{
			Symbol: "NVDA", Side: SideBuy,
		})
		assert.ErrorIs(t, err, ErrDuplicatePosition)
	})

	t.Run("UnknownSide", func(t *testing.T) {
		engine, _ := setupEngine(t, testConfig(), prices)
		_, err := engine.PlaceOrder(context.Background(), OrderRequest{
			Symbol: "NVDA", Side: "HOLD", Quantity: d("1"),
		})
		assert.Error(t, err)
	})
}

func TestPlaceOrder_RejectionMutatesNothing(t *testing.T) {
	// Arrange
	engine, _ := setupEngine(t, testConfig(), map[string]string{"NVDA": "170"})
	_, err := engine.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "NVDA", Side: SideBuy, Quantity: d("1"),
	})
	assert.NoError(t, err)
	cashBefore := engine.cash

	// Act: a rejected order.
	_, err = engine.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "NVDA", Side: SideBuy, Quantity: d("100000"),
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// Assert: cash, orders, and trades are untouched; the next admitted
	// order gets the next ID, so rejections consume no IDs.
	assertDecimal(t, cashBefore.String(), engine.cash)
	assert.Len(t, engine.orders, 1)
	assert.Len(t, engine.trades, 1)

	order, err := engine.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "NVDA", Side: SideBuy, Quantity: d("1"),
	})
	assert.NoError(t, err)
	assert.Equal(t, "ORD-000002", order.ID)
}

func TestApplyFill_WeightedAverageEntry(t *testing.T) {
	// Arrange
	engine, src := setupEngine(t, testConfig(), map[string]string{"BTC": "100"})
	ctx := context.Background()

	// Act: add 1 at 100, then 1 at 110.
	_, err := engine.PlaceOrder(ctx, OrderRequest{Symbol: "BTC", Side: SideBuy, Quantity: d("1")})
	assert.NoError(t, err)
	src.Set("BTC", d("110"))
	_, err = engine.PlaceOrder(ctx, OrderRequest{Symbol: "BTC", Side: SideBuy, Quantity: d("1")})
	assert.NoError(t, err)

	// Assert: entry = (1*100 + 1*110) / 2 = 105.
	positions := engine.Positions()
	assert.Len(t, positions, 1)
	assertDecimal(t, "2", positions[0].Quantity)
	assertDecimal(t, "105", positions[0].EntryPrice)
}

func TestApplyFill_ReduceThenClose(t *testing.T) {
	// Arrange
	engine, src := setupEngine(t, testConfig(), map[string]string{"BTC": "100"})
	ctx := context.Background()
	_, err := engine.PlaceOrder(ctx, OrderRequest{Symbol: "BTC", Side: SideBuy, Quantity: d("2")})
	assert.NoError(t, err)
	src.Set("BTC", d("110"))

	// Act: sell half, then the rest.
	_, err = engine.PlaceOrder(ctx, OrderRequest{Symbol: "BTC", Side: SideSell, Quantity: d("1")})
	assert.NoError(t, err)

	positions := engine.Positions()
	assert.Len(t, positions, 1)
	assertDecimal(t, "1", positions[0].Quantity)
	assertDecimal(t, "10", positions[0].RealizedPnL)

	_, err = engine.PlaceOrder(ctx, OrderRequest{Symbol: "BTC", Side: SideSell, Quantity: d("1")})
	assert.NoError(t, err)

	// Assert: the position is destroyed at quantity zero.
	assert.Empty(t, engine.Positions())
	assertDecimal(t, "20", engine.realizedPnL)

	trades := engine.Trades(0)
	assert.Len(t, trades, 3)
	assertDecimal(t, "0", trades[0].PnL)
	assertDecimal(t, "10", trades[1].PnL)
	assertDecimal(t, "10", trades[2].PnL)
}

func TestApplyFill_FlipLongToShort(t *testing.T) {
	// Arrange
	engine, src := setupEngine(t, testConfig(), map[string]string{"BTC": "100"})
	ctx := context.Background()
	_, err := engine.PlaceOrder(ctx, OrderRequest{Symbol: "BTC", Side: SideBuy, Quantity: d("1")})
	assert.NoError(t, err)
	src.Set("BTC", d("110"))

	// Act: sell 3 against a long of 1. The long closes, the remainder of 2
	// opens a short at the fill price.
	_, err = engine.PlaceOrder(ctx, OrderRequest{Symbol: "BTC", Side: SideSell, Quantity: d("3")})
	assert.NoError(t, err)

	// Assert
	positions := engine.Positions()
	assert.Len(t, positions, 1)
	assert.Equal(t, PositionShort, positions[0].Side)
	assertDecimal(t, "2", positions[0].Quantity)
	assertDecimal(t, "110", positions[0].EntryPrice)
	assertDecimal(t, "10", engine.realizedPnL)

	// One fill, one trade, even though the flip decomposed internally.
	trades := engine.Trades(0)
	assert.Len(t, trades, 2)
	assertDecimal(t, "10", trades[1].PnL)
}

func TestApplyFill_ShortOpenAndCover(t *testing.T) {
	// Arrange
	engine, src := setupEngine(t, testConfig(), map[string]string{"BTC": "100"})
	ctx := context.Background()

	// Act: open a short with a sell, cover lower.
	_, err := engine.PlaceOrder(ctx, OrderRequest{Symbol: "BTC", Side: SideSell, Quantity: d("1")})
	assert.NoError(t, err)

	positions := engine.Positions()
	assert.Len(t, positions, 1)
	assert.Equal(t, PositionShort, positions[0].Side)
	// Proceeds 100 minus commission 0.1 land in cash.
	assertDecimal(t, "100099.9", engine.cash)

	src.Set("BTC", d("90"))
	_, err = engine.PlaceOrder(ctx, OrderRequest{Symbol: "BTC", Side: SideBuy, Quantity: d("1")})
	assert.NoError(t, err)

	// Assert: pnl = (100 - 90) * 1 = 10, cover costs 90 + 0.09.
	assert.Empty(t, engine.Positions())
	assertDecimal(t, "10", engine.realizedPnL)
	assertDecimal(t, "100009.81", engine.cash)
}

func TestCashConservation(t *testing.T) {
	// Arrange
	engine, src := setupEngine(t, testConfig(), map[string]string{"ETH": "2000"})
	ctx := context.Background()

	// Act: buy 2 @ 2000, buy 2 @ 2100, sell 4 @ 2200.
	_, err := engine.PlaceOrder(ctx, OrderRequest{Symbol: "ETH", Side: SideBuy, Quantity: d("2")})
	assert.NoError(t, err)
	src.Set("ETH", d("2100"))
	_, err = engine.PlaceOrder(ctx, OrderRequest{Symbol: "ETH", Side: SideBuy, Quantity: d("2")})
	assert.NoError(t, err)
	src.Set("ETH", d("2200"))
	_, err = engine.PlaceOrder(ctx, OrderRequest{Symbol: "ETH", Side: SideSell, Quantity: d("4")})
	assert.NoError(t, err)

	// Assert: cash = 100000 - 4000 - 4 - 4200 - 4.2 + 8800 - 8.8, exactly.
	assertDecimal(t, "100583", engine.cash)
	assert.Empty(t, engine.Positions())
	// Entry averaged to 2050, so realized pnl = (2200 - 2050) * 4 = 600.
	assertDecimal(t, "600", engine.realizedPnL)
}

func TestPortfolioSummary(t *testing.T) {
	// Arrange
	cfg := testConfig()
	cfg.InitialCapital = 100
	engine, _ := setupEngine(t, cfg, map[string]string{"NVDA": "170"})
	_, err := engine.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "NVDA", Side: SideBuy, Quantity: d("0.5"),
	})
	assert.NoError(t, err)

	// Act
	summary := engine.PortfolioSummary()

	// Assert: equity = 14.915 cash + 85 marked value; the commission is the
	// only loss so far.
	assertDecimal(t, "100", summary.InitialCapital)
	assertDecimal(t, "14.915", summary.AvailableCash)
	assertDecimal(t, "99.915", summary.PortfolioValue)
	assertDecimal(t, "-0.085", summary.TotalPnL)
	assertDecimal(t, "0", summary.UnrealizedPnL)
	assertDecimal(t, "0", summary.RealizedPnL)
	assertDecimal(t, "-0.085", summary.TotalReturnPct)
	assert.Equal(t, 1, summary.PositionsCount)
	assert.Equal(t, 1, summary.TradesCount)
	assert.Equal(t, BreakerNormal, summary.BreakerState)
}

func TestTrades_Limit(t *testing.T) {
	// Arrange
	engine, _ := setupEngine(t, testConfig(), map[string]string{"BTC": "100"})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := engine.PlaceOrder(ctx, OrderRequest{Symbol: "BTC", Side: SideBuy, Quantity: d("1")})
		assert.NoError(t, err)
	}

	// Act
	trades := engine.Trades(2)

	// Assert: the last two, oldest first.
	assert.Len(t, trades, 2)
	assert.Equal(t, "TRD-000002", trades[0].ID)
	assert.Equal(t, "TRD-000003", trades[1].ID)
}

func TestPositions_ReturnsDetachedCopies(t *testing.T) {
	// Arrange
	engine, _ := setupEngine(t, testConfig(), map[string]string{"BTC": "100", "AAPL": "50"})
	ctx := context.Background()
	_, err := engine.PlaceOrder(ctx, OrderRequest{Symbol: "BTC", Side: SideBuy, Quantity: d("1"), StopLoss: dp("90")})
	assert.NoError(t, err)
	_, err = engine.PlaceOrder(ctx, OrderRequest{Symbol: "AAPL", Side: SideBuy, Quantity: d("1")})
	assert.NoError(t, err)

	// Act
	positions := engine.Positions()

	// Assert: sorted by symbol, and mutating the copy leaves the ledger alone.
	assert.Equal(t, "AAPL", positions[0].Symbol)
	assert.Equal(t, "BTC", positions[1].Symbol)

	positions[1].Quantity = d("999")
	*positions[1].StopLoss = d("1")
	assertDecimal(t, "1", engine.positions["BTC"].Quantity)
	assertDecimal(t, "90", *engine.positions["BTC"].StopLoss)
}
