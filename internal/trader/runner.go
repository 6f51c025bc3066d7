package trader

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/caglarilhan/borsailhanos-sub000/internal/config"
	"github.com/caglarilhan/borsailhanos-sub000/internal/paper"
)

// PriceSource supplies bulk quotes for the tick loop.
type PriceSource interface {
	Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// SnapshotStore is the slice of the journal the runner needs.
type SnapshotStore interface {
	SaveSnapshot(account string, takenAt time.Time, data []byte) error
}

// Runner drives the engine's valuation ticks. The ledger itself never runs a
// background thread; this loop fetches quotes for everything being watched or
// held, pushes them through the stop/take monitor, and periodically persists
// a snapshot.
type Runner struct {
	logger *zap.Logger
	cfg    *config.Trader
	engine *paper.Engine
	source PriceSource
	store  SnapshotStore

	tickCount int
}

func NewRunner(logger *zap.Logger, cfg *config.Trader, engine *paper.Engine, source PriceSource, store SnapshotStore) *Runner {
	return &Runner{
		logger: logger.Named("runner"),
		cfg:    cfg,
		engine: engine,
		source: source,
		store:  store,
	}
}

// Run starts the tick loop and blocks until the context is cancelled.
func (r *Runner) Run(ctx context.Context) {
	interval := time.Duration(r.cfg.TickInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("Starting tick loop",
		zap.Duration("interval", interval),
		zap.Strings("watchlist", r.cfg.Symbols))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopping tick runner...")
			return
		case <-ticker.C:
			if err := r.tick(ctx); err != nil {
				r.logger.Error("Tick failed", zap.Error(err))
			}
		}
	}
}

// tick performs one valuation round: fetch quotes, re-mark the book, and let
// the engine fire any stop-loss/take-profit exits.
func (r *Runner) tick(ctx context.Context) error {
	symbols := r.watchedSymbols()
	if len(symbols) == 0 {
		return nil
	}

	prices, err := r.source.Prices(ctx, symbols)
	if err != nil {
		return fmt.Errorf("could not fetch quotes: %w", err)
	}

	events := r.engine.Tick(prices)
	for _, event := range events {
		r.logger.Info("Position closed by risk exit",
			zap.String("symbol", event.Symbol),
			zap.String("reason", string(event.Reason)),
			zap.String("exit_price", event.ExitPrice.String()),
			zap.String("pnl", event.PnL.String()))
	}

	r.tickCount++
	if r.store != nil && r.cfg.SnapshotInterval > 0 && r.tickCount%r.cfg.SnapshotInterval == 0 {
		r.saveSnapshot()
	}
	return nil
}

// watchedSymbols is the configured watchlist plus every symbol with an open
// position, so exits keep working even for symbols dropped from the config.
func (r *Runner) watchedSymbols() []string {
	seen := make(map[string]bool, len(r.cfg.Symbols))
	for _, symbol := range r.cfg.Symbols {
		seen[symbol] = true
	}
	for _, pos := range r.engine.Positions() {
		seen[pos.Symbol] = true
	}
	symbols := make([]string, 0, len(seen))
	for symbol := range seen {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

func (r *Runner) saveSnapshot() {
	data, err := r.engine.Snapshot()
	if err != nil {
		r.logger.Error("Failed to take snapshot", zap.Error(err))
		return
	}
	if err := r.store.SaveSnapshot(r.engine.Name(), time.Now(), data); err != nil {
		r.logger.Error("Failed to persist snapshot", zap.Error(err))
		return
	}
	r.logger.Info("Snapshot persisted", zap.Int("bytes", len(data)))
}
