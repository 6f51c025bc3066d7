package journal

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/caglarilhan/borsailhanos-sub000/internal/models"
)

// Store persists the trading history to the journal database. Trades and
// equity points are append-only; snapshots keep one row per capture so the
// account can be restored after a restart.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ Recorder = (*Store)(nil)

func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.Named("journal"),
	}
}

func (s *Store) RecordTrade(trade models.Trade) error {
	if err := s.db.Create(&trade).Error; err != nil {
		s.logger.Error("Failed to record trade",
			zap.String("trade_id", trade.TradeID),
			zap.Error(err))
		return err
	}
	return nil
}

func (s *Store) RecordEquity(point models.EquityPoint) error {
	if err := s.db.Create(&point).Error; err != nil {
		s.logger.Error("Failed to record equity point", zap.Error(err))
		return err
	}
	return nil
}

// SaveSnapshot stores a serialized account snapshot. Older snapshots are
// kept so a bad capture never destroys the last good one.
func (s *Store) SaveSnapshot(account string, takenAt time.Time, data []byte) error {
	snap := models.Snapshot{
		Account: account,
		TakenAt: takenAt.Unix(),
		Data:    data,
	}
	if err := s.db.Create(&snap).Error; err != nil {
		s.logger.Error("Failed to save snapshot",
			zap.String("account", account),
			zap.Error(err))
		return err
	}
	return nil
}

// LatestSnapshot returns the most recent snapshot payload for the account.
// Callers should check gorm.ErrRecordNotFound for the first-boot case.
func (s *Store) LatestSnapshot(account string) ([]byte, error) {
	var snap models.Snapshot
	err := s.db.
		Where("account = ?", account).
		Order("taken_at desc").
		First(&snap).Error
	if err != nil {
		return nil, err
	}
	return snap.Data, nil
}

// RecentTrades returns up to limit trades, newest first.
func (s *Store) RecentTrades(limit int) ([]models.Trade, error) {
	var trades []models.Trade
	err := s.db.
		Order("timestamp desc").
		Limit(limit).
		Find(&trades).Error
	if err != nil {
		return nil, err
	}
	return trades, nil
}

// StatsDetail aggregates closing trades over one window.
type StatsDetail struct {
	TotalTrades      int     `json:"total_trades"`
	ProfitableTrades int     `json:"profitable_trades"`
	WinRate          float64 `json:"win_rate"`
	TotalProfit      float64 `json:"total_profit"`
}

// Statistics is the journal-backed performance report.
type Statistics struct {
	Since24h StatsDetail `json:"since_24h"`
	AllTime  StatsDetail `json:"all_time"`
}

// Stats computes win rate and total profit over the last 24 hours and over
// the whole journal. Only closing trades carry profit, so rows with a zero
// profit are skipped.
func (s *Store) Stats(now time.Time) (Statistics, error) {
	var trades []models.Trade
	err := s.db.
		Where("profit <> ?", 0).
		Order("timestamp asc").
		Find(&trades).Error
	if err != nil {
		return Statistics{}, err
	}

	cutoff := now.Add(-24 * time.Hour).Unix()
	var stats Statistics
	for _, trade := range trades {
		accumulate(&stats.AllTime, trade)
		if trade.Timestamp >= cutoff {
			accumulate(&stats.Since24h, trade)
		}
	}
	finalize(&stats.AllTime)
	finalize(&stats.Since24h)
	return stats, nil
}

func accumulate(d *StatsDetail, trade models.Trade) {
	d.TotalTrades++
	d.TotalProfit += trade.Profit
	if trade.Profit > 0 {
		d.ProfitableTrades++
	}
}

func finalize(d *StatsDetail) {
	if d.TotalTrades > 0 {
		d.WinRate = float64(d.ProfitableTrades) / float64(d.TotalTrades) * 100
	}
}
