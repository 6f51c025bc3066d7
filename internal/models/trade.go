package models

import "gorm.io/gorm"

// Trade represents one ledger fill journaled to the database.
// Rows are reporting copies; the authoritative record is the ledger snapshot.
type Trade struct {
	gorm.Model
	TradeID    string  `gorm:"uniqueIndex" json:"trade_id"`
	OrderID    string  `json:"order_id"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"` // "BUY" or "SELL"
	Price      float64 `json:"price"`
	Quantity   float64 `json:"quantity"`
	Commission float64 `json:"commission"`
	Profit     float64 `json:"profit"` // realized delta; zero for opening fills
	Reason     string  `json:"reason"` // SIGNAL, STOP_LOSS or TAKE_PROFIT
	Timestamp  int64   `json:"timestamp"`
}
