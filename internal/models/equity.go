package models

import "gorm.io/gorm"

// EquityPoint is one sample of the account equity curve, journaled on each
// valuation tick.
type EquityPoint struct {
	gorm.Model
	Cash       float64 `json:"cash"`
	Equity     float64 `json:"equity"`
	Realized   float64 `json:"realized"`
	Unrealized float64 `json:"unrealized"`
	Positions  int     `json:"positions"`
	Timestamp  int64   `json:"timestamp"`
}
