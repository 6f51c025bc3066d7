package models

import "gorm.io/gorm"

// Snapshot stores one serialized ledger state document. The newest row per
// account is restored on service start.
type Snapshot struct {
	gorm.Model
	Account string `gorm:"index" json:"account"`
	TakenAt int64  `json:"taken_at"`
	Data    []byte `json:"-"`
}
