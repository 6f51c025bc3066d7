package journal

import (
	"github.com/caglarilhan/borsailhanos-sub000/internal/models"
)

// Recorder receives fills and equity samples as the ledger produces them.
// Implementations must tolerate being called from inside the ledger's
// critical section: keep writes quick and never call back into the engine.
type Recorder interface {
	RecordTrade(models.Trade) error
	RecordEquity(models.EquityPoint) error
}

// Nop is a Recorder that drops everything. Used in tests and when the
// journal database is disabled.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) RecordTrade(models.Trade) error        { return nil }
func (Nop) RecordEquity(models.EquityPoint) error { return nil }
