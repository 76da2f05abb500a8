package model

import "time"

// HistorySnapshot is one append-only equity observation for an account.
// Written by the history recorder on its cadence, or regenerated wholesale
// by the replay engine.
type HistorySnapshot struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	AccountID     uint      `gorm:"index" json:"account_id"`
	Timestamp     time.Time `gorm:"index" json:"timestamp"`
	TotalEquity   float64   `json:"total_equity"`
	Cash          float64   `json:"cash"`
	PositionValue float64   `json:"position_value"`
	LongExposure  float64   `json:"long_exposure"`
	ShortExposure float64   `json:"short_exposure"`
	TotalQuantity float64   `json:"total_quantity"`
	AvgLeverage   float64   `json:"avg_leverage"`
	Pnl           float64   `json:"pnl"`
	PnlPercent    float64   `json:"pnl_percent"`
	CreatedAt     time.Time `json:"created_at"`
}

func (HistorySnapshot) TableName() string {
	return "history_snapshots"
}
