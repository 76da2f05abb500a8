package model

import "time"

const (
	AccountStatusActive = "active"
	AccountStatusPaused = "paused"
)

// Account is the ledger state for one trading agent, keyed by its owner name.
// Accounts are created lazily on first reference and never deleted.
type Account struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Owner          string    `gorm:"size:50;not null;uniqueIndex" json:"owner"`
	Cash           float64   `json:"cash"`
	InitialCapital float64   `json:"initial_capital"`
	TotalEquity    float64   `json:"total_equity"`
	TotalPnl       float64   `json:"total_pnl"`
	TotalReturn    float64   `json:"total_return"`
	PeakEquity     float64   `json:"peak_equity"`
	MaxDrawdown    float64   `json:"max_drawdown"`
	Status         string    `gorm:"size:10;not null;default:active" json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}
