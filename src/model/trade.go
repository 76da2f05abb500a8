package model

import "time"

const (
	TradeStatusCompleted = "completed"
	TradeStatusFailed    = "failed"

	TradeSideBuy  = "BUY"
	TradeSideSell = "SELL"

	ActionOpenLong  = "OPEN_LONG"
	ActionOpenShort = "OPEN_SHORT"
	ActionClose     = "CLOSE"
)

// Trade is the immutable append-only execution record. Trades are never
// edited after creation; they are the source of truth for replay.
type Trade struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	AccountID  uint      `gorm:"index" json:"account_id"`
	IntentID   string    `gorm:"size:36;index" json:"intent_id"`
	DecisionID *string   `gorm:"size:64;index" json:"decision_id,omitempty"`
	Symbol     string    `gorm:"size:20;not null" json:"symbol"`
	Side       string    `gorm:"size:10;not null" json:"side"`
	ActionType string    `gorm:"size:20" json:"action_type"`
	Direction  string    `gorm:"size:10" json:"direction"`
	Leverage   float64   `json:"leverage"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	Fee        float64   `json:"fee"`
	Notional   float64   `json:"notional"`
	Status     string    `gorm:"size:20;not null;default:completed" json:"status"`
	Feedback   string    `gorm:"size:1024" json:"feedback,omitempty"`
	ExecutedAt time.Time `gorm:"index" json:"executed_at"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Trade) TableName() string {
	return "trades"
}
