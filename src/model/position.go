package model

import "time"

const (
	PositionStatusOpen   = "open"
	PositionStatusClosed = "closed"

	PositionSideLong  = "long"
	PositionSideShort = "short"
)

// Position is one leveraged exposure of an account on a symbol.
// It is mutated only by the trade executor (and the replay engine while
// rebuilding); once fully closed it is immutable history.
type Position struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	AccountID     uint       `gorm:"index" json:"account_id"`
	Symbol        string     `gorm:"size:20;index" json:"symbol"`
	Side          string     `gorm:"size:10;not null" json:"side"`
	Quantity      float64    `json:"quantity"`
	EntryPrice    float64    `json:"entry_price"`
	MarkPrice     *float64   `json:"mark_price,omitempty"`
	Leverage      float64    `json:"leverage"`
	Margin        float64    `json:"margin"`
	RealizedPnl   float64    `json:"realized_pnl"`
	UnrealizedPnl float64    `json:"unrealized_pnl"`
	Status        string     `gorm:"size:10;not null;default:open" json:"status"`
	DecisionID    *string    `gorm:"size:64;index" json:"decision_id,omitempty"`
	OpenedAt      time.Time  `json:"opened_at"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}

// Notional is the gross value of the position at its last mark,
// falling back to the entry price when the position was never marked.
func (p *Position) Notional() float64 {
	price := p.EntryPrice
	if p.MarkPrice != nil {
		price = *p.MarkPrice
	}
	return price * p.Quantity
}
