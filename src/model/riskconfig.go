package model

import "time"

// RiskConfig is the named set of trading limits read by the risk gate.
// It is mutated only through the settings repository; the ledger core
// treats it as read-only input.
type RiskConfig struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:50;not null;uniqueIndex" json:"name"`

	MakerFee float64 `json:"maker_fee"`
	TakerFee float64 `json:"taker_fee"`
	Slippage float64 `json:"slippage"`

	MaxLeverage  float64 `json:"max_leverage"`
	AllowShort   bool    `json:"allow_short"`
	MinPosition  float64 `json:"min_position"`
	MaxPosition  float64 `json:"max_position"`
	PositionStep float64 `json:"position_step"`

	StopLossMin        float64 `json:"stop_loss_min"`
	StopLossMax        float64 `json:"stop_loss_max"`
	TakeProfitMin      float64 `json:"take_profit_min"`
	TakeProfitMax      float64 `json:"take_profit_max"`
	MaxPositionPercent float64 `json:"max_position_percent"`
	MaxDrawdown        float64 `json:"max_drawdown"`

	MinConfidence    float64 `json:"min_confidence"`
	MaxOpenPositions int     `json:"max_open_positions"`
	CooldownMinutes  int     `json:"cooldown_minutes"`
	MinTradeAmount   float64 `json:"min_trade_amount"`
	MaxTradeAmount   float64 `json:"max_trade_amount"`

	// MergeSameDirection changes the executor's handling of a same-direction
	// intent on an existing position: instead of opening an additional
	// position (long) or closing the existing one (short), the position is
	// scaled in place. Off by default to preserve the observed behavior.
	MergeSameDirection bool `json:"merge_same_direction"`

	UpdatedAt time.Time `json:"updated_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (RiskConfig) TableName() string {
	return "risk_configs"
}

const DefaultRiskConfigName = "default"

// DefaultRiskConfig returns the documented default limits.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		Name:               DefaultRiskConfigName,
		MakerFee:           0.0002,
		TakerFee:           0.0004,
		Slippage:           0.0001,
		MaxLeverage:        1,
		AllowShort:         false,
		MinPosition:        0.001,
		MaxPosition:        0.2,
		PositionStep:       0.01,
		StopLossMin:        0.01,
		StopLossMax:        0.10,
		TakeProfitMin:      0.01,
		TakeProfitMax:      0.20,
		MaxPositionPercent: 0.8,
		MaxDrawdown:        0.20,
		MinConfidence:      0.3,
		MaxOpenPositions:   3,
		CooldownMinutes:    5,
		MinTradeAmount:     10.0,
		MaxTradeAmount:     10000.0,
	}
}

// Cooldown returns the configured cooldown as a duration.
func (c *RiskConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}
