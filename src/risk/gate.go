package risk

import (
	"fmt"
	"time"

	"tradeledger/src/model"
)

// Input is everything the gate needs to validate one proposed opening.
// The executor gathers the ledger readings up front; the gate itself is a
// pure check with no side effects.
type Input struct {
	AccountID uint
	Symbol    string
	Side      string // model.PositionSideLong | model.PositionSideShort
	Notional  float64
	Margin    float64
	Fee       float64
	Leverage  float64

	Cash          float64
	Equity        float64
	OpenPositions int64
	LastTradeAt   *time.Time
	Now           time.Time
}

// Check validates the proposed trade against the configured limits in a
// fixed order; the first failing check short-circuits. A nil result means
// the executor may proceed.
func Check(in Input, cfg *model.RiskConfig) *Violation {

	if in.Side == model.PositionSideShort && !cfg.AllowShort {
		return &Violation{
			Code:    ShortDisabled,
			Message: "short selling is disabled",
		}
	}

	if in.Leverage > cfg.MaxLeverage {
		return &Violation{
			Code: LeverageExceeded,
			Message: fmt.Sprintf("leverage %.2fx exceeds maximum %.2fx",
				in.Leverage, cfg.MaxLeverage),
		}
	}

	if in.Notional < cfg.MinTradeAmount || in.Notional > cfg.MaxTradeAmount {
		return &Violation{
			Code: NotionalOutOfRange,
			Message: fmt.Sprintf("notional %.2f outside allowed range [%.2f, %.2f]",
				in.Notional, cfg.MinTradeAmount, cfg.MaxTradeAmount),
		}
	}

	if in.OpenPositions >= int64(cfg.MaxOpenPositions) {
		return &Violation{
			Code: MaxOpenPositionsReached,
			Message: fmt.Sprintf("already holding %d open positions (max %d)",
				in.OpenPositions, cfg.MaxOpenPositions),
		}
	}

	if in.LastTradeAt != nil {
		elapsed := in.Now.Sub(*in.LastTradeAt)
		if elapsed < cfg.Cooldown() {
			return &Violation{
				Code: CooldownActive,
				Message: fmt.Sprintf("cooldown active: %s since last trade (min %s)",
					elapsed.Round(time.Second), cfg.Cooldown()),
			}
		}
	}

	if in.Equity > 0 && in.Margin/in.Equity > cfg.MaxPositionPercent {
		return &Violation{
			Code: PositionRatioExceeded,
			Message: fmt.Sprintf("margin %.2f is %.1f%% of equity %.2f (max %.1f%%)",
				in.Margin, in.Margin/in.Equity*100, in.Equity, cfg.MaxPositionPercent*100),
		}
	}

	if in.Cash < in.Margin+in.Fee {
		return &Violation{
			Code: InsufficientCash,
			Message: fmt.Sprintf("cash %.2f cannot cover margin %.2f plus fee %.2f",
				in.Cash, in.Margin, in.Fee),
		}
	}

	return nil
}
