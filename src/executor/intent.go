package executor

import (
	"fmt"
	"strings"

	"tradeledger/src/model"
)

// Intent is one proposed trade as submitted by a collaborator (typically a
// parsed LLM decision). It is validated here, at the boundary, before any
// ledger state is read; malformed payloads never reach the risk gate and
// produce no trade record.
type Intent struct {
	Owner      string  `json:"owner"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`                // BUY | SELL
	Direction  string  `json:"direction,omitempty"` // long | short | empty
	Quantity   float64 `json:"quantity"`
	Price      float64 `json:"price"`
	Leverage   float64 `json:"leverage,omitempty"` // 0 means unset, defaults to 1
	DecisionID *string `json:"decision_id,omitempty"`
}

// Normalize validates the payload and fills defaults in place.
func (in *Intent) Normalize() error {

	in.Owner = strings.TrimSpace(in.Owner)
	if in.Owner == "" {
		return fmt.Errorf("intent missing owner")
	}

	in.Symbol = strings.ToUpper(strings.TrimSpace(in.Symbol))
	if in.Symbol == "" {
		return fmt.Errorf("intent missing symbol")
	}

	in.Side = strings.ToUpper(strings.TrimSpace(in.Side))
	if in.Side != model.TradeSideBuy && in.Side != model.TradeSideSell {
		return fmt.Errorf("invalid side %q", in.Side)
	}

	in.Direction = strings.ToLower(strings.TrimSpace(in.Direction))
	switch in.Direction {
	case "", model.PositionSideLong, model.PositionSideShort:
	default:
		return fmt.Errorf("invalid direction %q", in.Direction)
	}

	if in.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %v", in.Quantity)
	}
	if in.Price <= 0 {
		return fmt.Errorf("price must be positive, got %v", in.Price)
	}

	if in.Leverage == 0 {
		in.Leverage = 1
	}
	if in.Leverage < 1 {
		return fmt.Errorf("leverage must be at least 1, got %v", in.Leverage)
	}

	return nil
}
