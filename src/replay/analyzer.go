package replay

import (
	"context"
	"fmt"
	"math"

	"tradeledger/src/model"
	"tradeledger/src/repository"
)

// ReportEntry is the diagnostic record for one replayed trade.
type ReportEntry struct {
	TradeID     uint    `json:"trade_id"`
	Symbol      string  `json:"symbol"`
	ActionType  string  `json:"action_type"`
	Side        string  `json:"side"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
	Notional    float64 `json:"notional"`
	Fee         float64 `json:"fee"`
	Margin      float64 `json:"margin"`
	RealizedPnl float64 `json:"realized_pnl"`
	CashAfter   float64 `json:"cash_after"`
	EquityAfter float64 `json:"equity_after"`
}

// Report is the outcome of a read-only walk over an account's trade log.
// Unrealized P&L is approximated as zero throughout, so EquityAfter is
// cash plus reserved margin. That is a documented simplification for
// diagnostics, not the live valuation.
type Report struct {
	Owner          string        `json:"owner"`
	InitialCapital float64       `json:"initial_capital"`
	FinalCash      float64       `json:"final_cash"`
	FinalEquity    float64       `json:"final_equity"`
	OpenPositions  int           `json:"open_positions"`
	TradesAnalyzed int           `json:"trades_analyzed"`
	Entries        []ReportEntry `json:"entries"`
}

// simPosition is the in-memory projection used by Analyze; nothing here is
// ever persisted.
type simPosition struct {
	symbol   string
	side     string
	quantity float64
	entry    float64
	margin   float64
}

// Analyze performs the same replay walk as Rebuild without persisting
// anything, recording per-trade flows for diagnostic reporting.
func (s *Service) Analyze(ctx context.Context, owner string) (*Report, error) {

	account, err := repository.NewAccountRepository().WithDB(s.db).FindByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("no account for owner %q", owner)
	}

	trades, err := repository.NewTradeRepository().WithDB(s.db).
		ListCompletedAscending(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Owner:          owner,
		InitialCapital: account.InitialCapital,
		Entries:        make([]ReportEntry, 0, len(trades)),
	}

	cash := account.InitialCapital
	var open []*simPosition

	for i := range trades {
		trade := &trades[i]

		entry := ReportEntry{
			TradeID:    trade.ID,
			Symbol:     trade.Symbol,
			ActionType: trade.ActionType,
			Side:       trade.Side,
			Quantity:   trade.Quantity,
			Price:      trade.Price,
			Notional:   trade.Notional,
			Fee:        trade.Fee,
		}

		switch trade.ActionType {
		case model.ActionOpenLong, model.ActionOpenShort:
			side := model.PositionSideLong
			if trade.ActionType == model.ActionOpenShort {
				side = model.PositionSideShort
			}

			leverage := trade.Leverage
			if leverage < 1 {
				leverage = 1
			}
			margin := trade.Notional / leverage

			cash -= margin + trade.Fee
			open = append(open, &simPosition{
				symbol:   trade.Symbol,
				side:     side,
				quantity: trade.Quantity,
				entry:    trade.Price,
				margin:   margin,
			})
			entry.Margin = margin

		case model.ActionClose:
			idx := firstOpenIndex(open, trade.Symbol)
			if idx < 0 {
				// orphan close; record it with no flows and move on
				break
			}
			pos := open[idx]

			closeQty := math.Min(trade.Quantity, pos.quantity)

			var realized float64
			if pos.side == model.PositionSideShort {
				realized = (pos.entry - trade.Price) * closeQty
			} else {
				realized = (trade.Price - pos.entry) * closeQty
			}

			released := pos.margin * closeQty / pos.quantity
			cash += released + realized - trade.Fee

			pos.quantity -= closeQty
			pos.margin -= released
			if pos.quantity <= 1e-9 {
				open = append(open[:idx], open[idx+1:]...)
			}

			entry.Margin = released
			entry.RealizedPnl = realized
		}

		equity := cash
		for _, pos := range open {
			equity += pos.margin
		}

		entry.CashAfter = cash
		entry.EquityAfter = equity
		report.Entries = append(report.Entries, entry)
		report.TradesAnalyzed++
	}

	report.FinalCash = cash
	report.FinalEquity = cash
	for _, pos := range open {
		report.FinalEquity += pos.margin
	}
	report.OpenPositions = len(open)

	return report, nil
}

func firstOpenIndex(open []*simPosition, symbol string) int {
	for i, pos := range open {
		if pos.symbol == symbol {
			return i
		}
	}
	return -1
}
