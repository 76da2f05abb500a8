package valuation

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeledger/src/model"
	"tradeledger/src/repository"
)

// Valuation is the full mark-to-market picture of one account.
type Valuation struct {
	Cash          float64 `json:"cash"`
	PositionValue float64 `json:"position_value"`
	TotalEquity   float64 `json:"total_equity"`
	TotalPnl      float64 `json:"total_pnl"`
	TotalReturn   float64 `json:"total_return"`
	LongExposure  float64 `json:"long_exposure"`
	ShortExposure float64 `json:"short_exposure"`
	TotalQuantity float64 `json:"total_quantity"`
	AvgLeverage   float64 `json:"avg_leverage"`
}

// Engine recomputes unrealized P&L, exposure and equity from open positions.
type Engine struct {
	db  *gorm.DB
	log *logger.Entry
	now func() time.Time
}

func NewEngine(db *gorm.DB) *Engine {
	return &Engine{
		db:  db,
		log: logger.WithField("component", "valuation"),
		now: time.Now,
	}
}

// UnrealizedPnl is the mark-to-market profit of a single position.
// Positions that were never marked carry zero unrealized P&L.
func UnrealizedPnl(position *model.Position) float64 {
	if position.MarkPrice == nil {
		return 0
	}

	switch position.Side {
	case model.PositionSideShort:
		return (position.EntryPrice - *position.MarkPrice) * position.Quantity
	default:
		return (*position.MarkPrice - position.EntryPrice) * position.Quantity
	}
}

// Compute derives the valuation figures from the account and its open
// positions without touching the database.
func Compute(account *model.Account, positions []model.Position) Valuation {

	v := Valuation{Cash: account.Cash}

	var weightSum, weightedLeverage float64

	for i := range positions {
		pos := &positions[i]
		if pos.Status != model.PositionStatusOpen {
			continue
		}

		pnl := UnrealizedPnl(pos)
		value := pos.Margin + pnl

		v.PositionValue += value
		v.TotalQuantity += pos.Quantity

		if pos.Side == model.PositionSideShort {
			v.ShortExposure += value
		} else {
			v.LongExposure += value
		}

		weight := pos.Notional()
		weightSum += weight
		weightedLeverage += weight * pos.Leverage
	}

	v.TotalEquity = v.Cash + v.PositionValue
	v.TotalPnl = v.TotalEquity - account.InitialCapital
	if account.InitialCapital > 0 {
		v.TotalReturn = (v.TotalEquity/account.InitialCapital - 1) * 100
	}

	if weightSum > 0 {
		v.AvgLeverage = weightedLeverage / weightSum
	} else {
		v.AvgLeverage = 1.0
	}

	return v
}

// Snapshot loads the account's open positions and computes its valuation
// without persisting anything.
func (e *Engine) Snapshot(ctx context.Context, account *model.Account) (Valuation, error) {

	positions, err := repository.NewPositionRepository().WithDB(e.db).
		ListByAccount(ctx, account.ID, model.PositionStatusOpen)
	if err != nil {
		return Valuation{}, err
	}

	return Compute(account, positions), nil
}

// RefreshAccount recomputes the account's equity figures and persists them,
// maintaining the running equity peak and max drawdown.
func (e *Engine) RefreshAccount(ctx context.Context, accountID uint) (*model.Account, error) {

	accounts := repository.NewAccountRepository().WithDB(e.db)

	var account model.Account
	if err := e.db.WithContext(ctx).First(&account, accountID).Error; err != nil {
		return nil, err
	}

	v, err := e.Snapshot(ctx, &account)
	if err != nil {
		return nil, err
	}

	account.TotalEquity = v.TotalEquity
	account.TotalPnl = v.TotalPnl
	account.TotalReturn = v.TotalReturn

	if v.TotalEquity > account.PeakEquity {
		account.PeakEquity = v.TotalEquity
	}
	if account.PeakEquity > 0 {
		drawdown := (account.PeakEquity - v.TotalEquity) / account.PeakEquity
		if drawdown > account.MaxDrawdown {
			account.MaxDrawdown = drawdown
		}
	}

	if err := accounts.Save(ctx, &account); err != nil {
		return nil, err
	}

	e.log.WithFields(logger.Fields{
		"account_id":   account.ID,
		"total_equity": account.TotalEquity,
		"total_pnl":    account.TotalPnl,
	}).Debug("Account valuation refreshed")

	return &account, nil
}

// MarkPrice re-marks every open position on the symbol across all accounts
// and refreshes the equity of each affected account.
func (e *Engine) MarkPrice(ctx context.Context, symbol string, price float64) error {

	positionRepo := repository.NewPositionRepository().WithDB(e.db)

	positions, err := positionRepo.ListOpenBySymbol(ctx, symbol)
	if err != nil {
		return err
	}

	affected := make(map[uint]struct{})

	for i := range positions {
		pos := &positions[i]
		mark := price
		pos.MarkPrice = &mark
		pos.UnrealizedPnl = UnrealizedPnl(pos)

		if err := positionRepo.Save(ctx, pos); err != nil {
			return err
		}

		affected[pos.AccountID] = struct{}{}
	}

	for accountID := range affected {
		if _, err := e.RefreshAccount(ctx, accountID); err != nil {
			return err
		}
	}

	e.log.WithFields(logger.Fields{
		"symbol":    symbol,
		"price":     price,
		"positions": len(positions),
		"accounts":  len(affected),
	}).Debug("Mark price applied")

	return nil
}
