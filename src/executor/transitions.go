package executor

import (
	"context"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"tradeledger/src/model"
	"tradeledger/src/repository"
	"tradeledger/src/valuation"
)

// openSpec describes a position opening derived either from a live intent
// or from a recorded trade during replay.
type openSpec struct {
	symbol     string
	side       string
	quantity   float64
	price      float64
	leverage   float64
	margin     float64
	fee        float64
	decisionID *string
	at         time.Time
}

// applyOpen reserves margin plus fee from cash and creates the position.
// Caller provides the surrounding transaction.
func applyOpen(
	ctx context.Context,
	tx *gorm.DB,
	account *model.Account,
	spec openSpec,
) (*model.Position, error) {

	account.Cash -= spec.margin + spec.fee
	if err := repository.NewAccountRepository().WithDB(tx).Save(ctx, account); err != nil {
		return nil, err
	}

	mark := spec.price
	position := &model.Position{
		AccountID:  account.ID,
		Symbol:     spec.symbol,
		Side:       spec.side,
		Quantity:   spec.quantity,
		EntryPrice: spec.price,
		MarkPrice:  &mark,
		Leverage:   spec.leverage,
		Margin:     spec.margin,
		Status:     model.PositionStatusOpen,
		DecisionID: spec.decisionID,
		OpenedAt:   spec.at,
	}

	if err := repository.NewPositionRepository().WithDB(tx).Create(ctx, position); err != nil {
		return nil, err
	}

	return position, nil
}

// applyMerge scales an existing position in place: quantity-weighted entry
// price, notional-weighted leverage, added margin. Only reachable when
// RiskConfig.MergeSameDirection is on.
func applyMerge(
	ctx context.Context,
	tx *gorm.DB,
	account *model.Account,
	position *model.Position,
	quantity, price, leverage, margin, fee float64,
) error {

	account.Cash -= margin + fee
	if err := repository.NewAccountRepository().WithDB(tx).Save(ctx, account); err != nil {
		return err
	}

	oldNotional := position.EntryPrice * position.Quantity
	addNotional := price * quantity
	totalQty := position.Quantity + quantity

	position.EntryPrice = (oldNotional + addNotional) / totalQty
	if oldNotional+addNotional > 0 {
		position.Leverage = (position.Leverage*oldNotional + leverage*addNotional) /
			(oldNotional + addNotional)
	}
	position.Quantity = totalQty
	position.Margin += margin

	mark := price
	position.MarkPrice = &mark
	position.UnrealizedPnl = valuation.UnrealizedPnl(position)

	return repository.NewPositionRepository().WithDB(tx).Save(ctx, position)
}

// applyClose realizes P&L on closeQty units, releases margin proportionally
// and credits cash. Marks the position closed when nothing remains.
func applyClose(
	ctx context.Context,
	tx *gorm.DB,
	account *model.Account,
	position *model.Position,
	closeQty, price, fee float64,
	at time.Time,
) (float64, error) {

	var realized float64
	if position.Side == model.PositionSideShort {
		realized = (position.EntryPrice - price) * closeQty
	} else {
		realized = (price - position.EntryPrice) * closeQty
	}

	released := position.Margin * closeQty / position.Quantity

	account.Cash += released + realized - fee
	if err := repository.NewAccountRepository().WithDB(tx).Save(ctx, account); err != nil {
		return 0, err
	}

	position.Quantity -= closeQty
	position.Margin -= released
	position.RealizedPnl += realized

	mark := price
	position.MarkPrice = &mark

	if position.Quantity <= quantityEpsilon {
		position.Quantity = 0
		position.Margin = 0
		position.UnrealizedPnl = 0
		position.Status = model.PositionStatusClosed
		closedAt := at
		position.ClosedAt = &closedAt
	} else {
		position.UnrealizedPnl = valuation.UnrealizedPnl(position)
	}

	if err := repository.NewPositionRepository().WithDB(tx).Save(ctx, position); err != nil {
		return 0, err
	}

	return realized, nil
}

// ReplayTrade re-applies one completed trade's transition to the account
// using the numbers recorded on the trade row, without creating a new trade
// record. The replay engine drives this inside its own transaction.
func ReplayTrade(
	ctx context.Context,
	tx *gorm.DB,
	account *model.Account,
	trade *model.Trade,
	mergeSameDirection bool,
) error {

	positions := repository.NewPositionRepository().WithDB(tx)

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

		if mergeSameDirection {
			existing, err := positions.FindFirstOpen(ctx, account.ID, trade.Symbol)
			if err != nil {
				return err
			}
			if existing != nil && existing.Side == side {
				return applyMerge(ctx, tx, account, existing,
					trade.Quantity, trade.Price, leverage, margin, trade.Fee)
			}
		}

		spec := openSpec{
			symbol:     trade.Symbol,
			side:       side,
			quantity:   trade.Quantity,
			price:      trade.Price,
			leverage:   leverage,
			margin:     margin,
			fee:        trade.Fee,
			decisionID: trade.DecisionID,
			at:         trade.ExecutedAt,
		}
		_, err := applyOpen(ctx, tx, account, spec)
		return err

	case model.ActionClose:
		position, err := positions.FindFirstOpen(ctx, account.ID, trade.Symbol)
		if err != nil {
			return err
		}
		if position == nil {
			return fmt.Errorf("trade %d closes %s but no open position found during replay",
				trade.ID, trade.Symbol)
		}

		closeQty := math.Min(trade.Quantity, position.Quantity)
		_, err = applyClose(ctx, tx, account, position, closeQty, trade.Price, trade.Fee, trade.ExecutedAt)
		return err

	default:
		return fmt.Errorf("trade %d has unknown action type %q", trade.ID, trade.ActionType)
	}
}
