package executor

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeledger/src/model"
	"tradeledger/src/repository"
	"tradeledger/src/risk"
	"tradeledger/src/valuation"
)

// Remaining quantity at or below this is a fully closed position.
const quantityEpsilon = 1e-9

// Service turns validated trade intents into ledger mutations. All state
// changes for one intent happen inside a single transaction under the
// account's lock; rejections leave nothing behind but a failed trade record.
type Service struct {
	db             *gorm.DB
	locks          *AccountLocks
	engine         *valuation.Engine
	log            *logger.Entry
	now            func() time.Time
	initialCapital float64
	configName     string
}

func NewService(db *gorm.DB, locks *AccountLocks, engine *valuation.Engine, initialCapital float64) *Service {
	return &Service{
		db:             db,
		locks:          locks,
		engine:         engine,
		log:            logger.WithField("component", "executor"),
		now:            time.Now,
		initialCapital: initialCapital,
		configName:     model.DefaultRiskConfigName,
	}
}

// resolution is the outcome of matching an intent against the account's
// current position state on the symbol.
type resolution struct {
	action   string
	side     string
	position *model.Position
	merge    bool
}

// resolveAction implements the transition table. Two observed quirks are
// kept on purpose and gated behind RiskConfig.MergeSameDirection: a BUY on
// an open long opens an additional long position, and a SELL on an open
// short closes it regardless of the stated direction.
func resolveAction(intent *Intent, existing *model.Position, mergeSameDirection bool) (resolution, *risk.Violation) {

	if existing == nil {
		if intent.Side == model.TradeSideBuy {
			return resolution{action: model.ActionOpenLong, side: model.PositionSideLong}, nil
		}
		if intent.Direction == model.PositionSideShort {
			return resolution{action: model.ActionOpenShort, side: model.PositionSideShort}, nil
		}
		return resolution{}, &risk.Violation{
			Code:    risk.NoPositionToClose,
			Message: "no open position to close for " + intent.Symbol,
		}
	}

	if existing.Side == model.PositionSideLong {
		if intent.Side == model.TradeSideSell {
			return resolution{action: model.ActionClose, side: existing.Side, position: existing}, nil
		}
		if mergeSameDirection {
			return resolution{action: model.ActionOpenLong, side: existing.Side, position: existing, merge: true}, nil
		}
		return resolution{action: model.ActionOpenLong, side: model.PositionSideLong}, nil
	}

	// open short
	if intent.Side == model.TradeSideBuy {
		return resolution{action: model.ActionClose, side: existing.Side, position: existing}, nil
	}
	if mergeSameDirection && intent.Direction == model.PositionSideShort {
		return resolution{action: model.ActionOpenShort, side: existing.Side, position: existing, merge: true}, nil
	}
	return resolution{action: model.ActionClose, side: existing.Side, position: existing}, nil
}

// Submit executes one trade intent end to end and returns the appended
// trade record. Business-rule rejections come back as a failed trade, not
// an error; only malformed payloads and storage failures return errors.
func (s *Service) Submit(ctx context.Context, intent Intent) (*model.Trade, error) {

	if err := intent.Normalize(); err != nil {
		return nil, err
	}

	lock := s.locks.Get(intent.Owner)
	lock.Lock()
	defer lock.Unlock()

	account, err := repository.NewAccountRepository().WithDB(s.db).
		GetOrCreate(ctx, intent.Owner, s.initialCapital)
	if err != nil {
		return nil, err
	}

	cfg, err := repository.NewSettingsRepository().WithDB(s.db).Get(ctx, s.configName)
	if err != nil {
		return nil, err
	}

	existing, err := repository.NewPositionRepository().WithDB(s.db).
		FindFirstOpen(ctx, account.ID, intent.Symbol)
	if err != nil {
		return nil, err
	}

	res, violation := resolveAction(&intent, existing, cfg.MergeSameDirection)
	if violation != nil {
		notional := intent.Price * intent.Quantity
		return s.recordFailure(ctx, account, &intent, model.ActionClose, "",
			notional, notional*cfg.TakerFee, violation)
	}

	if res.action == model.ActionClose {
		return s.submitClose(ctx, account, &intent, res.position, cfg)
	}
	return s.submitOpen(ctx, account, &intent, res, cfg)
}

func (s *Service) submitOpen(
	ctx context.Context,
	account *model.Account,
	intent *Intent,
	res resolution,
	cfg *model.RiskConfig,
) (*model.Trade, error) {

	notional := intent.Price * intent.Quantity
	margin := notional / intent.Leverage
	fee := notional * cfg.TakerFee

	openCount, err := repository.NewPositionRepository().WithDB(s.db).
		CountOpenByAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	lastTrade, err := repository.NewTradeRepository().WithDB(s.db).
		FindLastByAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	var lastTradeAt *time.Time
	if lastTrade != nil {
		lastTradeAt = &lastTrade.ExecutedAt
	}

	snapshot, err := s.engine.Snapshot(ctx, account)
	if err != nil {
		return nil, err
	}

	violation := risk.Check(risk.Input{
		AccountID:     account.ID,
		Symbol:        intent.Symbol,
		Side:          res.side,
		Notional:      notional,
		Margin:        margin,
		Fee:           fee,
		Leverage:      intent.Leverage,
		Cash:          account.Cash,
		Equity:        snapshot.TotalEquity,
		OpenPositions: openCount,
		LastTradeAt:   lastTradeAt,
		Now:           s.now(),
	}, cfg)
	if violation != nil {
		return s.recordFailure(ctx, account, intent, res.action, res.side, notional, fee, violation)
	}

	now := s.now()
	trade := s.buildTrade(account, intent, res.action, res.side, intent.Quantity, notional, fee, now)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if res.merge {
			if err := applyMerge(ctx, tx, account, res.position,
				intent.Quantity, intent.Price, intent.Leverage, margin, fee); err != nil {
				return err
			}
		} else {
			spec := openSpec{
				symbol:     intent.Symbol,
				side:       res.side,
				quantity:   intent.Quantity,
				price:      intent.Price,
				leverage:   intent.Leverage,
				margin:     margin,
				fee:        fee,
				decisionID: intent.DecisionID,
				at:         now,
			}
			if _, err := applyOpen(ctx, tx, account, spec); err != nil {
				return err
			}
		}

		return repository.NewTradeRepository().WithDB(tx).Create(ctx, trade)
	})
	if err != nil {
		return nil, err
	}

	s.refresh(ctx, account.ID)

	s.log.WithFields(logger.Fields{
		"owner":  account.Owner,
		"symbol": intent.Symbol,
		"action": res.action,
		"qty":    intent.Quantity,
		"price":  intent.Price,
	}).Info("Trade executed")

	return trade, nil
}

func (s *Service) submitClose(
	ctx context.Context,
	account *model.Account,
	intent *Intent,
	position *model.Position,
	cfg *model.RiskConfig,
) (*model.Trade, error) {

	closeQty := math.Min(intent.Quantity, position.Quantity)
	notional := intent.Price * closeQty
	fee := notional * cfg.TakerFee

	now := s.now()
	trade := s.buildTrade(account, intent, model.ActionClose, position.Side, closeQty, notional, fee, now)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := applyClose(ctx, tx, account, position, closeQty, intent.Price, fee, now); err != nil {
			return err
		}
		return repository.NewTradeRepository().WithDB(tx).Create(ctx, trade)
	})
	if err != nil {
		return nil, err
	}

	s.refresh(ctx, account.ID)

	s.log.WithFields(logger.Fields{
		"owner":  account.Owner,
		"symbol": intent.Symbol,
		"action": model.ActionClose,
		"qty":    closeQty,
		"price":  intent.Price,
	}).Info("Trade executed")

	return trade, nil
}

// recordFailure appends a failed trade record carrying the violation
// feedback. No other ledger state is touched.
func (s *Service) recordFailure(
	ctx context.Context,
	account *model.Account,
	intent *Intent,
	action string,
	side string,
	notional float64,
	fee float64,
	violation *risk.Violation,
) (*model.Trade, error) {

	trade := s.buildTrade(account, intent, action, side, intent.Quantity, notional, fee, s.now())
	trade.Status = model.TradeStatusFailed
	trade.Feedback = violation.Message

	if err := repository.NewTradeRepository().WithDB(s.db).Create(ctx, trade); err != nil {
		return nil, err
	}

	s.log.WithFields(logger.Fields{
		"owner":    account.Owner,
		"symbol":   intent.Symbol,
		"code":     violation.Code,
		"feedback": violation.Message,
	}).Warn("Trade rejected")

	return trade, nil
}

func (s *Service) buildTrade(
	account *model.Account,
	intent *Intent,
	action string,
	side string,
	quantity float64,
	notional float64,
	fee float64,
	at time.Time,
) *model.Trade {

	return &model.Trade{
		AccountID:  account.ID,
		IntentID:   uuid.NewString(),
		DecisionID: intent.DecisionID,
		Symbol:     intent.Symbol,
		Side:       intent.Side,
		ActionType: action,
		Direction:  side,
		Leverage:   intent.Leverage,
		Quantity:   quantity,
		Price:      intent.Price,
		Fee:        fee,
		Notional:   notional,
		Status:     model.TradeStatusCompleted,
		ExecutedAt: at,
	}
}

// refresh recomputes the account's equity after a committed trade. Failures
// here do not fail the trade; the recorder or the next mark will catch up.
func (s *Service) refresh(ctx context.Context, accountID uint) {
	if _, err := s.engine.RefreshAccount(ctx, accountID); err != nil {
		s.log.WithError(err).WithField("account_id", accountID).
			Warn("Post-trade valuation refresh failed")
	}
}
