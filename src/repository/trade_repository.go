package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeledger/src/database"
	"tradeledger/src/model"
)

// TradeRepository handles the append-only trade log.
type TradeRepository struct {
	db *gorm.DB
}

// NewTradeRepository creates a new repository instance using the main read/write database.
func NewTradeRepository() *TradeRepository {
	return &TradeRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *TradeRepository) WithDB(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create appends a trade record. Trades are never updated afterwards.
func (r *TradeRepository) Create(ctx context.Context, trade *model.Trade) error {

	err := r.db.WithContext(ctx).Create(trade).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "TradeRepository",
			"op":         "Create",
			"account_id": trade.AccountID,
			"symbol":     trade.Symbol,
			"side":       trade.Side,
			"status":     trade.Status,
		}).WithError(err).Error("Failed to append trade")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "TradeRepository",
		"op":       "Create",
		"trade_id": trade.ID,
		"action":   trade.ActionType,
		"status":   trade.Status,
	}).Debug("Trade appended")

	return nil
}

// TradeSearchOptions filters and paginates the trade listing.
type TradeSearchOptions struct {
	AccountID uint
	Symbol    *string
	Status    *string
	Limit     int
	Offset    int
}

// Search lists the account's trades newest first with pagination.
func (r *TradeRepository) Search(
	ctx context.Context,
	options TradeSearchOptions,
) ([]model.Trade, error) {

	query := r.db.WithContext(ctx).Where("account_id = ?", options.AccountID)

	if options.Symbol != nil {
		query = query.Where("symbol = ?", *options.Symbol)
	}
	if options.Status != nil {
		query = query.Where("status = ?", *options.Status)
	}

	limit := options.Limit
	if limit <= 0 {
		limit = 20
	}

	var trades []model.Trade

	err := query.
		Order("executed_at DESC, id DESC").
		Limit(limit).
		Offset(options.Offset).
		Find(&trades).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "TradeRepository",
			"op":         "Search",
			"account_id": options.AccountID,
		}).WithError(err).Error("Failed to search trades")

		return nil, err
	}

	return trades, nil
}

// ListCompletedAscending returns the account's completed trades in replay
// order: ascending execution time, ids breaking ties.
func (r *TradeRepository) ListCompletedAscending(
	ctx context.Context,
	accountID uint,
) ([]model.Trade, error) {

	var trades []model.Trade

	err := r.db.WithContext(ctx).
		Where("account_id = ? AND status = ?", accountID, model.TradeStatusCompleted).
		Order("executed_at ASC, id ASC").
		Find(&trades).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "TradeRepository",
			"op":         "ListCompletedAscending",
			"account_id": accountID,
		}).WithError(err).Error("Failed to list trades for replay")

		return nil, err
	}

	return trades, nil
}

// FindLastByAccount fetches the account's most recent trade record of any
// status, used for the cooldown check.
// Returns (nil, nil) when the account has no trades yet.
func (r *TradeRepository) FindLastByAccount(
	ctx context.Context,
	accountID uint,
) (*model.Trade, error) {

	var trade model.Trade

	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("executed_at DESC, id DESC").
		First(&trade).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":       "TradeRepository",
			"op":         "FindLastByAccount",
			"account_id": accountID,
		}).WithError(err).Error("Failed to fetch last trade")

		return nil, err
	}

	return &trade, nil
}
