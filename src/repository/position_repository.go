package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeledger/src/database"
	"tradeledger/src/model"
)

// PositionRepository handles read/write operations for positions.
type PositionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a new repository instance using the main read/write database.
func NewPositionRepository() *PositionRepository {
	return &PositionRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Create inserts a new position.
func (r *PositionRepository) Create(ctx context.Context, position *model.Position) error {

	err := r.db.WithContext(ctx).Create(position).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "PositionRepository",
			"op":         "Create",
			"account_id": position.AccountID,
			"symbol":     position.Symbol,
			"side":       position.Side,
		}).WithError(err).Error("Failed to create position")

		return err
	}

	return nil
}

// Save persists every field of the position.
func (r *PositionRepository) Save(ctx context.Context, position *model.Position) error {

	err := r.db.WithContext(ctx).Save(position).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "PositionRepository",
			"op":          "Save",
			"position_id": position.ID,
		}).WithError(err).Error("Failed to save position")

		return err
	}

	return nil
}

// FindFirstOpen fetches the earliest-opened open position for the account
// and symbol. The first match decides the executor's state transition.
// Returns (nil, nil) when the account has no open position on the symbol.
func (r *PositionRepository) FindFirstOpen(
	ctx context.Context,
	accountID uint,
	symbol string,
) (*model.Position, error) {

	var position model.Position

	err := r.db.WithContext(ctx).
		Where("account_id = ? AND symbol = ? AND status = ?",
			accountID, symbol, model.PositionStatusOpen).
		Order("opened_at ASC, id ASC").
		First(&position).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":       "PositionRepository",
			"op":         "FindFirstOpen",
			"account_id": accountID,
			"symbol":     symbol,
		}).WithError(err).Error("Failed to fetch open position")

		return nil, err
	}

	return &position, nil
}

// ListByAccount returns the account's positions, optionally filtered by status,
// oldest first.
func (r *PositionRepository) ListByAccount(
	ctx context.Context,
	accountID uint,
	status string,
) ([]model.Position, error) {

	query := r.db.WithContext(ctx).Where("account_id = ?", accountID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var positions []model.Position

	err := query.Order("opened_at ASC, id ASC").Find(&positions).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "PositionRepository",
			"op":         "ListByAccount",
			"account_id": accountID,
			"status":     status,
		}).WithError(err).Error("Failed to list positions")

		return nil, err
	}

	return positions, nil
}

// ListOpenBySymbol returns every open position on the symbol across all
// accounts, used when a mark price update fans out.
func (r *PositionRepository) ListOpenBySymbol(
	ctx context.Context,
	symbol string,
) ([]model.Position, error) {

	var positions []model.Position

	err := r.db.WithContext(ctx).
		Where("symbol = ? AND status = ?", symbol, model.PositionStatusOpen).
		Find(&positions).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "PositionRepository",
			"op":     "ListOpenBySymbol",
			"symbol": symbol,
		}).WithError(err).Error("Failed to list open positions by symbol")

		return nil, err
	}

	return positions, nil
}

// CountOpenByAccount returns how many positions the account currently has open.
func (r *PositionRepository) CountOpenByAccount(
	ctx context.Context,
	accountID uint,
) (int64, error) {

	var count int64

	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("account_id = ? AND status = ?", accountID, model.PositionStatusOpen).
		Count(&count).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "PositionRepository",
			"op":         "CountOpenByAccount",
			"account_id": accountID,
		}).WithError(err).Error("Failed to count open positions")

		return 0, err
	}

	return count, nil
}

// DeleteByAccount removes every position of the account. Only the replay
// engine uses this, right before rebuilding the account from its trade log.
func (r *PositionRepository) DeleteByAccount(ctx context.Context, accountID uint) error {

	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Delete(&model.Position{}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "PositionRepository",
			"op":         "DeleteByAccount",
			"account_id": accountID,
		}).WithError(err).Error("Failed to delete positions")

		return err
	}

	return nil
}
