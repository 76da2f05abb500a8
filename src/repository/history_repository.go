package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeledger/src/database"
	"tradeledger/src/model"
)

// HistoryRepository handles the append-only equity history.
type HistoryRepository struct {
	db *gorm.DB
}

// NewHistoryRepository creates a new repository instance using the main read/write database.
func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *HistoryRepository) WithDB(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Create appends one snapshot.
func (r *HistoryRepository) Create(ctx context.Context, snapshot *model.HistorySnapshot) error {

	err := r.db.WithContext(ctx).Create(snapshot).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "HistoryRepository",
			"op":         "Create",
			"account_id": snapshot.AccountID,
		}).WithError(err).Error("Failed to append history snapshot")

		return err
	}

	return nil
}

// ListByAccount returns the account's snapshots newest first, capped at limit.
func (r *HistoryRepository) ListByAccount(
	ctx context.Context,
	accountID uint,
	limit int,
) ([]model.HistorySnapshot, error) {

	if limit <= 0 {
		limit = 1000
	}

	var snapshots []model.HistorySnapshot

	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&snapshots).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "HistoryRepository",
			"op":         "ListByAccount",
			"account_id": accountID,
		}).WithError(err).Error("Failed to list history snapshots")

		return nil, err
	}

	return snapshots, nil
}

// DeleteByAccount removes the account's whole history. Only the replay engine
// uses this before regenerating the snapshots from the trade log.
func (r *HistoryRepository) DeleteByAccount(ctx context.Context, accountID uint) error {

	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Delete(&model.HistorySnapshot{}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "HistoryRepository",
			"op":         "DeleteByAccount",
			"account_id": accountID,
		}).WithError(err).Error("Failed to delete history snapshots")

		return err
	}

	return nil
}
