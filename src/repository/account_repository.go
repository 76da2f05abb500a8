package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeledger/src/database"
	"tradeledger/src/model"
)

// AccountRepository handles read/write operations for ledger accounts.
type AccountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new repository instance using the main read/write database.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *AccountRepository) WithDB(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// FindByOwner fetches the account for the given owner key.
// Returns (nil, nil) if no account exists yet.
func (r *AccountRepository) FindByOwner(
	ctx context.Context,
	owner string,
) (*model.Account, error) {

	var account model.Account

	err := r.db.WithContext(ctx).
		Where("owner = ?", owner).
		First(&account).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":  "AccountRepository",
			"op":    "FindByOwner",
			"owner": owner,
		}).WithError(err).Error("Failed to fetch account")

		return nil, err
	}

	return &account, nil
}

// GetOrCreate returns the account for the owner, creating it lazily with the
// given initial capital on first reference.
func (r *AccountRepository) GetOrCreate(
	ctx context.Context,
	owner string,
	initialCapital float64,
) (*model.Account, error) {

	account, err := r.FindByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	if account != nil {
		return account, nil
	}

	account = &model.Account{
		Owner:          owner,
		Cash:           initialCapital,
		InitialCapital: initialCapital,
		TotalEquity:    initialCapital,
		PeakEquity:     initialCapital,
		Status:         model.AccountStatusActive,
	}

	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "AccountRepository",
			"op":    "GetOrCreate",
			"owner": owner,
		}).WithError(err).Error("Failed to create account")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":            "AccountRepository",
		"op":              "GetOrCreate",
		"owner":           owner,
		"account_id":      account.ID,
		"initial_capital": initialCapital,
	}).Info("Account created")

	return account, nil
}

// ListAll returns every account ordered by owner.
func (r *AccountRepository) ListAll(ctx context.Context) ([]model.Account, error) {

	var accounts []model.Account

	err := r.db.WithContext(ctx).
		Order("owner ASC").
		Find(&accounts).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "AccountRepository",
			"op":   "ListAll",
		}).WithError(err).Error("Failed to list accounts")

		return nil, err
	}

	return accounts, nil
}

// ListActive returns every active account ordered by owner.
func (r *AccountRepository) ListActive(ctx context.Context) ([]model.Account, error) {

	var accounts []model.Account

	err := r.db.WithContext(ctx).
		Where("status = ?", model.AccountStatusActive).
		Order("owner ASC").
		Find(&accounts).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "AccountRepository",
			"op":   "ListActive",
		}).WithError(err).Error("Failed to list active accounts")

		return nil, err
	}

	return accounts, nil
}

// Save persists every field of the account.
func (r *AccountRepository) Save(ctx context.Context, account *model.Account) error {

	err := r.db.WithContext(ctx).Save(account).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "AccountRepository",
			"op":         "Save",
			"account_id": account.ID,
		}).WithError(err).Error("Failed to save account")

		return err
	}

	return nil
}
