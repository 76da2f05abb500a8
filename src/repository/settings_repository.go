package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeledger/src/database"
	"tradeledger/src/model"
)

// SettingsRepository manages named risk configurations.
type SettingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository creates a new repository instance using the main read/write database.
func NewSettingsRepository() *SettingsRepository {
	return &SettingsRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *SettingsRepository) WithDB(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get fetches the named risk config, creating it from the documented
// defaults on first reference.
func (r *SettingsRepository) Get(ctx context.Context, name string) (*model.RiskConfig, error) {

	if name == "" {
		name = model.DefaultRiskConfigName
	}

	var config model.RiskConfig

	err := r.db.WithContext(ctx).
		Where("name = ?", name).
		First(&config).Error

	if err == nil {
		return &config, nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.WithFields(map[string]interface{}{
			"repo": "SettingsRepository",
			"op":   "Get",
			"name": name,
		}).WithError(err).Error("Failed to fetch risk config")

		return nil, err
	}

	config = model.DefaultRiskConfig()
	config.Name = name

	if err := r.db.WithContext(ctx).Create(&config).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "SettingsRepository",
			"op":   "Get",
			"name": name,
		}).WithError(err).Error("Failed to create default risk config")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo": "SettingsRepository",
		"op":   "Get",
		"name": name,
	}).Info("Default risk config created")

	return &config, nil
}

// Update persists every field of the config.
func (r *SettingsRepository) Update(ctx context.Context, config *model.RiskConfig) error {

	err := r.db.WithContext(ctx).Save(config).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "SettingsRepository",
			"op":   "Update",
			"name": config.Name,
		}).WithError(err).Error("Failed to update risk config")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo": "SettingsRepository",
		"op":   "Update",
		"name": config.Name,
	}).Info("Risk config updated")

	return nil
}

// Reset deletes the named config and recreates it with the defaults.
func (r *SettingsRepository) Reset(ctx context.Context, name string) (*model.RiskConfig, error) {

	if name == "" {
		name = model.DefaultRiskConfigName
	}

	err := r.db.WithContext(ctx).
		Where("name = ?", name).
		Delete(&model.RiskConfig{}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "SettingsRepository",
			"op":   "Reset",
			"name": name,
		}).WithError(err).Error("Failed to delete risk config")

		return nil, err
	}

	return r.Get(ctx, name)
}
