package handler

import (
	"context"
	"encoding/json"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"tradeledger/src/model"
)

type settingsStore interface {
	Get(ctx context.Context, name string) (*model.RiskConfig, error)
	Update(ctx context.Context, config *model.RiskConfig) error
	Reset(ctx context.Context, name string) (*model.RiskConfig, error)
}

// GetSettingsHandler returns the active risk config, creating the defaults
// on first reference.
func GetSettingsHandler(store settingsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		config, err := store.Get(r.Context(), r.URL.Query().Get("name"))
		if err != nil {
			logger.WithError(err).Error("failed to fetch risk config")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, config)
	}
}

// UpdateSettingsHandler overwrites the named risk config with the submitted
// fields. The payload must carry the full config; partial updates go
// through a read-modify-write on the caller's side.
func UpdateSettingsHandler(store settingsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload model.RiskConfig
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}

		current, err := store.Get(r.Context(), payload.Name)
		if err != nil {
			logger.WithError(err).Error("failed to fetch risk config")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		payload.ID = current.ID
		payload.Name = current.Name
		payload.CreatedAt = current.CreatedAt

		if err := store.Update(r.Context(), &payload); err != nil {
			logger.WithError(err).Error("failed to update risk config")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, &payload)
	}
}

// ResetSettingsHandler restores the named config to the documented defaults.
func ResetSettingsHandler(store settingsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		config, err := store.Reset(r.Context(), r.URL.Query().Get("name"))
		if err != nil {
			logger.WithError(err).Error("failed to reset risk config")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, config)
	}
}
