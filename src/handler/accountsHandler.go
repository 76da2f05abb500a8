package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"tradeledger/src/model"
	"tradeledger/src/valuation"
)

type accountReader interface {
	FindByOwner(ctx context.Context, owner string) (*model.Account, error)
	ListAll(ctx context.Context) ([]model.Account, error)
}

type positionLister interface {
	ListByAccount(ctx context.Context, accountID uint, status string) ([]model.Position, error)
}

type historyLister interface {
	ListByAccount(ctx context.Context, accountID uint, limit int) ([]model.HistorySnapshot, error)
}

type valuationSnapshotter interface {
	Snapshot(ctx context.Context, account *model.Account) (valuation.Valuation, error)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithError(err).Error("Failed to encode response")
	}
}

// findAccount resolves the {owner} path parameter to an account, writing
// the appropriate error response when it cannot.
func findAccount(w http.ResponseWriter, r *http.Request, repo accountReader) *model.Account {
	owner := chi.URLParam(r, "owner")
	if owner == "" {
		http.Error(w, "missing owner", http.StatusBadRequest)
		return nil
	}

	account, err := repo.FindByOwner(r.Context(), owner)
	if err != nil {
		logger.WithError(err).Error("failed to fetch account")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return nil
	}
	if account == nil {
		http.Error(w, "account not found", http.StatusNotFound)
		return nil
	}

	return account
}

// ListAccountsHandler returns every ledger account.
func ListAccountsHandler(repo accountReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accounts, err := repo.ListAll(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to list accounts")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, accounts)
	}
}

// GetAccountHandler returns one account together with its live valuation.
func GetAccountHandler(repo accountReader, engine valuationSnapshotter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := findAccount(w, r, repo)
		if account == nil {
			return
		}

		v, err := engine.Snapshot(r.Context(), account)
		if err != nil {
			logger.WithError(err).Error("failed to compute valuation")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"account":   account,
			"valuation": v,
		})
	}
}

// ListPositionsHandler lists the account's positions, optionally filtered by
// ?status=open|closed.
func ListPositionsHandler(accounts accountReader, positions positionLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := findAccount(w, r, accounts)
		if account == nil {
			return
		}

		status := r.URL.Query().Get("status")
		switch status {
		case "", model.PositionStatusOpen, model.PositionStatusClosed:
		default:
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}

		result, err := positions.ListByAccount(r.Context(), account.ID, status)
		if err != nil {
			logger.WithError(err).Error("failed to list positions")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// ListHistoryHandler lists the account's equity snapshots, newest first.
func ListHistoryHandler(accounts accountReader, snapshots historyLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := findAccount(w, r, accounts)
		if account == nil {
			return
		}

		limit := 0
		if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
			parsed, err := strconv.Atoi(limitParam)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		result, err := snapshots.ListByAccount(r.Context(), account.ID, limit)
		if err != nil {
			logger.WithError(err).Error("failed to list history")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}
