package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	logger "github.com/sirupsen/logrus"

	"tradeledger/src/executor"
	"tradeledger/src/model"
	"tradeledger/src/repository"
)

type tradeSubmitter interface {
	Submit(ctx context.Context, intent executor.Intent) (*model.Trade, error)
}

type tradeSearcher interface {
	Search(ctx context.Context, options repository.TradeSearchOptions) ([]model.Trade, error)
}

// SubmitTradeHandler accepts a trade intent and runs it through the
// executor. Business-rule rejections come back as a failed trade with HTTP
// 200; only malformed payloads get a 400.
func SubmitTradeHandler(svc tradeSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var intent executor.Intent
		if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}

		trade, err := svc.Submit(r.Context(), intent)
		if err != nil {
			if trade == nil {
				// malformed intent or storage failure
				logger.WithError(err).Warn("trade submission rejected")
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			logger.WithError(err).Error("trade submission failed")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, trade)
	}
}

// ListTradesHandler lists the account's trades newest first. Supports
// pagination and filters (symbol, status).
func ListTradesHandler(accounts accountReader, trades tradeSearcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := findAccount(w, r, accounts)
		if account == nil {
			return
		}

		var symbol *string
		if symbolParam := r.URL.Query().Get("symbol"); symbolParam != "" {
			symbol = &symbolParam
		}

		var status *string
		if statusParam := r.URL.Query().Get("status"); statusParam != "" {
			if statusParam != model.TradeStatusCompleted && statusParam != model.TradeStatusFailed {
				http.Error(w, "invalid status", http.StatusBadRequest)
				return
			}
			status = &statusParam
		}

		page := 1
		if pageParam := r.URL.Query().Get("page"); pageParam != "" {
			parsedPage, err := strconv.Atoi(pageParam)
			if err != nil || parsedPage <= 0 {
				http.Error(w, "invalid page", http.StatusBadRequest)
				return
			}
			page = parsedPage
		}

		pageSize := 20
		if sizeParam := r.URL.Query().Get("pageSize"); sizeParam != "" {
			parsedSize, err := strconv.Atoi(sizeParam)
			if err != nil || parsedSize <= 0 {
				http.Error(w, "invalid pageSize", http.StatusBadRequest)
				return
			}
			pageSize = parsedSize
		}

		result, err := trades.Search(r.Context(), repository.TradeSearchOptions{
			AccountID: account.ID,
			Symbol:    symbol,
			Status:    status,
			Limit:     pageSize,
			Offset:    (page - 1) * pageSize,
		})
		if err != nil {
			logger.WithError(err).Error("failed to search trades")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}
