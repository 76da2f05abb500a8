package handler

import (
	"context"
	"encoding/json"
	"net/http"

	logger "github.com/sirupsen/logrus"
)

type priceMarker interface {
	MarkPrice(ctx context.Context, symbol string, price float64) error
}

// PushPricesHandler accepts a {symbol: price} map from a price-feed
// collaborator and marks every open position accordingly.
func PushPricesHandler(engine priceMarker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var prices map[string]float64
		if err := json.NewDecoder(r.Body).Decode(&prices); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}

		for symbol, price := range prices {
			if price <= 0 {
				http.Error(w, "prices must be positive", http.StatusBadRequest)
				return
			}
			if err := engine.MarkPrice(r.Context(), symbol, price); err != nil {
				logger.WithError(err).WithField("symbol", symbol).
					Error("failed to apply mark price")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
		}

		writeJSON(w, http.StatusOK, map[string]int{"symbols_marked": len(prices)})
	}
}
