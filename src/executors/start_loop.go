package executors

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeledger/src/connectors"
	"tradeledger/src/history"
	"tradeledger/src/valuation"
)

// StartLoop drives the two external cadences of the ledger: marking open
// positions with fresh prices and recording equity history. It owns no
// ledger logic; it only invokes the valuation engine and the recorder on
// their configured periods until ctx is canceled.
func StartLoop(ctx context.Context, db *gorm.DB) error {

	config := GetConfig()

	engine := valuation.NewEngine(db)
	recorder := history.NewRecorder(db, engine)
	ticker := connectors.NewTickerClient(config.TickerBaseURL, config.TickerRetries)

	if config.UseStream {
		stream := connectors.NewPriceStream(config.StreamBaseURL, config.Symbols,
			func(symbol string, price float64) {
				if err := engine.MarkPrice(ctx, symbol, price); err != nil {
					logger.WithError(err).WithField("symbol", symbol).
						Error("Failed to apply streamed mark price")
				}
			})

		go func() {
			if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("Price stream terminated")
			}
		}()
	}

	markTicker := time.NewTicker(config.MarkPeriod)
	defer markTicker.Stop()

	historyTicker := time.NewTicker(config.HistoryPeriod)
	defer historyTicker.Stop()

	logger.WithFields(logger.Fields{
		"symbols":        config.Symbols,
		"mark_period":    config.MarkPeriod,
		"history_period": config.HistoryPeriod,
	}).Info("Cadence loop started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Cadence loop stopped")
			return ctx.Err()

		case <-markTicker.C:
			if config.UseStream {
				continue // stream already delivers marks
			}

			prices, err := ticker.FetchPrices(ctx, config.Symbols)
			if err != nil {
				logger.WithError(err).Error("Failed to fetch ticker prices")
				continue
			}

			for symbol, price := range prices {
				if err := engine.MarkPrice(ctx, symbol, price); err != nil {
					logger.WithError(err).WithField("symbol", symbol).
						Error("Failed to apply mark price")
				}
			}

		case <-historyTicker.C:
			if _, err := recorder.RecordAll(ctx); err != nil {
				logger.WithError(err).Error("Failed to record history snapshots")
			}
		}
	}
}
