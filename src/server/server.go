package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeledger/src/database"
	"tradeledger/src/executor"
	"tradeledger/src/handler"
	"tradeledger/src/repository"
	"tradeledger/src/replay"
	"tradeledger/src/valuation"
)

// NewRouter wires every ledger service and its HTTP surface. Services are
// constructor-injected and share one per-account lock registry so intents
// and rebuilds on the same account serialize.
func NewRouter(db *gorm.DB, initialCapital float64) chi.Router {

	locks := executor.NewAccountLocks()
	engine := valuation.NewEngine(db)
	executorSvc := executor.NewService(db, locks, engine, initialCapital)
	replaySvc := replay.NewService(db, locks)

	accountRepo := repository.NewAccountRepository().WithDB(db)
	positionRepo := repository.NewPositionRepository().WithDB(db)
	tradeRepo := repository.NewTradeRepository().WithDB(db)
	historyRepo := repository.NewHistoryRepository().WithDB(db)
	settingsRepo := repository.NewSettingsRepository().WithDB(db)

	r := chi.NewRouter()

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("\"/healthcheck\" error")
		}
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/trades", handler.SubmitTradeHandler(executorSvc))
		r.Post("/prices", handler.PushPricesHandler(engine))

		r.Get("/accounts", handler.ListAccountsHandler(accountRepo))
		r.Route("/accounts/{owner}", func(r chi.Router) {
			r.Get("/", handler.GetAccountHandler(accountRepo, engine))
			r.Get("/positions", handler.ListPositionsHandler(accountRepo, positionRepo))
			r.Get("/trades", handler.ListTradesHandler(accountRepo, tradeRepo))
			r.Get("/history", handler.ListHistoryHandler(accountRepo, historyRepo))
			r.Get("/analysis", handler.AnalyzeHandler(replaySvc))
			r.Post("/rebuild", handler.RebuildHandler(replaySvc))
		})
		r.Post("/rebuild", handler.RebuildAllHandler(replaySvc))

		r.Get("/settings", handler.GetSettingsHandler(settingsRepo))
		r.Put("/settings", handler.UpdateSettingsHandler(settingsRepo))
		r.Post("/settings/reset", handler.ResetSettingsHandler(settingsRepo))
	})

	return r
}

// StartServer serves the ledger API until SIGINT or SIGTERM.
func StartServer(port string) {

	dbConfig := database.GetConfig()
	r := NewRouter(database.MainDB, dbConfig.InitialCapital)

	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
