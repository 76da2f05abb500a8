package replay

import (
	"context"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeledger/src/executor"
	"tradeledger/src/history"
	"tradeledger/src/model"
	"tradeledger/src/repository"
	"tradeledger/src/valuation"
)

// Service rebuilds derived ledger state from the authoritative trade log.
// Positions, account equity and history are projections; the append-only
// trade stream is the source of truth.
type Service struct {
	db         *gorm.DB
	locks      *executor.AccountLocks
	log        *logger.Entry
	now        func() time.Time
	configName string
}

func NewService(db *gorm.DB, locks *executor.AccountLocks) *Service {
	return &Service{
		db:         db,
		locks:      locks,
		log:        logger.WithField("component", "replay"),
		now:        time.Now,
		configName: model.DefaultRiskConfigName,
	}
}

// Result summarizes one account's rebuild.
type Result struct {
	Owner            string `json:"owner"`
	TradesReplayed   int    `json:"trades_replayed"`
	SnapshotsWritten int    `json:"snapshots_written"`
	Error            string `json:"error,omitempty"`
}

// Rebuild resets the account to its initial state and deterministically
// re-applies its completed trade log, regenerating positions and history.
// The whole rebuild is one transaction under the account's lock.
func (s *Service) Rebuild(ctx context.Context, owner string) (Result, error) {

	lock := s.locks.Get(owner)
	lock.Lock()
	defer lock.Unlock()

	result := Result{Owner: owner}

	account, err := repository.NewAccountRepository().WithDB(s.db).FindByOwner(ctx, owner)
	if err != nil {
		return result, err
	}
	if account == nil {
		return result, fmt.Errorf("no account for owner %q", owner)
	}

	cfg, err := repository.NewSettingsRepository().WithDB(s.db).Get(ctx, s.configName)
	if err != nil {
		return result, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {

		accounts := repository.NewAccountRepository().WithDB(tx)
		positions := repository.NewPositionRepository().WithDB(tx)
		snapshots := repository.NewHistoryRepository().WithDB(tx)

		account.Cash = account.InitialCapital
		account.TotalEquity = account.InitialCapital
		account.TotalPnl = 0
		account.TotalReturn = 0
		account.PeakEquity = account.InitialCapital
		account.MaxDrawdown = 0
		if err := accounts.Save(ctx, account); err != nil {
			return err
		}

		if err := positions.DeleteByAccount(ctx, account.ID); err != nil {
			return err
		}
		if err := snapshots.DeleteByAccount(ctx, account.ID); err != nil {
			return err
		}

		trades, err := repository.NewTradeRepository().WithDB(tx).
			ListCompletedAscending(ctx, account.ID)
		if err != nil {
			return err
		}

		for i := range trades {
			trade := &trades[i]

			if err := executor.ReplayTrade(ctx, tx, account, trade, cfg.MergeSameDirection); err != nil {
				return fmt.Errorf("replaying trade %d: %w", trade.ID, err)
			}
			result.TradesReplayed++

			v, err := s.snapshotState(ctx, tx, account)
			if err != nil {
				return err
			}
			s.trackDrawdown(account, v.TotalEquity)

			if err := snapshots.Create(ctx,
				history.BuildSnapshot(account.ID, trade.ExecutedAt, v)); err != nil {
				return err
			}
			result.SnapshotsWritten++
		}

		// closing snapshot with the final reconstructed state
		v, err := s.snapshotState(ctx, tx, account)
		if err != nil {
			return err
		}
		s.trackDrawdown(account, v.TotalEquity)

		if err := snapshots.Create(ctx,
			history.BuildSnapshot(account.ID, s.now(), v)); err != nil {
			return err
		}
		result.SnapshotsWritten++

		account.TotalEquity = v.TotalEquity
		account.TotalPnl = v.TotalPnl
		account.TotalReturn = v.TotalReturn

		return accounts.Save(ctx, account)
	})
	if err != nil {
		return result, err
	}

	s.log.WithFields(logger.Fields{
		"owner":     owner,
		"trades":    result.TradesReplayed,
		"snapshots": result.SnapshotsWritten,
	}).Info("Account rebuilt from trade log")

	return result, nil
}

// RebuildAll rebuilds every account. A per-account failure is recorded in
// that account's result and the batch continues.
func (s *Service) RebuildAll(ctx context.Context) ([]Result, error) {

	accounts, err := repository.NewAccountRepository().WithDB(s.db).ListAll(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(accounts))
	for i := range accounts {
		result, err := s.Rebuild(ctx, accounts[i].Owner)
		if err != nil {
			result.Error = err.Error()
			s.log.WithError(err).WithField("owner", accounts[i].Owner).
				Error("Rebuild failed, continuing with next account")
		}
		results = append(results, result)
	}

	return results, nil
}

func (s *Service) snapshotState(
	ctx context.Context,
	tx *gorm.DB,
	account *model.Account,
) (valuation.Valuation, error) {

	open, err := repository.NewPositionRepository().WithDB(tx).
		ListByAccount(ctx, account.ID, model.PositionStatusOpen)
	if err != nil {
		return valuation.Valuation{}, err
	}

	return valuation.Compute(account, open), nil
}

func (s *Service) trackDrawdown(account *model.Account, equity float64) {
	if equity > account.PeakEquity {
		account.PeakEquity = equity
	}
	if account.PeakEquity > 0 {
		drawdown := (account.PeakEquity - equity) / account.PeakEquity
		if drawdown > account.MaxDrawdown {
			account.MaxDrawdown = drawdown
		}
	}
}
