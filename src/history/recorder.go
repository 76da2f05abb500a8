package history

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeledger/src/model"
	"tradeledger/src/repository"
	"tradeledger/src/valuation"
)

// Recorder appends one equity snapshot per active account whenever it is
// invoked. It never mutates ledger state and never deduplicates; the caller
// owns the cadence.
type Recorder struct {
	db     *gorm.DB
	engine *valuation.Engine
	log    *logger.Entry
	now    func() time.Time
}

func NewRecorder(db *gorm.DB, engine *valuation.Engine) *Recorder {
	return &Recorder{
		db:     db,
		engine: engine,
		log:    logger.WithField("component", "history"),
		now:    time.Now,
	}
}

// Record computes the account's valuation and appends one snapshot.
func (r *Recorder) Record(ctx context.Context, account *model.Account) (*model.HistorySnapshot, error) {

	v, err := r.engine.Snapshot(ctx, account)
	if err != nil {
		return nil, err
	}

	snapshot := BuildSnapshot(account.ID, r.now(), v)

	if err := repository.NewHistoryRepository().WithDB(r.db).Create(ctx, snapshot); err != nil {
		return nil, err
	}

	return snapshot, nil
}

// RecordAll snapshots every active account, returning how many snapshots
// were written. A failing account is logged and skipped.
func (r *Recorder) RecordAll(ctx context.Context) (int, error) {

	accounts, err := repository.NewAccountRepository().WithDB(r.db).ListActive(ctx)
	if err != nil {
		return 0, err
	}

	written := 0
	for i := range accounts {
		if _, err := r.Record(ctx, &accounts[i]); err != nil {
			r.log.WithError(err).WithField("owner", accounts[i].Owner).
				Error("Failed to record history snapshot")
			continue
		}
		written++
	}

	r.log.WithFields(logger.Fields{
		"accounts":  len(accounts),
		"snapshots": written,
	}).Debug("History snapshots recorded")

	return written, nil
}

// BuildSnapshot turns a computed valuation into a snapshot row.
func BuildSnapshot(accountID uint, at time.Time, v valuation.Valuation) *model.HistorySnapshot {
	return &model.HistorySnapshot{
		AccountID:     accountID,
		Timestamp:     at,
		TotalEquity:   v.TotalEquity,
		Cash:          v.Cash,
		PositionValue: v.PositionValue,
		LongExposure:  v.LongExposure,
		ShortExposure: v.ShortExposure,
		TotalQuantity: v.TotalQuantity,
		AvgLeverage:   v.AvgLeverage,
		Pnl:           v.TotalPnl,
		PnlPercent:    v.TotalReturn,
	}
}
