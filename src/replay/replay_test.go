package replay

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"tradeledger/src/database"
	"tradeledger/src/executor"
	"tradeledger/src/model"
	"tradeledger/src/repository"
	"tradeledger/src/valuation"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in memory db: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to automigrate: %v", err)
	}

	return db
}

func seedConfig(t *testing.T, db *gorm.DB) {
	t.Helper()

	cfg := model.DefaultRiskConfig()
	cfg.TakerFee = 0.0005
	cfg.MaxLeverage = 10
	cfg.AllowShort = true
	cfg.CooldownMinutes = 0
	cfg.MaxPositionPercent = 1.0
	cfg.MaxTradeAmount = 1e9

	require.NoError(t, db.Create(&cfg).Error)
}

func newHarness(t *testing.T, db *gorm.DB) (*executor.Service, *Service) {
	t.Helper()

	locks := executor.NewAccountLocks()
	exec := executor.NewService(db, locks, valuation.NewEngine(db), 10000)
	svc := NewService(db, locks)
	svc.now = func() time.Time {
		return time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)
	}
	return exec, svc
}

// runs a realistic mixed sequence including a rejected trade that the
// rebuild must skip
func seedTrades(t *testing.T, exec *executor.Service, owner string) {
	t.Helper()
	ctx := context.Background()

	intents := []executor.Intent{
		{Owner: owner, Symbol: "BTCUSDT", Side: "BUY", Quantity: 0.1, Price: 50000, Leverage: 2},
		{Owner: owner, Symbol: "ETHUSDT", Side: "SELL", Direction: "short", Quantity: 2, Price: 1000, Leverage: 2},
		{Owner: owner, Symbol: "BTCUSDT", Side: "SELL", Quantity: 0.05, Price: 52000},
		{Owner: owner, Symbol: "SOLUSDT", Side: "SELL", Quantity: 1, Price: 100}, // rejected, no position
		{Owner: owner, Symbol: "ETHUSDT", Side: "BUY", Quantity: 2, Price: 950},
	}

	for _, intent := range intents {
		_, err := exec.Submit(ctx, intent)
		require.NoError(t, err)
	}
}

type positionKey struct {
	Symbol   string
	Side     string
	Quantity float64
	Entry    float64
	Margin   float64
}

func openPositionKeys(t *testing.T, db *gorm.DB, accountID uint) []positionKey {
	t.Helper()

	positions, err := repository.NewPositionRepository().WithDB(db).
		ListByAccount(context.Background(), accountID, model.PositionStatusOpen)
	require.NoError(t, err)

	keys := make([]positionKey, 0, len(positions))
	for i := range positions {
		keys = append(keys, positionKey{
			Symbol:   positions[i].Symbol,
			Side:     positions[i].Side,
			Quantity: positions[i].Quantity,
			Entry:    positions[i].EntryPrice,
			Margin:   positions[i].Margin,
		})
	}
	return keys
}

func TestRebuildReproducesLiveState(t *testing.T) {
	db := newTestDB(t)
	seedConfig(t, db)
	exec, svc := newHarness(t, db)
	ctx := context.Background()

	seedTrades(t, exec, "deepseek")

	account, err := repository.NewAccountRepository().WithDB(db).FindByOwner(ctx, "deepseek")
	require.NoError(t, err)
	require.NotNil(t, account)

	liveCash := account.Cash
	liveEquity := account.TotalEquity
	livePositions := openPositionKeys(t, db, account.ID)

	// wreck the projections to prove the rebuild does not depend on them
	account.Cash = 0
	account.TotalEquity = 0
	account.PeakEquity = 0
	require.NoError(t, repository.NewAccountRepository().WithDB(db).Save(ctx, account))

	result, err := svc.Rebuild(ctx, "deepseek")
	require.NoError(t, err)
	require.Equal(t, 4, result.TradesReplayed) // the rejected trade is not replayed
	require.Equal(t, 5, result.SnapshotsWritten)

	rebuilt, err := repository.NewAccountRepository().WithDB(db).FindByOwner(ctx, "deepseek")
	require.NoError(t, err)
	require.InDelta(t, liveCash, rebuilt.Cash, 1e-6)
	require.InDelta(t, liveEquity, rebuilt.TotalEquity, 1e-6)

	rebuiltPositions := openPositionKeys(t, db, account.ID)
	require.Equal(t, len(livePositions), len(rebuiltPositions))
	for i := range livePositions {
		require.Equal(t, livePositions[i].Symbol, rebuiltPositions[i].Symbol)
		require.Equal(t, livePositions[i].Side, rebuiltPositions[i].Side)
		require.InDelta(t, livePositions[i].Quantity, rebuiltPositions[i].Quantity, 1e-9)
		require.InDelta(t, livePositions[i].Entry, rebuiltPositions[i].Entry, 1e-9)
		require.InDelta(t, livePositions[i].Margin, rebuiltPositions[i].Margin, 1e-9)
	}
}

func TestRebuildIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	seedConfig(t, db)
	exec, svc := newHarness(t, db)
	ctx := context.Background()

	seedTrades(t, exec, "qwen")

	first, err := svc.Rebuild(ctx, "qwen")
	require.NoError(t, err)

	account, err := repository.NewAccountRepository().WithDB(db).FindByOwner(ctx, "qwen")
	require.NoError(t, err)
	firstCash := account.Cash
	firstEquity := account.TotalEquity

	second, err := svc.Rebuild(ctx, "qwen")
	require.NoError(t, err)
	require.Equal(t, first.TradesReplayed, second.TradesReplayed)

	account, err = repository.NewAccountRepository().WithDB(db).FindByOwner(ctx, "qwen")
	require.NoError(t, err)
	require.InDelta(t, firstCash, account.Cash, 1e-9)
	require.InDelta(t, firstEquity, account.TotalEquity, 1e-9)

	// history is regenerated, not appended
	snapshots, err := repository.NewHistoryRepository().WithDB(db).
		ListByAccount(ctx, account.ID, 0)
	require.NoError(t, err)
	require.Len(t, snapshots, second.SnapshotsWritten)
}

func TestRebuildUnknownOwner(t *testing.T) {
	db := newTestDB(t)
	seedConfig(t, db)
	_, svc := newHarness(t, db)

	_, err := svc.Rebuild(context.Background(), "nobody")
	require.Error(t, err)
	require.Contains(t, err.Error(), "nobody")
}

func TestRebuildAllContinuesOnFailure(t *testing.T) {
	db := newTestDB(t)
	seedConfig(t, db)
	exec, svc := newHarness(t, db)
	ctx := context.Background()

	seedTrades(t, exec, "alpha")

	// second account with a corrupt log: a close with no matching open
	broken, err := repository.NewAccountRepository().WithDB(db).GetOrCreate(ctx, "broken", 10000)
	require.NoError(t, err)
	require.NoError(t, repository.NewTradeRepository().WithDB(db).Create(ctx, &model.Trade{
		AccountID:  broken.ID,
		IntentID:   "11111111-1111-1111-1111-111111111111",
		Symbol:     "BTCUSDT",
		Side:       model.TradeSideSell,
		ActionType: model.ActionClose,
		Quantity:   1,
		Price:      50000,
		Notional:   50000,
		Status:     model.TradeStatusCompleted,
		ExecutedAt: time.Now(),
	}))

	results, err := svc.RebuildAll(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byOwner := map[string]Result{}
	for _, r := range results {
		byOwner[r.Owner] = r
	}
	require.Empty(t, byOwner["alpha"].Error)
	require.Equal(t, 4, byOwner["alpha"].TradesReplayed)
	require.NotEmpty(t, byOwner["broken"].Error)
}

func TestAnalyzeMatchesLedgerWithoutPersisting(t *testing.T) {
	db := newTestDB(t)
	seedConfig(t, db)
	exec, svc := newHarness(t, db)
	ctx := context.Background()

	seedTrades(t, exec, "gemini")

	account, err := repository.NewAccountRepository().WithDB(db).FindByOwner(ctx, "gemini")
	require.NoError(t, err)

	var tradesBefore int64
	require.NoError(t, db.Model(&model.Trade{}).Count(&tradesBefore).Error)

	report, err := svc.Analyze(ctx, "gemini")
	require.NoError(t, err)

	require.Equal(t, 4, report.TradesAnalyzed)
	require.Len(t, report.Entries, 4)
	require.InDelta(t, account.Cash, report.FinalCash, 1e-6)
	require.Equal(t, 1, report.OpenPositions)

	// unrealized is treated as zero, so equity is cash plus reserved margin
	var marginSum float64
	positions, err := repository.NewPositionRepository().WithDB(db).
		ListByAccount(ctx, account.ID, model.PositionStatusOpen)
	require.NoError(t, err)
	for i := range positions {
		marginSum += positions[i].Margin
	}
	require.InDelta(t, report.FinalCash+marginSum, report.FinalEquity, 1e-6)

	// every entry carries a running cash figure that ends at the final one
	require.InDelta(t, report.FinalCash, report.Entries[len(report.Entries)-1].CashAfter, 1e-9)

	// read-only: no new rows
	var tradesAfter int64
	require.NoError(t, db.Model(&model.Trade{}).Count(&tradesAfter).Error)
	require.Equal(t, tradesBefore, tradesAfter)

	reloaded, err := repository.NewAccountRepository().WithDB(db).FindByOwner(ctx, "gemini")
	require.NoError(t, err)
	require.InDelta(t, account.Cash, reloaded.Cash, 1e-9)
}

func TestAnalyzeUnknownOwner(t *testing.T) {
	db := newTestDB(t)
	seedConfig(t, db)
	_, svc := newHarness(t, db)

	_, err := svc.Analyze(context.Background(), "nobody")
	require.Error(t, err)
}
