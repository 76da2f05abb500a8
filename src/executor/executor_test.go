package executor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"tradeledger/src/database"
	"tradeledger/src/model"
	"tradeledger/src/repository"
	"tradeledger/src/valuation"
)

// helper to create a new in memory gorm DB and migrate schema
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

// a permissive config used by most scenarios: 5bps taker fee, no
// cooldown so sequences of trades can run back to back
func testConfig(t *testing.T, db *gorm.DB, mutate func(*model.RiskConfig)) {
	t.Helper()

	cfg := model.DefaultRiskConfig()
	cfg.TakerFee = 0.0005
	cfg.MaxLeverage = 10
	cfg.AllowShort = true
	cfg.CooldownMinutes = 0
	cfg.MaxPositionPercent = 1.0
	cfg.MaxTradeAmount = 1e9

	if mutate != nil {
		mutate(&cfg)
	}

	require.NoError(t, db.Create(&cfg).Error)
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()

	svc := NewService(db, NewAccountLocks(), valuation.NewEngine(db), 10000)

	// deterministic, strictly increasing clock
	base := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	svc.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	return svc
}

func getAccount(t *testing.T, db *gorm.DB, owner string) *model.Account {
	t.Helper()

	account, err := repository.NewAccountRepository().WithDB(db).FindByOwner(context.Background(), owner)
	require.NoError(t, err)
	require.NotNil(t, account)
	return account
}

func TestOpenLongReservesMarginAndFee(t *testing.T) {
	db := newTestDB(t)
	testConfig(t, db, nil)
	svc := newTestService(t, db)

	trade, err := svc.Submit(context.Background(), Intent{
		Owner:    "deepseek",
		Symbol:   "BTCUSDT",
		Side:     "BUY",
		Quantity: 0.1,
		Price:    50000,
		Leverage: 2,
	})
	require.NoError(t, err)
	require.Equal(t, model.TradeStatusCompleted, trade.Status)
	require.Equal(t, model.ActionOpenLong, trade.ActionType)
	require.InDelta(t, 5000.0, trade.Notional, 1e-9)
	require.InDelta(t, 2.5, trade.Fee, 1e-9)

	account := getAccount(t, db, "deepseek")
	require.InDelta(t, 7497.5, account.Cash, 1e-9)

	positions, err := repository.NewPositionRepository().WithDB(db).
		ListByAccount(context.Background(), account.ID, model.PositionStatusOpen)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, model.PositionSideLong, positions[0].Side)
	require.InDelta(t, 2500.0, positions[0].Margin, 1e-9)
	require.InDelta(t, 50000.0, positions[0].EntryPrice, 1e-9)
}

func TestMarkPriceMovesEquity(t *testing.T) {
	db := newTestDB(t)
	testConfig(t, db, nil)
	svc := newTestService(t, db)
	engine := valuation.NewEngine(db)

	_, err := svc.Submit(context.Background(), Intent{
		Owner: "deepseek", Symbol: "BTCUSDT", Side: "BUY",
		Quantity: 0.1, Price: 50000, Leverage: 2,
	})
	require.NoError(t, err)

	require.NoError(t, engine.MarkPrice(context.Background(), "BTCUSDT", 51000))

	account := getAccount(t, db, "deepseek")
	require.InDelta(t, 10097.5, account.TotalEquity, 1e-9)

	positions, err := repository.NewPositionRepository().WithDB(db).
		ListByAccount(context.Background(), account.ID, model.PositionStatusOpen)
	require.NoError(t, err)
	require.InDelta(t, 100.0, positions[0].UnrealizedPnl, 1e-9)
}

func TestFullCloseRealizesPnl(t *testing.T) {
	db := newTestDB(t)
	testConfig(t, db, nil)
	svc := newTestService(t, db)

	_, err := svc.Submit(context.Background(), Intent{
		Owner: "deepseek", Symbol: "BTCUSDT", Side: "BUY",
		Quantity: 0.1, Price: 50000, Leverage: 2,
	})
	require.NoError(t, err)

	trade, err := svc.Submit(context.Background(), Intent{
		Owner: "deepseek", Symbol: "BTCUSDT", Side: "SELL",
		Quantity: 0.1, Price: 51000,
	})
	require.NoError(t, err)
	require.Equal(t, model.TradeStatusCompleted, trade.Status)
	require.Equal(t, model.ActionClose, trade.ActionType)
	require.InDelta(t, 2.55, trade.Fee, 1e-9)

	account := getAccount(t, db, "deepseek")
	require.InDelta(t, 10094.95, account.Cash, 1e-9)

	positions, err := repository.NewPositionRepository().WithDB(db).
		ListByAccount(context.Background(), account.ID, "")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, model.PositionStatusClosed, positions[0].Status)
	require.Zero(t, positions[0].Quantity)
	require.InDelta(t, 100.0, positions[0].RealizedPnl, 1e-9)
	require.NotNil(t, positions[0].ClosedAt)

	// further marks no longer touch the closed position
	engine := valuation.NewEngine(db)
	require.NoError(t, engine.MarkPrice(context.Background(), "BTCUSDT", 60000))

	account = getAccount(t, db, "deepseek")
	require.InDelta(t, 10094.95, account.TotalEquity, 1e-9)
}

func TestPartialCloseReleasesMarginProportionally(t *testing.T) {
	db := newTestDB(t)
	testConfig(t, db, nil)
	svc := newTestService(t, db)

	_, err := svc.Submit(context.Background(), Intent{
		Owner: "qwen", Symbol: "ETHUSDT", Side: "BUY",
		Quantity: 2, Price: 1000, Leverage: 2,
	})
	require.NoError(t, err)

	trade, err := svc.Submit(context.Background(), Intent{
		Owner: "qwen", Symbol: "ETHUSDT", Side: "SELL",
		Quantity: 0.5, Price: 1100,
	})
	require.NoError(t, err)
	require.InDelta(t, 0.5, trade.Quantity, 1e-9)

	account := getAccount(t, db, "qwen")
	positions, err := repository.NewPositionRepository().WithDB(db).
		ListByAccount(context.Background(), account.ID, model.PositionStatusOpen)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.InDelta(t, 1.5, positions[0].Quantity, 1e-9)
	require.InDelta(t, 750.0, positions[0].Margin, 1e-9) // quarter of 1000 released
	require.InDelta(t, 50.0, positions[0].RealizedPnl, 1e-9)
}

func TestShortUnrealizedPnl(t *testing.T) {
	db := newTestDB(t)
	testConfig(t, db, nil)
	svc := newTestService(t, db)
	engine := valuation.NewEngine(db)

	trade, err := svc.Submit(context.Background(), Intent{
		Owner: "gemini", Symbol: "XRPUSDT", Side: "SELL", Direction: "short",
		Quantity: 1, Price: 100, Leverage: 1,
	})
	require.NoError(t, err)
	require.Equal(t, model.ActionOpenShort, trade.ActionType)

	require.NoError(t, engine.MarkPrice(context.Background(), "XRPUSDT", 110))

	account := getAccount(t, db, "gemini")
	positions, err := repository.NewPositionRepository().WithDB(db).
		ListByAccount(context.Background(), account.ID, model.PositionStatusOpen)
	require.NoError(t, err)
	require.InDelta(t, -10.0, positions[0].UnrealizedPnl, 1e-9)
}

func TestSellWithoutPositionFails(t *testing.T) {
	db := newTestDB(t)
	testConfig(t, db, nil)
	svc := newTestService(t, db)

	trade, err := svc.Submit(context.Background(), Intent{
		Owner: "claude", Symbol: "BTCUSDT", Side: "SELL",
		Quantity: 0.1, Price: 50000,
	})
	require.NoError(t, err)
	require.Equal(t, model.TradeStatusFailed, trade.Status)
	require.Contains(t, trade.Feedback, "no open position")

	account := getAccount(t, db, "claude")
	require.InDelta(t, 10000.0, account.Cash, 1e-9)

	positions, err := repository.NewPositionRepository().WithDB(db).
		ListByAccount(context.Background(), account.ID, "")
	require.NoError(t, err)
	require.Empty(t, positions)
}

func TestMaxOpenPositionsRejectsRegardlessOfCash(t *testing.T) {
	db := newTestDB(t)
	testConfig(t, db, func(cfg *model.RiskConfig) {
		cfg.MaxOpenPositions = 3
	})
	svc := newTestService(t, db)

	for _, symbol := range []string{"BTCUSDT", "ETHUSDT", "XRPUSDT"} {
		trade, err := svc.Submit(context.Background(), Intent{
			Owner: "grok", Symbol: symbol, Side: "BUY",
			Quantity: 0.01, Price: 10000, Leverage: 10,
		})
		require.NoError(t, err)
		require.Equal(t, model.TradeStatusCompleted, trade.Status)
	}

	trade, err := svc.Submit(context.Background(), Intent{
		Owner: "grok", Symbol: "SOLUSDT", Side: "BUY",
		Quantity: 0.01, Price: 10000, Leverage: 10,
	})
	require.NoError(t, err)
	require.Equal(t, model.TradeStatusFailed, trade.Status)
	require.Contains(t, trade.Feedback, "open positions")
}

func TestCooldownBlocksConsecutiveOpens(t *testing.T) {
	db := newTestDB(t)
	testConfig(t, db, func(cfg *model.RiskConfig) {
		cfg.CooldownMinutes = 5
	})
	svc := newTestService(t, db)

	first, err := svc.Submit(context.Background(), Intent{
		Owner: "kimi", Symbol: "BTCUSDT", Side: "BUY",
		Quantity: 0.01, Price: 50000, Leverage: 2,
	})
	require.NoError(t, err)
	require.Equal(t, model.TradeStatusCompleted, first.Status)

	second, err := svc.Submit(context.Background(), Intent{
		Owner: "kimi", Symbol: "ETHUSDT", Side: "BUY",
		Quantity: 0.1, Price: 1000, Leverage: 2,
	})
	require.NoError(t, err)
	require.Equal(t, model.TradeStatusFailed, second.Status)
	require.Contains(t, second.Feedback, "cooldown")
}

func TestBuyOnOpenLongOpensAdditionalPosition(t *testing.T) {
	db := newTestDB(t)
	testConfig(t, db, nil)
	svc := newTestService(t, db)

	for i := 0; i < 2; i++ {
		trade, err := svc.Submit(context.Background(), Intent{
			Owner: "deepseek", Symbol: "BTCUSDT", Side: "BUY",
			Quantity: 0.01, Price: 50000, Leverage: 2,
		})
		require.NoError(t, err)
		require.Equal(t, model.TradeStatusCompleted, trade.Status)
		require.Equal(t, model.ActionOpenLong, trade.ActionType)
	}

	account := getAccount(t, db, "deepseek")
	positions, err := repository.NewPositionRepository().WithDB(db).
		ListByAccount(context.Background(), account.ID, model.PositionStatusOpen)
	require.NoError(t, err)
	require.Len(t, positions, 2)
}

func TestSellOnOpenShortClosesRegardlessOfDirection(t *testing.T) {
	db := newTestDB(t)
	testConfig(t, db, nil)
	svc := newTestService(t, db)

	_, err := svc.Submit(context.Background(), Intent{
		Owner: "gemini", Symbol: "BTCUSDT", Side: "SELL", Direction: "short",
		Quantity: 0.01, Price: 50000, Leverage: 2,
	})
	require.NoError(t, err)

	// stated direction says short, the open short still gets closed
	trade, err := svc.Submit(context.Background(), Intent{
		Owner: "gemini", Symbol: "BTCUSDT", Side: "SELL", Direction: "short",
		Quantity: 0.01, Price: 49000,
	})
	require.NoError(t, err)
	require.Equal(t, model.ActionClose, trade.ActionType)

	account := getAccount(t, db, "gemini")
	positions, err := repository.NewPositionRepository().WithDB(db).
		ListByAccount(context.Background(), account.ID, model.PositionStatusOpen)
	require.NoError(t, err)
	require.Empty(t, positions)
}

func TestMergeSameDirectionScalesPosition(t *testing.T) {
	db := newTestDB(t)
	testConfig(t, db, func(cfg *model.RiskConfig) {
		cfg.MergeSameDirection = true
	})
	svc := newTestService(t, db)

	_, err := svc.Submit(context.Background(), Intent{
		Owner: "deepseek", Symbol: "BTCUSDT", Side: "BUY",
		Quantity: 1, Price: 100, Leverage: 2,
	})
	require.NoError(t, err)

	trade, err := svc.Submit(context.Background(), Intent{
		Owner: "deepseek", Symbol: "BTCUSDT", Side: "BUY",
		Quantity: 1, Price: 200, Leverage: 2,
	})
	require.NoError(t, err)
	require.Equal(t, model.TradeStatusCompleted, trade.Status)

	account := getAccount(t, db, "deepseek")
	positions, err := repository.NewPositionRepository().WithDB(db).
		ListByAccount(context.Background(), account.ID, model.PositionStatusOpen)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.InDelta(t, 2.0, positions[0].Quantity, 1e-9)
	require.InDelta(t, 150.0, positions[0].EntryPrice, 1e-9) // quantity-weighted
	require.InDelta(t, 150.0, positions[0].Margin, 1e-9)
}

func TestRiskGateOrderLeverageBeforeNotional(t *testing.T) {
	db := newTestDB(t)
	testConfig(t, db, func(cfg *model.RiskConfig) {
		cfg.MaxLeverage = 2
		cfg.MaxTradeAmount = 1000
	})
	svc := newTestService(t, db)

	// violates both leverage and notional bounds; leverage must win
	trade, err := svc.Submit(context.Background(), Intent{
		Owner: "claude", Symbol: "BTCUSDT", Side: "BUY",
		Quantity: 1, Price: 50000, Leverage: 5,
	})
	require.NoError(t, err)
	require.Equal(t, model.TradeStatusFailed, trade.Status)
	require.Contains(t, trade.Feedback, "leverage")
}

func TestInsufficientCashRejected(t *testing.T) {
	db := newTestDB(t)
	testConfig(t, db, nil)
	svc := newTestService(t, db)

	trade, err := svc.Submit(context.Background(), Intent{
		Owner: "claude", Symbol: "BTCUSDT", Side: "BUY",
		Quantity: 1, Price: 50000, Leverage: 1,
	})
	require.NoError(t, err)
	require.Equal(t, model.TradeStatusFailed, trade.Status)
	require.Contains(t, trade.Feedback, "cash")

	account := getAccount(t, db, "claude")
	require.InDelta(t, 10000.0, account.Cash, 1e-9)
}

func TestEquityInvariantAfterEveryOperation(t *testing.T) {
	db := newTestDB(t)
	testConfig(t, db, nil)
	svc := newTestService(t, db)
	engine := valuation.NewEngine(db)
	ctx := context.Background()

	intents := []Intent{
		{Owner: "deepseek", Symbol: "BTCUSDT", Side: "BUY", Quantity: 0.1, Price: 50000, Leverage: 2},
		{Owner: "deepseek", Symbol: "ETHUSDT", Side: "SELL", Direction: "short", Quantity: 1, Price: 1000, Leverage: 2},
		{Owner: "deepseek", Symbol: "BTCUSDT", Side: "SELL", Quantity: 0.05, Price: 52000},
		{Owner: "deepseek", Symbol: "ETHUSDT", Side: "BUY", Quantity: 1, Price: 900},
	}

	for _, intent := range intents {
		_, err := svc.Submit(ctx, intent)
		require.NoError(t, err)

		account := getAccount(t, db, "deepseek")
		positions, err := repository.NewPositionRepository().WithDB(db).
			ListByAccount(ctx, account.ID, model.PositionStatusOpen)
		require.NoError(t, err)

		sum := account.Cash
		for i := range positions {
			require.GreaterOrEqual(t, positions[i].Quantity, 0.0)
			sum += positions[i].Margin + valuation.UnrealizedPnl(&positions[i])
		}

		refreshed, err := engine.RefreshAccount(ctx, account.ID)
		require.NoError(t, err)
		require.InDelta(t, sum, refreshed.TotalEquity, 1e-6)
	}
}

func TestIntentNormalize(t *testing.T) {
	tests := []struct {
		name    string
		intent  Intent
		wantErr bool
	}{
		{"valid buy", Intent{Owner: "a", Symbol: "btcusdt", Side: "buy", Quantity: 1, Price: 10}, false},
		{"valid short", Intent{Owner: "a", Symbol: "BTCUSDT", Side: "SELL", Direction: "SHORT", Quantity: 1, Price: 10}, false},
		{"missing owner", Intent{Symbol: "BTCUSDT", Side: "BUY", Quantity: 1, Price: 10}, true},
		{"missing symbol", Intent{Owner: "a", Side: "BUY", Quantity: 1, Price: 10}, true},
		{"bad side", Intent{Owner: "a", Symbol: "BTCUSDT", Side: "HOLD", Quantity: 1, Price: 10}, true},
		{"bad direction", Intent{Owner: "a", Symbol: "BTCUSDT", Side: "BUY", Direction: "sideways", Quantity: 1, Price: 10}, true},
		{"zero quantity", Intent{Owner: "a", Symbol: "BTCUSDT", Side: "BUY", Price: 10}, true},
		{"negative price", Intent{Owner: "a", Symbol: "BTCUSDT", Side: "BUY", Quantity: 1, Price: -1}, true},
		{"fractional leverage", Intent{Owner: "a", Symbol: "BTCUSDT", Side: "BUY", Quantity: 1, Price: 10, Leverage: 0.5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.intent.Normalize()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, 1.0, tt.intent.Leverage)
		})
	}
}
