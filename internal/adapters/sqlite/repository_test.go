package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrajweb/delta-bot/internal/domain"
	"github.com/devrajweb/delta-bot/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "delta-bot-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")
	repo, err := NewRepository(Config{
		DBPath: dbPath,
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}

	return repo, cleanup
}

func openTrade(symbol string) *domain.Trade {
	return &domain.Trade{
		Symbol:       symbol,
		Side:         domain.Buy,
		Direction:    domain.DirectionLong,
		Quantity:     2,
		Status:       domain.TradeOpen,
		TradingMode:  domain.ModePaper,
		EntryPrice:   100,
		EntryTime:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		EntryOrderID: "PAPER-1",
		StopLoss:     90,
		TP1:          110,
		TP2:          120,
	}
}

func TestNewRepository_RequiresLogger(t *testing.T) {
	_, err := NewRepository(Config{DBPath: filepath.Join(t.TempDir(), "x.db")})
	assert.Error(t, err)
}

func TestRepository_CreateAndFindTrade(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	trade := openTrade("ETHUSDT")
	id, err := repo.CreateTrade(ctx, trade)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))
	assert.Equal(t, id, trade.ID)

	found, err := repo.FindTradeByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, found)

	assert.Equal(t, trade.Symbol, found.Symbol)
	assert.Equal(t, trade.Side, found.Side)
	assert.Equal(t, trade.Direction, found.Direction)
	assert.Equal(t, trade.Quantity, found.Quantity)
	assert.Equal(t, domain.TradeOpen, found.Status)
	assert.Equal(t, domain.ModePaper, found.TradingMode)
	assert.Equal(t, trade.EntryOrderID, found.EntryOrderID)
	assert.Equal(t, 110.0, found.TP1)
	assert.Equal(t, 120.0, found.TP2)
	assert.True(t, found.ExitTime.IsZero())
	assert.Equal(t, domain.CloseReason(""), found.CloseReason)

	missing, err := repo.FindTradeByID(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepository_UpdateTrade(t *testing.T) {
	tests := []struct {
		name    string
		create  bool
		update  func(*domain.Trade)
		wantErr error
	}{
		{
			name:   "partial close then final close",
			create: true,
			update: func(tr *domain.Trade) {
				tr.Quantity = 1
				tr.StopLoss = tr.EntryPrice
				tr.RealizedPNL = 10
				tr.Status = domain.TradeClosed
				tr.ExitPrice = 120
				tr.ExitTime = time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)
				tr.PNL = 20
				tr.RealizedPNL += 20
				tr.CloseReason = domain.CloseReasonTakeProfit
			},
		},
		{
			name:   "update non-existent trade",
			create: false,
			update: func(tr *domain.Trade) {
				tr.ID = 999
				tr.Status = domain.TradeClosed
			},
			wantErr: ports.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, cleanup := setupTestDB(t)
			defer cleanup()
			ctx := context.Background()

			trade := openTrade("BTCUSDT")
			if tt.create {
				_, err := repo.CreateTrade(ctx, trade)
				require.NoError(t, err)
			}
			tt.update(trade)

			err := repo.UpdateTrade(ctx, trade)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			found, err := repo.FindTradeByID(ctx, trade.ID)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, trade.Status, found.Status)
			assert.Equal(t, trade.Quantity, found.Quantity)
			assert.Equal(t, trade.StopLoss, found.StopLoss)
			assert.Equal(t, trade.ExitPrice, found.ExitPrice)
			assert.Equal(t, trade.PNL, found.PNL)
			assert.InDelta(t, 30.0, found.RealizedPNL, 1e-9)
			assert.Equal(t, trade.CloseReason, found.CloseReason)
			assert.False(t, found.ExitTime.IsZero())
		})
	}
}

func TestRepository_FindOpenTrades(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	open, err := repo.FindOpenTrades(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	first := openTrade("BTCUSDT")
	_, err = repo.CreateTrade(ctx, first)
	require.NoError(t, err)

	second := openTrade("ETHUSDT")
	second.EntryTime = first.EntryTime.Add(time.Minute)
	_, err = repo.CreateTrade(ctx, second)
	require.NoError(t, err)

	closed := openTrade("SOLUSDT")
	_, err = repo.CreateTrade(ctx, closed)
	require.NoError(t, err)
	closed.Status = domain.TradeClosed
	closed.ExitTime = closed.EntryTime.Add(time.Hour)
	require.NoError(t, repo.UpdateTrade(ctx, closed))

	open, err = repo.FindOpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "ETHUSDT", open[0].Symbol)
	assert.Equal(t, "BTCUSDT", open[1].Symbol)
}

func TestRepository_FindClosedTrades(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, symbol := range []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"} {
		trade := openTrade(symbol)
		_, err := repo.CreateTrade(ctx, trade)
		require.NoError(t, err)
		trade.Status = domain.TradeClosed
		trade.ExitPrice = 105
		trade.PNL = float64(10 * (i + 1))
		trade.ExitTime = base.Add(time.Duration(3-i) * time.Hour)
		require.NoError(t, repo.UpdateTrade(ctx, trade))
	}
	_, err := repo.CreateTrade(ctx, openTrade("XRPUSDT"))
	require.NoError(t, err)

	all, err := repo.FindClosedTrades(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"SOLUSDT", "ETHUSDT", "BTCUSDT"}, []string{all[0].Symbol, all[1].Symbol, all[2].Symbol})

	recent, err := repo.FindClosedTrades(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "ETHUSDT", recent[0].Symbol)
}

func TestRepository_CreateSignal(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	rec := &domain.SignalRecord{
		Signal: domain.Signal{
			Symbol:       "BTCUSDT",
			Direction:    domain.DirectionShort,
			Price:        99,
			Timestamp:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			CandlesCount: 240,
			EMA20:        ptr(99.5),
			EMA50:        ptr(100),
			RSI:          ptr(60),
			VolumeSpike:  true,
		},
		TradingMode: domain.ModeLive,
	}
	id, err := repo.CreateSignal(ctx, rec)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))
	assert.False(t, rec.CreatedAt.IsZero())

	var (
		direction string
		spike     bool
		count     int
	)
	err = repo.db.QueryRowContext(ctx, `SELECT direction, volume_spike, candles_count FROM signals WHERE id = ?`, id).
		Scan(&direction, &spike, &count)
	require.NoError(t, err)
	assert.Equal(t, "short", direction)
	assert.True(t, spike)
	assert.Equal(t, 240, count)

	var ema50, ema200 sql.NullFloat64
	err = repo.db.QueryRowContext(ctx, `SELECT ema50, ema200 FROM signals WHERE id = ?`, id).Scan(&ema50, &ema200)
	require.NoError(t, err)
	assert.Equal(t, sql.NullFloat64{Float64: 100, Valid: true}, ema50)
	assert.False(t, ema200.Valid, "undefined EMA200 is stored as NULL")
}

func ptr(v float64) *float64 { return &v }

func TestRepository_DailyPnl(t *testing.T) {
	legTime := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name         string
		legs         []float64
		wantPnl      float64
		wantTrades   int
		wantLastLoss time.Time
	}{
		{name: "no legs", legs: nil},
		{name: "single loss", legs: []float64{-12.5}, wantPnl: -12.5, wantTrades: 1, wantLastLoss: legTime},
		{name: "accumulates, later win keeps last loss", legs: []float64{10, -30, 5}, wantPnl: -15, wantTrades: 3, wantLastLoss: legTime.Add(time.Minute)},
		{name: "wins only", legs: []float64{4, 6}, wantPnl: 10, wantTrades: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, cleanup := setupTestDB(t)
			defer cleanup()
			ctx := context.Background()

			for i, pnl := range tt.legs {
				require.NoError(t, repo.AddDailyPnl(ctx, "2024-03-01", pnl, legTime.Add(time.Duration(i)*time.Minute)))
			}
			require.NoError(t, repo.AddDailyPnl(ctx, "2024-03-02", 99, legTime.Add(24*time.Hour)))

			got, err := repo.GetDailyPnl(ctx, "2024-03-01")
			require.NoError(t, err)
			if tt.wantTrades == 0 {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, "2024-03-01", got.Date)
			assert.InDelta(t, tt.wantPnl, got.PnL, 1e-9)
			assert.Equal(t, tt.wantTrades, got.Trades)
			assert.True(t, tt.wantLastLoss.Equal(got.LastLoss), "last loss %v, want %v", got.LastLoss, tt.wantLastLoss)
		})
	}
}
