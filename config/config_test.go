package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrajweb/delta-bot/internal/adapters/logger"
	"github.com/devrajweb/delta-bot/internal/domain"
)

var allKeys = []string{
	"TRADING_MODE", "CONFIRM_LIVE", "BINANCE_API_KEY", "BINANCE_API_SECRET", "IS_TESTNET", "SYMBOLS",
	"BALANCE_ASSET", "RISK_PERCENT", "MAX_DAILY_LOSS", "MAX_TRADES_PER_DAY", "COOLDOWN_MINUTES",
	"MIN_CANDLES", "SIGNAL_TIMEFRAME_SECONDS", "HISTORY_CANDLES", "MAX_CANDLE_BUCKETS",
	"PAPER_INITIAL_BALANCE", "QUANTITY_PRECISION", "EXECUTION_TIMEOUT_SECONDS", "CLOSE_ON_SHUTDOWN",
	"DB_PATH", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "CACHE_TTL_SECONDS", "LOG_LEVEL",
	"LOG_FILE", "LOG_MAX_SIZE_MB", "LOG_MAX_BACKUPS", "RECONNECT_DELAY_SECONDS", "MAX_RECONNECT_ATTEMPTS",
}

// clearEnv blanks every key so defaults apply; t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, domain.ModePaper, cfg.TradingMode)
	assert.True(t, cfg.IsTestnet)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Symbols)
	assert.Equal(t, "USDT", cfg.BalanceAsset)
	assert.Equal(t, 0.5, cfg.RiskPercent)
	assert.Equal(t, -500.0, cfg.MaxDailyLoss)
	assert.Equal(t, 10, cfg.MaxTradesPerDay)
	assert.Equal(t, 15*time.Minute, cfg.Cooldown)
	assert.Equal(t, 1, cfg.MinCandles)
	assert.Equal(t, time.Minute, cfg.SignalTimeframe)
	assert.Equal(t, 500, cfg.HistoryCandles)
	assert.Equal(t, 1500, cfg.MaxCandleBuckets)
	assert.Equal(t, 10000.0, cfg.PaperInitialBalance)
	assert.Equal(t, 3, cfg.QuantityPrecision)
	assert.Equal(t, 10*time.Second, cfg.ExecutionTimeout)
	assert.False(t, cfg.CloseOnShutdown)
	assert.Equal(t, "./data/trading_bot.db", cfg.DBPath)
	assert.Equal(t, "", cfg.RedisAddr)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
	assert.Equal(t, time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 10, cfg.MaxReconnectAttempts)
}

func TestLoadConfig_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SYMBOLS", " solusdt, BTCUSDT ,solusdt,")
	t.Setenv("MAX_DAILY_LOSS", "250")
	t.Setenv("SIGNAL_TIMEFRAME_SECONDS", "300")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("CLOSE_ON_SHUTDOWN", "true")
	t.Setenv("QUANTITY_PRECISION", "0")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"SOLUSDT", "BTCUSDT"}, cfg.Symbols)
	assert.Equal(t, -250.0, cfg.MaxDailyLoss)
	assert.Equal(t, 5*time.Minute, cfg.SignalTimeframe)
	assert.Equal(t, logger.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "", cfg.HTTPAddr)
	assert.True(t, cfg.CloseOnShutdown)
	assert.Equal(t, 0, cfg.QuantityPrecision, "whole units")
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "live without confirmation",
			env:     map[string]string{"TRADING_MODE": "LIVE", "BINANCE_API_KEY": "k", "BINANCE_API_SECRET": "s"},
			wantErr: "CONFIRM_LIVE=YES",
		},
		{
			name:    "live without keys",
			env:     map[string]string{"TRADING_MODE": "live", "CONFIRM_LIVE": "YES"},
			wantErr: "BINANCE_API_KEY must be set",
		},
		{
			name:    "unknown mode",
			env:     map[string]string{"TRADING_MODE": "SIM"},
			wantErr: "TRADING_MODE must be PAPER or LIVE",
		},
		{
			name:    "risk out of range",
			env:     map[string]string{"RISK_PERCENT": "0"},
			wantErr: "RISK_PERCENT must be in (0, 100]",
		},
		{
			name:    "malformed float",
			env:     map[string]string{"RISK_PERCENT": "abc"},
			wantErr: "invalid RISK_PERCENT",
		},
		{
			name:    "zero daily loss",
			env:     map[string]string{"MAX_DAILY_LOSS": "0"},
			wantErr: "MAX_DAILY_LOSS must be non-zero",
		},
		{
			name:    "zero reconnect attempts",
			env:     map[string]string{"MAX_RECONNECT_ATTEMPTS": "0"},
			wantErr: "MAX_RECONNECT_ATTEMPTS must be positive",
		},
		{
			name:    "precision out of range",
			env:     map[string]string{"QUANTITY_PRECISION": "9"},
			wantErr: "QUANTITY_PRECISION must be between 0 and 8",
		},
		{
			name:    "errors are aggregated",
			env:     map[string]string{"MAX_TRADES_PER_DAY": "0", "COOLDOWN_MINUTES": "-1"},
			wantErr: "MAX_TRADES_PER_DAY must be positive; COOLDOWN_MINUTES must be positive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig_LiveConfirmed(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRADING_MODE", "LIVE")
	t.Setenv("CONFIRM_LIVE", "YES")
	t.Setenv("BINANCE_API_KEY", "key")
	t.Setenv("BINANCE_API_SECRET", "secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, domain.ModeLive, cfg.TradingMode)
	assert.True(t, cfg.ConfirmLive)
}
