package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrajweb/delta-bot/internal/domain"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func closed(symbol string, pnl float64, exitAfter time.Duration, reason domain.CloseReason) *domain.Trade {
	return &domain.Trade{
		Symbol:      symbol,
		Status:      domain.TradeClosed,
		EntryTime:   base,
		ExitTime:    base.Add(exitAfter),
		RealizedPNL: pnl,
		CloseReason: reason,
	}
}

func TestAnalyze(t *testing.T) {
	// Deliberately out of exit order.
	trades := []*domain.Trade{
		closed("ETHUSDT", -50, 3*time.Hour, domain.CloseReasonStopLoss),
		closed("BTCUSDT", 100, 1*time.Hour, domain.CloseReasonTakeProfit),
		closed("BTCUSDT", 20, 2*time.Hour, domain.CloseReasonStopLoss), // TP1 partial, then breakeven stop
		closed("ETHUSDT", -30, 4*time.Hour, domain.CloseReasonStopLoss),
		closed("BTCUSDT", 0, 5*time.Hour, domain.CloseReasonEmergency),
	}

	r := Analyze(trades)

	assert.Equal(t, 5, r.TotalTrades)
	assert.Equal(t, 2, r.WinningTrades)
	assert.Equal(t, 2, r.LosingTrades)
	assert.Equal(t, 1, r.Breakeven)
	assert.InDelta(t, 0.4, r.WinRate, 1e-9)
	assert.InDelta(t, 40.0, r.TotalPnL, 1e-9)
	assert.InDelta(t, 120.0, r.GrossProfit, 1e-9)
	assert.InDelta(t, 80.0, r.GrossLoss, 1e-9)
	assert.InDelta(t, 1.5, r.ProfitFactor, 1e-9)
	assert.InDelta(t, 60.0, r.AverageWin, 1e-9)
	assert.InDelta(t, -40.0, r.AverageLoss, 1e-9)
	assert.InDelta(t, 8.0, r.Expectancy, 1e-9)
	assert.InDelta(t, 180.0, r.AverageHoldMinutes, 1e-9)

	// Equity: 100, 120, 70, 40, 40 -> peak 120, trough 40.
	assert.InDelta(t, 80.0, r.MaxDrawdown, 1e-9)
	require.Len(t, r.EquityCurve, 5)
	assert.InDelta(t, 120.0, r.EquityCurve[1].Value, 1e-9)
	assert.InDelta(t, 80.0, r.EquityCurve[3].Drawdown, 1e-9)
	assert.Equal(t, base.Add(time.Hour), r.EquityCurve[0].Time)

	assert.Equal(t, 2, r.MaxConsecutiveWins)
	assert.Equal(t, 2, r.MaxConsecutiveLosses)

	assert.Equal(t, SymbolStats{Trades: 3, Wins: 2, PnL: 120}, r.BySymbol["BTCUSDT"])
	assert.Equal(t, SymbolStats{Trades: 2, Wins: 0, PnL: -80}, r.BySymbol["ETHUSDT"])
	assert.Equal(t, map[string]int{"TP2": 1, "SL": 3, "EMERGENCY": 1}, r.ByCloseReason)

	assert.Equal(t, "ETHUSDT", trades[0].Symbol, "input order is preserved")
}

func TestAnalyze_Empty(t *testing.T) {
	r := Analyze(nil)
	assert.Equal(t, 0, r.TotalTrades)
	assert.Zero(t, r.WinRate)
	assert.Empty(t, r.EquityCurve)
	assert.NotNil(t, r.BySymbol)
}

func TestAnalyze_NoLosses(t *testing.T) {
	r := Analyze([]*domain.Trade{
		closed("BTCUSDT", 10, time.Hour, domain.CloseReasonTakeProfit),
		closed("BTCUSDT", 15, 2*time.Hour, domain.CloseReasonTakeProfit),
	})
	assert.Equal(t, 1.0, r.WinRate)
	assert.Zero(t, r.ProfitFactor, "undefined without losses")
	assert.Zero(t, r.MaxDrawdown)
	assert.Equal(t, 0, r.MaxConsecutiveLosses)
}
