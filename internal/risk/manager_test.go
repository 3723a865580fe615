package risk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrajweb/delta-bot/internal/domain"
)

func newTestManager(t *testing.T) *RiskManager {
	t.Helper()
	m, err := NewRiskManager(RiskConfig{RiskPercent: 0.5})
	require.NoError(t, err)
	return m
}

func TestNewRiskManager(t *testing.T) {
	_, err := NewRiskManager(RiskConfig{RiskPercent: 0})
	assert.Error(t, err)
	_, err = NewRiskManager(RiskConfig{RiskPercent: 150})
	assert.Error(t, err)

	m := newTestManager(t)
	assert.Equal(t, defaultSwingLookback, m.config.SwingLookback)
	assert.Equal(t, defaultFallbackStopPercent, m.config.FallbackStopPercent)
}

func TestCalculateQty(t *testing.T) {
	tests := []struct {
		name                string
		balance, risk, e, s float64
		want                float64
	}{
		{name: "long distance", balance: 10000, risk: 0.5, e: 100, s: 90, want: 5},
		{name: "short distance", balance: 10000, risk: 0.5, e: 100, s: 110, want: 5},
		{name: "degenerate stop", balance: 10000, risk: 0.5, e: 100, s: 100, want: 0},
		{name: "one percent", balance: 2000, risk: 1, e: 50, s: 48, want: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CalculateQty(tt.balance, tt.risk, tt.e, tt.s), 1e-9)
		})
	}
}

func TestCalculateQty_Linear(t *testing.T) {
	cases := [][4]float64{
		{10000, 0.5, 100, 90},
		{1234.5, 1.25, 2000, 2050},
		{50, 2, 0.35, 0.34},
	}
	for _, c := range cases {
		base := CalculateQty(c[0], c[1], c[2], c[3])
		assert.InDelta(t, 2*base, CalculateQty(2*c[0], c[1], c[2], c[3]), 1e-9)
		assert.InDelta(t, 2*base, CalculateQty(c[0], 2*c[1], c[2], c[3]), 1e-9)
	}
}

func TestCalculateTakeProfits(t *testing.T) {
	tps, ok := CalculateTakeProfits(100, 90, domain.DirectionLong)
	require.True(t, ok)
	assert.Equal(t, domain.TakeProfits{TP1: 110, TP2: 120}, tps)

	tps, ok = CalculateTakeProfits(100, 110, domain.DirectionShort)
	require.True(t, ok)
	assert.Equal(t, domain.TakeProfits{TP1: 90, TP2: 80}, tps)

	_, ok = CalculateTakeProfits(100, 90, domain.DirectionNone)
	assert.False(t, ok)
}

func TestGetStopLoss(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	var candles []domain.Candle
	lows := []float64{80, 95, 96, 94, 97, 98, 96}
	highs := []float64{120, 103, 104, 106, 102, 101, 103}
	for i := range lows {
		candles = append(candles, domain.Candle{Timestamp: start.Add(time.Duration(i) * time.Minute), Low: lows[i], High: highs[i], Close: 100, Volume: 1})
	}

	// Only the last five candles count, so the outliers at index 0 are ignored.
	assert.Equal(t, 94.0, m.GetStopLoss(ctx, candles, 100, domain.DirectionLong))
	assert.Equal(t, 106.0, m.GetStopLoss(ctx, candles, 100, domain.DirectionShort))

	// Fewer than five candles uses what is there.
	assert.Equal(t, 96.0, m.GetStopLoss(ctx, candles[5:], 100, domain.DirectionLong))

	// No candles falls back to a 1% offset.
	assert.InDelta(t, 99.0, m.GetStopLoss(ctx, nil, 100, domain.DirectionLong), 1e-9)
	assert.InDelta(t, 101.0, m.GetStopLoss(ctx, nil, 100, domain.DirectionShort), 1e-9)

	sized := m.GetPositionSize(ctx, 10000, 100, 94)
	assert.InDelta(t, 50.0/6.0, sized, 1e-9)
}
