package risk

import (
	"context"
	"fmt"
	"math"

	"github.com/devrajweb/delta-bot/internal/domain"
)

const (
	defaultSwingLookback       = 5
	defaultFallbackStopPercent = 0.01
)

// RiskConfig holds configuration for risk management
type RiskConfig struct {
	RiskPercent         float64 // Percent of balance risked per trade (0.5 means 0.5%)
	SwingLookback       int     // Candles scanned for the swing stop
	FallbackStopPercent float64 // Fractional stop offset when no swing is available
}

// RiskManager sizes trades and brackets them with stop-loss and take-profit levels.
type RiskManager struct {
	config RiskConfig
}

// NewRiskManager creates a new risk manager instance
func NewRiskManager(config RiskConfig) (*RiskManager, error) {
	if config.RiskPercent <= 0 || config.RiskPercent > 100 {
		return nil, fmt.Errorf("risk percent must be in (0, 100], got %v", config.RiskPercent)
	}
	if config.SwingLookback <= 0 {
		config.SwingLookback = defaultSwingLookback
	}
	if config.FallbackStopPercent <= 0 {
		config.FallbackStopPercent = defaultFallbackStopPercent
	}
	return &RiskManager{config: config}, nil
}

// GetPositionSize returns the quantity that risks the configured share of balance
// between entry and stop. Zero means do not trade.
func (r *RiskManager) GetPositionSize(ctx context.Context, balance, entryPrice, stopPrice float64) float64 {
	return CalculateQty(balance, r.config.RiskPercent, entryPrice, stopPrice)
}

// CalculateQty is (balance * riskPercent/100) / |entry - stop|, or 0 when entry equals stop.
func CalculateQty(balance, riskPercent, entryPrice, stopPrice float64) float64 {
	distance := math.Abs(entryPrice - stopPrice)
	if distance == 0 {
		return 0
	}
	return balance * riskPercent / 100 / distance
}

// GetStopLoss places the stop at the recent swing: lowest low for longs, highest
// high for shorts. Without a swing the stop sits a fixed percent against the trade.
func (r *RiskManager) GetStopLoss(ctx context.Context, candles []domain.Candle, entryPrice float64, dir domain.Direction) float64 {
	swing := r.swing(candles, dir)
	if swing != 0 {
		return swing
	}
	if dir == domain.DirectionShort {
		return entryPrice * (1 + r.config.FallbackStopPercent)
	}
	return entryPrice * (1 - r.config.FallbackStopPercent)
}

func (r *RiskManager) swing(candles []domain.Candle, dir domain.Direction) float64 {
	if len(candles) == 0 {
		return 0
	}
	start := len(candles) - r.config.SwingLookback
	if start < 0 {
		start = 0
	}
	recent := candles[start:]
	level := recent[0].Low
	if dir == domain.DirectionShort {
		level = recent[0].High
	}
	for _, c := range recent[1:] {
		if dir == domain.DirectionShort {
			level = math.Max(level, c.High)
		} else {
			level = math.Min(level, c.Low)
		}
	}
	return level
}

// GetTakeProfits returns the 1R and 2R targets. ok is false for an undefined direction.
func (r *RiskManager) GetTakeProfits(entryPrice, stopPrice float64, dir domain.Direction) (domain.TakeProfits, bool) {
	return CalculateTakeProfits(entryPrice, stopPrice, dir)
}

// CalculateTakeProfits returns tp1 = entry ± R and tp2 = entry ± 2R with R = |entry - stop|.
func CalculateTakeProfits(entryPrice, stopPrice float64, dir domain.Direction) (domain.TakeProfits, bool) {
	risk := math.Abs(entryPrice - stopPrice)
	switch dir {
	case domain.DirectionLong:
		return domain.TakeProfits{TP1: entryPrice + risk, TP2: entryPrice + 2*risk}, true
	case domain.DirectionShort:
		return domain.TakeProfits{TP1: entryPrice - risk, TP2: entryPrice - 2*risk}, true
	default:
		return domain.TakeProfits{}, false
	}
}
