package indicators

import (
	"context"
	"fmt"

	talib "github.com/markcheno/go-talib"

	"github.com/devrajweb/delta-bot/internal/domain"
)

// MovingAverage is an exponential moving average of closes.
type MovingAverage struct {
	BaseIndicator
}

// NewEMA creates an exponential moving average of period.
func NewEMA(period int) *MovingAverage {
	return &MovingAverage{BaseIndicator: BaseIndicator{Config: IndicatorConfig{Period: period}}}
}

// Name returns the name of the indicator
func (m *MovingAverage) Name() string {
	return fmt.Sprintf("EMA%d", m.Config.Period)
}

// Calculate computes the EMA for the latest candle.
func (m *MovingAverage) Calculate(ctx context.Context, candles []domain.Candle) (float64, error) {
	if m.Config.Period <= 0 {
		return 0, fmt.Errorf("invalid EMA period %d", m.Config.Period)
	}
	if len(candles) < m.RequiredDataPoints() {
		return 0, fmt.Errorf("%s: have %d candles, need %d: %w", m.Name(), len(candles), m.RequiredDataPoints(), ErrInsufficientData)
	}
	return EMA(closes(candles), m.Config.Period)
}

// EMA returns the exponential moving average of the full series, seeded with the
// SMA of the first period values.
func EMA(values []float64, period int) (float64, error) {
	if period <= 0 || len(values) < period {
		return 0, ErrInsufficientData
	}
	series := talib.Ema(values, period)
	return series[len(series)-1], nil
}
