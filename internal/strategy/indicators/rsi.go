package indicators

import (
	"context"
	"fmt"

	talib "github.com/markcheno/go-talib"

	"github.com/devrajweb/delta-bot/internal/domain"
)

// RSI implements the Relative Strength Index with Wilder smoothing.
type RSI struct {
	BaseIndicator
}

// NewRSI creates a new RSI indicator instance
func NewRSI(config IndicatorConfig) *RSI {
	return &RSI{BaseIndicator: BaseIndicator{Config: config}}
}

// Name returns the name of the indicator
func (r *RSI) Name() string {
	return fmt.Sprintf("RSI%d", r.Config.Period)
}

// RequiredDataPoints is period+1: the first change needs two closes.
func (r *RSI) RequiredDataPoints() int {
	return r.Config.Period + 1
}

// Calculate computes the RSI value for the latest candle.
func (r *RSI) Calculate(ctx context.Context, candles []domain.Candle) (float64, error) {
	if len(candles) < r.RequiredDataPoints() {
		return 0, fmt.Errorf("%s: have %d candles, need %d: %w", r.Name(), len(candles), r.RequiredDataPoints(), ErrInsufficientData)
	}
	return RSIValue(closes(candles), r.Config.Period)
}

// RSIValue returns the Wilder RSI of the last value in the series.
// A completely flat series has no gains or losses and reads 50.
func RSIValue(values []float64, period int) (float64, error) {
	if period < 2 || len(values) <= period {
		return 0, ErrInsufficientData
	}
	if flat(values) {
		return 50, nil
	}
	series := talib.Rsi(values, period)
	return series[len(series)-1], nil
}

func flat(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}
