package indicators

import (
	"context"

	"github.com/devrajweb/delta-bot/internal/domain"
)

const (
	DefaultVolumePeriod    = 20
	DefaultSpikeMultiplier = 1.5
	defaultRSIPeriod       = 14
	shortEMAPeriod         = 20
	mediumEMAPeriod        = 50
	longEMAPeriod          = 200
)

// Reading is an indicator value that may be undefined for short series.
type Reading struct {
	Value float64
	Valid bool
}

// Optional returns the value, or nil when the reading is undefined.
func (r Reading) Optional() *float64 {
	if !r.Valid {
		return nil
	}
	v := r.Value
	return &v
}

// The indicator set is stateless, so one instance serves every symbol.
var (
	ema20  Indicator = NewEMA(shortEMAPeriod)
	ema50  Indicator = NewEMA(mediumEMAPeriod)
	ema200 Indicator = NewEMA(longEMAPeriod)
	rsi14  Indicator = NewRSI(IndicatorConfig{Period: defaultRSIPeriod})
)

// read evaluates ind over candles. A series too short for ind, or any
// calculation error, yields an undefined reading.
func read(ctx context.Context, ind Indicator, candles []domain.Candle) Reading {
	if len(candles) < ind.RequiredDataPoints() {
		return Reading{}
	}
	v, err := ind.Calculate(ctx, candles)
	if err != nil {
		return Reading{}
	}
	return Reading{Value: v, Valid: true}
}

// Snapshot is the indicator set evaluated over a candle window.
type Snapshot struct {
	EMA20         Reading
	EMA50         Reading
	EMA200        Reading
	RSI           Reading
	VolumeSpike   bool
	AverageVolume float64 // Mean of the last 20 bars including the current one, 0 if fewer
	CurrentVolume float64
}

// Compute evaluates all indicators over candles, oldest first.
func Compute(ctx context.Context, candles []domain.Candle) Snapshot {
	if len(candles) == 0 {
		return Snapshot{}
	}
	return Snapshot{
		EMA20:         read(ctx, ema20, candles),
		EMA50:         read(ctx, ema50, candles),
		EMA200:        read(ctx, ema200, candles),
		RSI:           read(ctx, rsi14, candles),
		VolumeSpike:   DetectVolumeSpike(candles, DefaultVolumePeriod, DefaultSpikeMultiplier),
		AverageVolume: AverageVolume(candles, DefaultVolumePeriod),
		CurrentVolume: candles[len(candles)-1].Volume,
	}
}
