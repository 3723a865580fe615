package strategy

import "github.com/devrajweb/delta-bot/internal/strategy/indicators"

// Trend classifies market direction from the EMA50 relationship.
type Trend string

const (
	TrendBullish  Trend = "bullish"
	TrendBearish  Trend = "bearish"
	TrendSideways Trend = "sideways"
)

// Pullback zones, inclusive.
const (
	longPullbackLow   = 35.0
	longPullbackHigh  = 55.0
	shortPullbackLow  = 45.0
	shortPullbackHigh = 65.0
)

// DetectTrend is bullish only when price is strictly above EMA50; a tie is bearish.
// An undefined EMA50 reads sideways.
func DetectTrend(snap indicators.Snapshot, price float64) Trend {
	if !snap.EMA50.Valid {
		return TrendSideways
	}
	if price > snap.EMA50.Value {
		return TrendBullish
	}
	return TrendBearish
}

// Pullback is the direction suggested by RSI inside the trend's retracement zone.
type Pullback string

const (
	PullbackNone  Pullback = "none"
	PullbackLong  Pullback = "long"
	PullbackShort Pullback = "short"
)

// DetectPullback maps RSI and trend to a pullback direction.
func DetectPullback(rsi indicators.Reading, trend Trend) Pullback {
	if !rsi.Valid {
		return PullbackNone
	}
	switch {
	case trend == TrendBullish && rsi.Value >= longPullbackLow && rsi.Value <= longPullbackHigh:
		return PullbackLong
	case trend == TrendBearish && rsi.Value >= shortPullbackLow && rsi.Value <= shortPullbackHigh:
		return PullbackShort
	default:
		return PullbackNone
	}
}
