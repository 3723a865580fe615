package strategy

import (
	"math"

	"github.com/devrajweb/delta-bot/internal/strategy/indicators"
)

// FilterReason names the noise filter that vetoed an entry.
type FilterReason string

const (
	FilterNone         FilterReason = ""
	FilterNeutralRSI   FilterReason = "neutral_rsi"
	FilterSidewaysEMAs FilterReason = "sideways_emas"
	FilterLowVolume    FilterReason = "low_volume"
)

const (
	neutralRSILow        = 45.0
	neutralRSIHigh       = 55.0
	sidewaysEMAThreshold = 0.01
)

// ShouldFilter reports whether market noise vetoes an entry. Checks run in a
// fixed order and the first match wins. An undefined input never vetoes.
func ShouldFilter(snap indicators.Snapshot) (bool, FilterReason) {
	if snap.RSI.Valid && snap.RSI.Value > neutralRSILow && snap.RSI.Value < neutralRSIHigh {
		return true, FilterNeutralRSI
	}
	if snap.EMA50.Valid && snap.EMA200.Valid && snap.EMA50.Value != 0 &&
		math.Abs(snap.EMA50.Value-snap.EMA200.Value)/snap.EMA50.Value < sidewaysEMAThreshold {
		return true, FilterSidewaysEMAs
	}
	if snap.CurrentVolume < snap.AverageVolume {
		return true, FilterLowVolume
	}
	return false, FilterNone
}
