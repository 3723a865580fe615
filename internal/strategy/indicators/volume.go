package indicators

import "github.com/devrajweb/delta-bot/internal/domain"

// AverageVolume returns the mean volume of the last period candles,
// or 0 when fewer than period candles are available.
func AverageVolume(candles []domain.Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return 0
	}
	sum := 0.0
	for _, c := range candles[len(candles)-period:] {
		sum += c.Volume
	}
	return sum / float64(period)
}

// DetectVolumeSpike compares the last candle's volume with the average of the
// period candles before it. A zero average never counts as a spike.
func DetectVolumeSpike(candles []domain.Candle, period int, multiplier float64) bool {
	if len(candles) < 2 {
		return false
	}
	last := candles[len(candles)-1].Volume
	avg := AverageVolume(candles[:len(candles)-1], period)
	if avg <= 0 {
		return false
	}
	return last > avg*multiplier
}
