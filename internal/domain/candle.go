package domain

import "time"

// Candle is an OHLCV bar for a single time bucket.
type Candle struct {
	Timestamp time.Time // Bucket start
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}
