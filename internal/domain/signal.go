package domain

import "time"

// Signal is a directional entry call emitted by the entry engine.
// Direction is DirectionNone when nothing fired.
type Signal struct {
	Symbol    string
	Direction Direction
	Price     float64
	Timestamp time.Time

	// Indicator context at the time of the signal. A nil reading was undefined
	// because the window was too short.
	CandlesCount int
	EMA20        *float64
	EMA50        *float64
	EMA200       *float64
	RSI          *float64
	VolumeSpike  bool
}

// IsNone reports whether the signal carries no direction.
func (s Signal) IsNone() bool {
	return s.Direction != DirectionLong && s.Direction != DirectionShort
}

// SignalRecord is the persisted journal entry of an emitted signal.
type SignalRecord struct {
	ID          int64
	Signal      Signal
	TradingMode TradingMode
	CreatedAt   time.Time
}
