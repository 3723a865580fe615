package domain

import "time"

// Trade is the persisted record of a position's lifecycle.
type Trade struct {
	ID           int64
	Symbol       string
	Side         OrderSide
	Direction    Direction
	Quantity     float64
	Status       TradeStatus
	TradingMode  TradingMode
	EntryPrice   float64
	EntryTime    time.Time
	EntryOrderID string
	StopLoss     float64
	TP1          float64
	TP2          float64
	ExitPrice    float64
	ExitTime     time.Time // Zero while open
	PNL          float64   // P&L of the final closing leg
	RealizedPNL  float64   // Sum of all closed legs, including a TP1 partial
	CloseReason  CloseReason
}

// DailyPnl is the per-day aggregate of realized legs.
type DailyPnl struct {
	Date     string // YYYY-MM-DD, local time
	PnL      float64
	Trades   int
	LastLoss time.Time // Time of the latest losing leg, zero if none
}
