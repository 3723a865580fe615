package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TakeProfits holds the two-tier profit targets (1R and 2R).
type TakeProfits struct {
	TP1 float64
	TP2 float64
}

// Position is the in-memory state of an open trade. At most one exists per symbol.
type Position struct {
	Symbol      string
	Direction   Direction
	Quantity    float64
	EntryPrice  float64
	StopLoss    float64
	TakeProfits TakeProfits
	TP1Hit      bool
	EntryTime   time.Time
	TradeID     int64  // Persistence handle, 0 if the trade row could not be written
	OrderID     string // Entry order id reported by the execution client
}

// UnrealizedPnL returns the P&L of the remaining quantity at the given price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	return RealizedPnL(p.Direction, p.EntryPrice, price, p.Quantity)
}

// RealizedPnL computes (exit-entry)*qty signed by direction.
func RealizedPnL(dir Direction, entry, exit, qty float64) float64 {
	return (exit - entry) * qty * dir.Sign()
}

// TruncateQuantity cuts qty down to precision decimal places, the step the
// exchange accepts. Quantities are never rounded up.
func TruncateQuantity(qty float64, precision int) float64 {
	return decimal.NewFromFloat(qty).Truncate(int32(precision)).InexactFloat64()
}
