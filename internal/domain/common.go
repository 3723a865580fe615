package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Direction is the directional bias of a signal or position.
type Direction string

const (
	DirectionNone  Direction = "none"
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// EntrySide returns the order side that opens a position in this direction.
func (d Direction) EntrySide() OrderSide {
	if d == DirectionShort {
		return Sell
	}
	return Buy
}

// ExitSide returns the order side that reduces a position in this direction.
func (d Direction) ExitSide() OrderSide {
	if d == DirectionShort {
		return Buy
	}
	return Sell
}

// Sign is +1 for long and -1 for short; used in P&L arithmetic.
func (d Direction) Sign() float64 {
	if d == DirectionShort {
		return -1
	}
	return 1
}

// TradingMode selects between simulated and real execution.
type TradingMode string

const (
	ModePaper TradingMode = "PAPER"
	ModeLive  TradingMode = "LIVE"
)

// TradeStatus represents the status of a persisted trade record.
type TradeStatus string

const (
	TradeOpen   TradeStatus = "OPEN"
	TradeClosed TradeStatus = "CLOSED"
)

// CloseReason indicates why a position (or part of it) was closed.
type CloseReason string

const (
	CloseReasonStopLoss   CloseReason = "SL"
	CloseReasonTakeProfit CloseReason = "TP2"
	CloseReasonPartial    CloseReason = "TP1"
	CloseReasonEmergency  CloseReason = "EMERGENCY"
	CloseReasonManual     CloseReason = "MANUAL"
)
