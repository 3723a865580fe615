package ports

import (
	"context"
	"time"

	"github.com/devrajweb/delta-bot/internal/domain"
)

// OrderResponse represents the essential details returned after placing an order.
type OrderResponse struct {
	OrderID       string    // Exchange or simulated order ID
	Symbol        string    // Symbol for the order
	ClientOrderID string    // User-defined order ID
	AvgPrice      float64   // Average filled price, 0 when unknown
	OrigQuantity  float64   // Original quantity requested
	ExecutedQty   float64   // Quantity filled
	Status        string    // Order status (e.g., NEW, FILLED)
	Side          string    // Order side (BUY, SELL)
	Timestamp     time.Time // Time the order response was generated
}

// ExecutionClient places orders and reports equity. Paper and live implementations
// must behave identically modulo real vs. simulated fills.
type ExecutionClient interface {
	// FetchAccountBalance returns the wallet equity used for position sizing.
	FetchAccountBalance(ctx context.Context) (float64, error)

	// PlaceMarketOrder places a market order for quantity in the given direction's entry side.
	PlaceMarketOrder(ctx context.Context, symbol string, quantity float64, side domain.OrderSide) (*OrderResponse, error)

	// ClosePosition flattens whatever exposure the account holds on symbol.
	ClosePosition(ctx context.Context, symbol string) (*OrderResponse, error)
}

// Settler is implemented by execution clients that keep their own ledger (paper trading).
// Realized P&L of every closed leg is reported to it.
type Settler interface {
	Settle(ctx context.Context, symbol string, pnl float64)
}

// TickHandler receives a single (symbol, price, volume) tick.
type TickHandler func(symbol string, price, volume float64)

// MarketFeed delivers trade ticks. It owns subscription and reconnect-with-backoff.
type MarketFeed interface {
	// StreamTicks starts streaming ticks for symbols. doneCh is closed when the stream
	// terminates for good (context cancelled or reconnect attempts exhausted).
	StreamTicks(ctx context.Context, symbols []string, handler TickHandler, errHandler func(err error)) (doneCh chan struct{}, err error)
}

// CandleHistory supplies completed 1-minute candles for warm start.
type CandleHistory interface {
	// GetCandles returns up to limit of the most recent 1-minute candles, oldest first.
	GetCandles(ctx context.Context, symbol string, limit int) ([]domain.Candle, error)
}
