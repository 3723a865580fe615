// Package paper provides a simulated execution client. Orders fill immediately
// and realized P&L is settled into an in-memory balance.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/devrajweb/delta-bot/internal/domain"
	"github.com/devrajweb/delta-bot/internal/ports"
)

// Config holds the paper engine settings.
type Config struct {
	InitialBalance float64
	Logger         ports.Logger
	Now            func() time.Time
}

// Engine implements ports.ExecutionClient and ports.Settler without touching an exchange.
type Engine struct {
	logger ports.Logger
	now    func() time.Time

	mu        sync.Mutex
	balance   decimal.Decimal
	exposure  map[string]decimal.Decimal // signed net quantity per symbol
	lastPrice map[string]float64
}

// NewEngine creates a paper execution engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for paper engine")
	}
	if cfg.InitialBalance <= 0 {
		return nil, fmt.Errorf("initial balance must be positive, got %v: %w", cfg.InitialBalance, ports.ErrConfigurationError)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		logger:    cfg.Logger,
		now:       cfg.Now,
		balance:   decimal.NewFromFloat(cfg.InitialBalance),
		exposure:  make(map[string]decimal.Decimal),
		lastPrice: make(map[string]float64),
	}, nil
}

// FetchAccountBalance returns the simulated wallet balance.
func (e *Engine) FetchAccountBalance(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("FetchAccountBalance: %w: %w", ports.ErrContextCanceled, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance.InexactFloat64(), nil
}

// MarkPrice records the latest price for symbol so fills report an average price.
func (e *Engine) MarkPrice(symbol string, price float64) {
	e.mu.Lock()
	e.lastPrice[symbol] = price
	e.mu.Unlock()
}

// PlaceMarketOrder fills immediately and adjusts the symbol's net exposure.
func (e *Engine) PlaceMarketOrder(ctx context.Context, symbol string, quantity float64, side domain.OrderSide) (*ports.OrderResponse, error) {
	op := "PlaceMarketOrder"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ports.ErrContextCanceled, err)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%s: %w: quantity %v", op, ports.ErrInvalidQuantity, quantity)
	}

	qty := decimal.NewFromFloat(quantity)
	signed := qty
	if side == domain.Sell {
		signed = qty.Neg()
	}

	e.mu.Lock()
	e.exposure[symbol] = e.exposure[symbol].Add(signed)
	if e.exposure[symbol].IsZero() {
		delete(e.exposure, symbol)
	}
	price := e.lastPrice[symbol]
	e.mu.Unlock()

	resp := e.fill(symbol, side, quantity, price)
	e.logger.Info(ctx, op+": paper order filled", map[string]interface{}{"symbol": symbol, "side": string(side), "quantity": quantity, "orderID": resp.OrderID})
	return resp, nil
}

// ClosePosition zeroes the symbol's simulated exposure.
func (e *Engine) ClosePosition(ctx context.Context, symbol string) (*ports.OrderResponse, error) {
	op := "ClosePosition"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ports.ErrContextCanceled, err)
	}

	e.mu.Lock()
	net := e.exposure[symbol]
	delete(e.exposure, symbol)
	price := e.lastPrice[symbol]
	e.mu.Unlock()

	if net.IsZero() {
		e.logger.Warn(ctx, op+": no paper exposure to close", map[string]interface{}{"symbol": symbol})
		return nil, nil
	}
	side := domain.Sell
	if net.IsNegative() {
		side = domain.Buy
	}
	resp := e.fill(symbol, side, net.Abs().InexactFloat64(), price)
	e.logger.Info(ctx, op+": paper position closed", map[string]interface{}{"symbol": symbol, "quantity": resp.ExecutedQty, "orderID": resp.OrderID})
	return resp, nil
}

// Settle books realized P&L into the balance.
func (e *Engine) Settle(ctx context.Context, symbol string, pnl float64) {
	e.mu.Lock()
	e.balance = e.balance.Add(decimal.NewFromFloat(pnl))
	balance := e.balance.InexactFloat64()
	e.mu.Unlock()
	e.logger.Debug(ctx, "Settle: paper pnl booked", map[string]interface{}{"symbol": symbol, "pnl": pnl, "balance": balance})
}

// Exposure returns the signed net quantity held on symbol.
func (e *Engine) Exposure(symbol string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exposure[symbol].InexactFloat64()
}

func (e *Engine) fill(symbol string, side domain.OrderSide, quantity, price float64) *ports.OrderResponse {
	return &ports.OrderResponse{
		OrderID:       "PAPER-" + uuid.NewString(),
		Symbol:        symbol,
		ClientOrderID: uuid.NewString(),
		AvgPrice:      price,
		OrigQuantity:  quantity,
		ExecutedQty:   quantity,
		Status:        "FILLED",
		Side:          string(side),
		Timestamp:     e.now(),
	}
}
