package position

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/devrajweb/delta-bot/internal/domain"
	"github.com/devrajweb/delta-bot/internal/ports"
)

// Config holds the position manager settings.
type Config struct {
	Mode              domain.TradingMode
	QuantityPrecision int // Decimal places of every order quantity; 0 means whole units
	Now               func() time.Time
}

// OpenRequest carries everything needed to open a position.
type OpenRequest struct {
	Symbol      string
	Direction   domain.Direction
	Quantity    float64
	EntryPrice  float64
	StopLoss    float64
	TakeProfits domain.TakeProfits
}

// Manager owns the symbol -> position map and enforces at most one position
// per symbol. Exchange calls are made without holding the map lock; a symbol
// with an operation in flight is reserved so no second open can start.
type Manager struct {
	cfg      Config
	logger   ports.Logger
	exec     ports.ExecutionClient
	repo     ports.TradeRepository
	settler  ports.Settler
	mu       sync.Mutex
	open     map[string]*domain.Position
	reserved map[string]struct{}
}

// NewManager creates a position manager.
func NewManager(cfg Config, logger ports.Logger, exec ports.ExecutionClient, repo ports.TradeRepository) (*Manager, error) {
	if logger == nil || exec == nil || repo == nil {
		return nil, fmt.Errorf("missing required dependencies for position manager")
	}
	if cfg.Mode == "" {
		cfg.Mode = domain.ModePaper
	}
	if cfg.QuantityPrecision < 0 {
		return nil, fmt.Errorf("quantity precision cannot be negative, got %d: %w", cfg.QuantityPrecision, ports.ErrConfigurationError)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	m := &Manager{
		cfg:      cfg,
		logger:   logger,
		exec:     exec,
		repo:     repo,
		open:     make(map[string]*domain.Position),
		reserved: make(map[string]struct{}),
	}
	if s, ok := exec.(ports.Settler); ok {
		m.settler = s
	}
	return m, nil
}

// reserve marks symbol busy. It fails if a position exists or another operation is in flight.
func (m *Manager) reserve(symbol string, wantOpen bool) (*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.reserved[symbol]; busy {
		return nil, fmt.Errorf("%s: operation in flight: %w", symbol, ports.ErrPositionExists)
	}
	pos, exists := m.open[symbol]
	if wantOpen && exists {
		return nil, fmt.Errorf("%s: %w", symbol, ports.ErrPositionExists)
	}
	if !wantOpen && !exists {
		return nil, fmt.Errorf("%s: %w", symbol, ports.ErrNoPosition)
	}
	m.reserved[symbol] = struct{}{}
	if pos == nil {
		return nil, nil
	}
	cp := *pos
	return &cp, nil
}

func (m *Manager) release(symbol string) {
	m.mu.Lock()
	delete(m.reserved, symbol)
	m.mu.Unlock()
}

// Open places the entry order, persists the trade and records the position.
// It returns ports.ErrPositionExists if symbol is not flat.
func (m *Manager) Open(ctx context.Context, req OpenRequest) (*domain.Position, error) {
	op := "OpenPosition"
	qty := m.truncate(req.Quantity)
	if qty <= 0 {
		return nil, fmt.Errorf("%s %s: quantity %v: %w", op, req.Symbol, req.Quantity, ports.ErrInvalidQuantity)
	}
	if _, err := m.reserve(req.Symbol, true); err != nil {
		m.logger.Warn(ctx, op+": symbol not available, skipping", map[string]interface{}{"symbol": req.Symbol, "error": err.Error()})
		return nil, err
	}
	defer m.release(req.Symbol)

	order, err := m.exec.PlaceMarketOrder(ctx, req.Symbol, qty, req.Direction.EntrySide())
	if err != nil {
		m.logger.Error(ctx, err, op+": entry order failed", map[string]interface{}{"symbol": req.Symbol, "direction": string(req.Direction)})
		return nil, fmt.Errorf("entry order for %s failed: %w", req.Symbol, err)
	}
	// Track what the exchange reports as filled when it reports it.
	if order != nil && order.ExecutedQty > 0 {
		if filled := m.truncate(order.ExecutedQty); filled != qty {
			m.logger.Warn(ctx, op+": fill differs from requested quantity", map[string]interface{}{
				"symbol": req.Symbol, "requested": qty, "filled": filled,
			})
			qty = filled
		}
	}

	pos := &domain.Position{
		Symbol:      req.Symbol,
		Direction:   req.Direction,
		Quantity:    qty,
		EntryPrice:  req.EntryPrice,
		StopLoss:    req.StopLoss,
		TakeProfits: req.TakeProfits,
		EntryTime:   m.cfg.Now(),
	}
	if order != nil {
		pos.OrderID = order.OrderID
	}

	trade := &domain.Trade{
		Symbol:       pos.Symbol,
		Side:         pos.Direction.EntrySide(),
		Direction:    pos.Direction,
		Quantity:     pos.Quantity,
		Status:       domain.TradeOpen,
		TradingMode:  m.cfg.Mode,
		EntryPrice:   pos.EntryPrice,
		EntryTime:    pos.EntryTime,
		EntryOrderID: pos.OrderID,
		StopLoss:     pos.StopLoss,
		TP1:          pos.TakeProfits.TP1,
		TP2:          pos.TakeProfits.TP2,
	}
	id, err := m.repo.CreateTrade(ctx, trade)
	if err != nil {
		m.logger.Error(ctx, err, op+": failed to persist trade, continuing in memory", map[string]interface{}{"symbol": req.Symbol})
	} else {
		pos.TradeID = id
	}

	m.mu.Lock()
	m.open[req.Symbol] = pos
	m.mu.Unlock()

	m.logger.Info(ctx, op+": position opened", map[string]interface{}{
		"symbol": pos.Symbol, "direction": string(pos.Direction), "quantity": pos.Quantity,
		"entryPrice": pos.EntryPrice, "stopLoss": pos.StopLoss, "tp1": pos.TakeProfits.TP1, "tp2": pos.TakeProfits.TP2,
	})
	cp := *pos
	return &cp, nil
}

// PartialClose realizes half the position at exitPrice, keeps the other half
// open at the original entry and moves the stop to breakeven. Returns the realized P&L.
// When half the quantity is below the order precision the whole position is
// closed at exitPrice with reason TP1 and removed.
func (m *Manager) PartialClose(ctx context.Context, symbol string, exitPrice float64) (float64, error) {
	op := "PartialClose"
	pos, err := m.reserve(symbol, false)
	if err != nil {
		return 0, err
	}
	defer m.release(symbol)

	half := m.truncate(pos.Quantity / 2)
	if half <= 0 || half >= pos.Quantity {
		m.logger.Warn(ctx, op+": half position below quantity precision, closing all at TP1", map[string]interface{}{
			"symbol": symbol, "quantity": pos.Quantity, "precision": m.cfg.QuantityPrecision,
		})
		return m.closeReserved(ctx, op, pos, exitPrice, domain.CloseReasonPartial)
	}
	if _, err := m.exec.PlaceMarketOrder(ctx, symbol, half, pos.Direction.ExitSide()); err != nil {
		m.logger.Error(ctx, err, op+": partial close order failed", map[string]interface{}{"symbol": symbol})
		return 0, fmt.Errorf("partial close for %s failed: %w", symbol, err)
	}
	pnl := domain.RealizedPnL(pos.Direction, pos.EntryPrice, exitPrice, half)
	m.settle(ctx, symbol, pnl)

	m.mu.Lock()
	live := m.open[symbol]
	live.Quantity = decimal.NewFromFloat(live.Quantity).Sub(decimal.NewFromFloat(half)).InexactFloat64()
	live.StopLoss = live.EntryPrice
	live.TP1Hit = true
	updated := *live
	m.mu.Unlock()

	if updated.TradeID != 0 {
		m.persistUpdate(ctx, op, updated.TradeID, func(t *domain.Trade) {
			t.Quantity = updated.Quantity
			t.StopLoss = updated.StopLoss
			t.RealizedPNL += pnl
		})
	}

	m.logger.Info(ctx, op+": half position closed at TP1, stop moved to breakeven", map[string]interface{}{
		"symbol": symbol, "exitPrice": exitPrice, "closedQty": half, "remainingQty": updated.Quantity, "pnl": pnl,
	})
	return pnl, nil
}

// Close flattens the position at exitPrice and removes it. Returns the realized P&L
// of the remaining quantity.
func (m *Manager) Close(ctx context.Context, symbol string, exitPrice float64, reason domain.CloseReason) (float64, error) {
	op := "ClosePosition"
	pos, err := m.reserve(symbol, false)
	if err != nil {
		m.logger.Debug(ctx, op+": nothing to close", map[string]interface{}{"symbol": symbol})
		return 0, err
	}
	defer m.release(symbol)
	return m.closeReserved(ctx, op, pos, exitPrice, reason)
}

// closeReserved flattens pos. The caller holds the symbol's reservation.
func (m *Manager) closeReserved(ctx context.Context, op string, pos *domain.Position, exitPrice float64, reason domain.CloseReason) (float64, error) {
	symbol := pos.Symbol
	if _, err := m.exec.ClosePosition(ctx, symbol); err != nil {
		m.logger.Error(ctx, err, op+": close order failed, position kept", map[string]interface{}{"symbol": symbol})
		return 0, fmt.Errorf("close for %s failed: %w", symbol, err)
	}
	pnl := pos.UnrealizedPnL(exitPrice)
	m.settle(ctx, symbol, pnl)

	m.mu.Lock()
	delete(m.open, symbol)
	m.mu.Unlock()

	if pos.TradeID != 0 {
		now := m.cfg.Now()
		m.persistUpdate(ctx, op, pos.TradeID, func(t *domain.Trade) {
			t.Status = domain.TradeClosed
			t.ExitPrice = exitPrice
			t.ExitTime = now
			t.PNL = pnl
			t.RealizedPNL += pnl
			t.CloseReason = reason
		})
	}

	m.logger.Info(ctx, op+": position closed", map[string]interface{}{
		"symbol": symbol, "exitPrice": exitPrice, "quantity": pos.Quantity, "pnl": pnl, "reason": string(reason),
	})
	return pnl, nil
}

// EmergencyCloseAll closes every open position at the supplied price for its
// symbol. Symbols without a price are skipped. Returns realized P&L per closed symbol.
func (m *Manager) EmergencyCloseAll(ctx context.Context, prices map[string]float64) (map[string]float64, error) {
	op := "EmergencyCloseAll"
	results := make(map[string]float64)
	var failed []string
	for _, pos := range m.Positions() {
		price, ok := prices[pos.Symbol]
		if !ok {
			m.logger.Warn(ctx, op+": no price for symbol, skipping", map[string]interface{}{"symbol": pos.Symbol})
			failed = append(failed, pos.Symbol)
			continue
		}
		pnl, err := m.Close(ctx, pos.Symbol, price, domain.CloseReasonEmergency)
		if err != nil {
			failed = append(failed, pos.Symbol)
			continue
		}
		results[pos.Symbol] = pnl
	}
	if len(failed) > 0 {
		return results, fmt.Errorf("%s: could not close %v", op, failed)
	}
	return results, nil
}

// Get returns a copy of the open position for symbol.
func (m *Manager) Get(symbol string) (domain.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.open[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return *pos, true
}

// Positions returns copies of all open positions ordered by symbol.
func (m *Manager) Positions() []domain.Position {
	m.mu.Lock()
	out := make([]domain.Position, 0, len(m.open))
	for _, p := range m.open {
		out = append(out, *p)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (m *Manager) truncate(qty float64) float64 {
	return domain.TruncateQuantity(qty, m.cfg.QuantityPrecision)
}

func (m *Manager) settle(ctx context.Context, symbol string, pnl float64) {
	if m.settler != nil {
		m.settler.Settle(ctx, symbol, pnl)
	}
}

// persistUpdate loads, mutates and saves a trade row. Failures are logged only.
func (m *Manager) persistUpdate(ctx context.Context, op string, id int64, mutate func(*domain.Trade)) {
	trade, err := m.repo.FindTradeByID(ctx, id)
	if err != nil || trade == nil {
		m.logger.Error(ctx, err, op+": failed to load trade for update", map[string]interface{}{"tradeID": id})
		return
	}
	mutate(trade)
	if err := m.repo.UpdateTrade(ctx, trade); err != nil {
		m.logger.Error(ctx, err, op+": failed to update trade", map[string]interface{}{"tradeID": id})
	}
}
