package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devrajweb/delta-bot/internal/domain"
	"github.com/devrajweb/delta-bot/internal/ports"
	"github.com/devrajweb/delta-bot/internal/strategy/indicators"
)

const defaultMinEntryCandles = 20

// Config holds parameters for the entry engine.
type Config struct {
	MinCandles int                                      // Fail closed below this many candles (default 20)
	Now        func() time.Time                         // Signal timestamp source
	OnFilter   func(symbol string, reason FilterReason) // Optional veto observer
}

// EntryEngine combines trend, pullback and volume conditions into at most one
// directional signal per symbol until the latch is cleared.
type EntryEngine struct {
	cfg    Config
	logger ports.Logger

	mu      sync.Mutex
	latches map[string]domain.Direction
}

// NewEntryEngine creates a new EntryEngine instance.
func NewEntryEngine(cfg Config, logger ports.Logger) (*EntryEngine, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for entry engine")
	}
	if cfg.MinCandles <= 0 {
		cfg.MinCandles = defaultMinEntryCandles
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &EntryEngine{
		cfg:     cfg,
		logger:  logger,
		latches: make(map[string]domain.Direction),
	}, nil
}

// CheckEntry evaluates the candle window for symbol. The returned signal has
// DirectionNone unless an entry fired, in which case the symbol is latched.
func (e *EntryEngine) CheckEntry(ctx context.Context, symbol string, candles []domain.Candle) domain.Signal {
	none := domain.Signal{Symbol: symbol, Direction: domain.DirectionNone}
	if len(candles) < e.cfg.MinCandles {
		return none
	}
	snap := indicators.Compute(ctx, candles)
	price := candles[len(candles)-1].Close

	sig := e.evaluate(ctx, symbol, snap, price)
	if sig.IsNone() {
		return sig
	}
	sig.CandlesCount = len(candles)
	return sig
}

// evaluate applies the decision rules to a precomputed snapshot.
func (e *EntryEngine) evaluate(ctx context.Context, symbol string, snap indicators.Snapshot, price float64) domain.Signal {
	none := domain.Signal{Symbol: symbol, Direction: domain.DirectionNone}

	trend := DetectTrend(snap, price)
	pullback := DetectPullback(snap.RSI, trend)

	if veto, reason := ShouldFilter(snap); veto {
		e.logger.Debug(ctx, "CheckEntry: entry filtered", map[string]interface{}{"symbol": symbol, "reason": string(reason)})
		if e.cfg.OnFilter != nil {
			e.cfg.OnFilter(symbol, reason)
		}
		return none
	}
	if !snap.EMA20.Valid || !snap.EMA50.Valid || !snap.VolumeSpike {
		return none
	}

	var dir domain.Direction
	switch {
	case trend == TrendBullish && pullback == PullbackLong &&
		price >= snap.EMA20.Value && price >= snap.EMA50.Value:
		dir = domain.DirectionLong
	case trend == TrendBearish && pullback == PullbackShort &&
		price <= snap.EMA20.Value && price <= snap.EMA50.Value:
		dir = domain.DirectionShort
	default:
		return none
	}

	e.mu.Lock()
	if latched := e.latches[symbol]; latched == domain.DirectionLong || latched == domain.DirectionShort {
		e.mu.Unlock()
		return none
	}
	e.latches[symbol] = dir
	e.mu.Unlock()

	e.logger.Info(ctx, "CheckEntry: signal fired", map[string]interface{}{
		"symbol": symbol, "direction": string(dir), "price": price, "rsi": snap.RSI.Value, "trend": string(trend),
	})
	return domain.Signal{
		Symbol:      symbol,
		Direction:   dir,
		Price:       price,
		Timestamp:   e.cfg.Now(),
		EMA20:       snap.EMA20.Optional(),
		EMA50:       snap.EMA50.Optional(),
		EMA200:      snap.EMA200.Optional(),
		RSI:         snap.RSI.Optional(),
		VolumeSpike: snap.VolumeSpike,
	}
}

// ClosePosition clears the latch for symbol so it may signal again.
func (e *EntryEngine) ClosePosition(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.latches, symbol)
}

// Latched returns the direction currently latched for symbol.
func (e *EntryEngine) Latched(symbol string) domain.Direction {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok := e.latches[symbol]; ok {
		return d
	}
	return domain.DirectionNone
}
