package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/devrajweb/delta-bot/internal/domain"
	"github.com/devrajweb/delta-bot/internal/market"
	"github.com/devrajweb/delta-bot/internal/metrics"
	"github.com/devrajweb/delta-bot/internal/ports"
	"github.com/devrajweb/delta-bot/internal/position"
	"github.com/devrajweb/delta-bot/internal/risk"
	"github.com/devrajweb/delta-bot/internal/safety"
	"github.com/devrajweb/delta-bot/internal/strategy/analytics"
)

const (
	dateLayout             = "2006-01-02"
	streamShutdownTimeout  = 5 * time.Second
	defaultExecTimeout     = 10 * time.Second
	defaultSignalTimeframe = time.Minute
)

// EntrySignaler is the part of the entry engine the service drives.
type EntrySignaler interface {
	CheckEntry(ctx context.Context, symbol string, candles []domain.Candle) domain.Signal
	ClosePosition(symbol string)
}

// OpsServer is the optional operator API started and stopped with the service.
type OpsServer interface {
	Start(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// priceMarker is implemented by execution clients that fill at the last seen price.
type priceMarker interface {
	MarkPrice(symbol string, price float64)
}

// Config holds the orchestrator settings.
type Config struct {
	Symbols          []string
	Mode             domain.TradingMode
	SignalTimeframe  time.Duration
	HistoryCandles   int           // Warm-start size per symbol, 0 disables
	ExecutionTimeout time.Duration // Bound on every collaborator call made for a job
	CloseOnShutdown  bool
	Now              func() time.Time
}

// Deps groups the collaborators of the trading service. History, DailyPnl and
// Metrics are optional.
type Deps struct {
	Logger     ports.Logger
	Aggregator *market.Aggregator
	Entry      EntrySignaler
	Risk       *risk.RiskManager
	Positions  *position.Manager
	Limiter    *safety.Limiter
	Exec       ports.ExecutionClient
	Feed       ports.MarketFeed
	History    ports.CandleHistory
	Trades     ports.TradeRepository
	DailyPnl   ports.DailyPnlRepository
	Metrics    *metrics.Collectors
}

// TradingService orchestrates the tick path: candles, entry signals, risk,
// positions and the safety gate. OnTick is its only inbound entry point.
type TradingService struct {
	cfg        Config
	logger     ports.Logger
	aggregator *market.Aggregator
	entry      EntrySignaler
	risk       *risk.RiskManager
	positions  *position.Manager
	limiter    *safety.Limiter
	exec       ports.ExecutionClient
	feed       ports.MarketFeed
	history    ports.CandleHistory
	trades     ports.TradeRepository
	dailyPnl   ports.DailyPnlRepository
	metrics    *metrics.Collectors

	ops OpsServer

	// State fields
	mu       sync.Mutex // Serializes tick processing and tracker access
	busy     map[string]struct{}
	trackers map[string]*risk.ExitTracker
	stopped  bool
	inflight sync.WaitGroup
}

// NewTradingService creates a new application service instance.
func NewTradingService(cfg Config, deps Deps) (*TradingService, error) {
	if deps.Logger == nil || deps.Aggregator == nil || deps.Entry == nil || deps.Risk == nil ||
		deps.Positions == nil || deps.Limiter == nil || deps.Exec == nil || deps.Feed == nil || deps.Trades == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("at least one symbol is required")
	}
	if cfg.Mode == "" {
		cfg.Mode = domain.ModePaper
	}
	if cfg.SignalTimeframe <= 0 {
		cfg.SignalTimeframe = defaultSignalTimeframe
	}
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = defaultExecTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TradingService{
		cfg:        cfg,
		logger:     deps.Logger,
		aggregator: deps.Aggregator,
		entry:      deps.Entry,
		risk:       deps.Risk,
		positions:  deps.Positions,
		limiter:    deps.Limiter,
		exec:       deps.Exec,
		feed:       deps.Feed,
		history:    deps.History,
		trades:     deps.Trades,
		dailyPnl:   deps.DailyPnl,
		metrics:    deps.Metrics,
		busy:       make(map[string]struct{}),
		trackers:   make(map[string]*risk.ExitTracker),
	}, nil
}

// SetOpsServer attaches the operator API so Start and shutdown manage it.
func (s *TradingService) SetOpsServer(srv OpsServer) {
	s.ops = srv
}

// Start runs the bot until ctx is cancelled, a shutdown signal arrives or the
// tick stream terminates for good.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Trading Service...", map[string]interface{}{
		"mode": string(s.cfg.Mode), "symbols": s.cfg.Symbols, "timeframe": s.cfg.SignalTimeframe.String(),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	// --- Initialization Steps ---
	// 1. Restore today's safety counters
	s.restoreSafety(ctx)

	// 2. Report trades a previous run left open; they are not resumed
	s.reportOrphans(ctx)

	// 3. Seed the candle store
	s.warmStart(ctx)

	// 4. Daily reset of the safety counters
	go s.limiter.Run(ctx)

	// 5. Operator API
	if s.ops != nil {
		s.ops.Start(ctx)
	}

	// --- Start Tick Stream ---
	doneCh, err := s.feed.StreamTicks(ctx, s.cfg.Symbols, s.OnTick, s.handleStreamError)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to start tick stream")
		s.shutdown()
		return fmt.Errorf("failed to start tick stream: %w", err)
	}
	s.logger.Info(ctx, "Tick stream started", map[string]interface{}{"symbols": s.cfg.Symbols})

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info(ctx, "Main context cancelled, initiating shutdown...")
		select {
		case <-doneCh:
			s.logger.Info(ctx, "Tick stream shut down gracefully")
		case <-time.After(streamShutdownTimeout):
			s.logger.Warn(ctx, "Timeout waiting for tick stream to shut down")
		}
	case <-doneCh:
		if ctx.Err() == nil {
			runErr = errors.New("tick stream stopped unexpectedly")
			s.logger.Error(ctx, runErr, "Tick stream stopped")
		}
	}

	s.shutdown()
	s.logger.Info(context.Background(), "Trading Service stopped.")
	return runErr
}

// shutdown stops tick processing, drains in-flight jobs and optionally flattens.
func (s *TradingService) shutdown() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.inflight.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ExecutionTimeout)
	defer cancel()

	if s.cfg.CloseOnShutdown && len(s.positions.Positions()) > 0 {
		s.logger.Warn(ctx, "Shutdown: closing all open positions")
		if _, err := s.EmergencyCloseAll(ctx); err != nil {
			s.logger.Error(ctx, err, "Shutdown: emergency close incomplete")
		}
	}
	if s.ops != nil {
		if err := s.ops.Shutdown(ctx); err != nil {
			s.logger.Error(ctx, err, "Shutdown: ops server did not stop cleanly")
		}
	}
}

func (s *TradingService) restoreSafety(ctx context.Context) {
	if s.dailyPnl == nil {
		return
	}
	today := s.today()
	row, err := s.dailyPnl.GetDailyPnl(ctx, today)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load today's P&L, safety counters start at zero", map[string]interface{}{"date": today})
		return
	}
	if row == nil {
		s.logger.Info(ctx, "No trades recorded today", map[string]interface{}{"date": today})
		return
	}
	s.limiter.Restore(ctx, row.Trades, row.PnL, row.LastLoss)
}

func (s *TradingService) reportOrphans(ctx context.Context) {
	open, err := s.trades.FindOpenTrades(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to check for trades left open")
		return
	}
	for _, t := range open {
		s.logger.Warn(ctx, "Trade left OPEN by a previous run, reconcile manually", map[string]interface{}{
			"tradeID": t.ID, "symbol": t.Symbol, "direction": string(t.Direction), "quantity": t.Quantity, "entryTime": t.EntryTime,
		})
	}
}

func (s *TradingService) warmStart(ctx context.Context) {
	if s.history == nil || s.cfg.HistoryCandles <= 0 {
		return
	}
	for _, symbol := range s.cfg.Symbols {
		hctx, cancel := context.WithTimeout(ctx, s.cfg.ExecutionTimeout)
		candles, err := s.history.GetCandles(hctx, symbol, s.cfg.HistoryCandles)
		cancel()
		if err != nil {
			s.logger.Warn(ctx, "Warm start failed, starting from live ticks only", map[string]interface{}{"symbol": symbol, "error": err.Error()})
			continue
		}
		s.aggregator.LoadHistoricalCandles(symbol, candles)
		s.logger.Info(ctx, "Loaded historical candles", map[string]interface{}{"symbol": symbol, "count": len(candles)})
	}
}

// OnTick processes one trade tick. Ticks are handled strictly one at a time;
// collaborator calls run as per-symbol jobs outside the lock.
func (s *TradingService) OnTick(symbol string, price, volume float64) {
	ctx := context.Background()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	s.aggregator.AddTick(symbol, price, volume)
	s.metrics.Tick(symbol)
	if pm, ok := s.exec.(priceMarker); ok {
		pm.MarkPrice(symbol, price)
	}

	if _, busy := s.busy[symbol]; busy {
		return
	}

	if pos, ok := s.positions.Get(symbol); ok {
		s.evaluateExits(pos, price)
		return
	}
	s.evaluateEntry(ctx, symbol)
}

// evaluateEntry runs the safety gate, entry engine and risk sizing. Caller holds s.mu.
func (s *TradingService) evaluateEntry(ctx context.Context, symbol string) {
	if !s.limiter.CanTrade() {
		s.metrics.SafetyBlocked()
		return
	}

	candles := s.aggregator.GetCandles(symbol, s.cfg.SignalTimeframe)
	sig := s.entry.CheckEntry(ctx, symbol, candles)
	if sig.IsNone() {
		return
	}
	s.metrics.Signal(symbol, string(sig.Direction))

	stop := s.risk.GetStopLoss(ctx, candles, sig.Price, sig.Direction)
	targets, ok := s.risk.GetTakeProfits(sig.Price, stop, sig.Direction)
	if !ok || stop == sig.Price {
		s.logger.Warn(ctx, "evaluateEntry: no usable stop distance, signal dropped", map[string]interface{}{
			"symbol": symbol, "price": sig.Price, "stopLoss": stop,
		})
		s.entry.ClosePosition(symbol)
		return
	}

	s.dispatch(symbol, func(ctx context.Context) {
		s.enterPosition(ctx, sig, stop, targets)
	})
}

// evaluateExits feeds the tick to the position's exit tracker. Caller holds s.mu.
func (s *TradingService) evaluateExits(pos domain.Position, price float64) {
	tracker, ok := s.trackers[pos.Symbol]
	if !ok {
		tracker = risk.NewExitTracker()
		s.trackers[pos.Symbol] = tracker
	}
	intents := tracker.Evaluate(pos, price)
	if len(intents) == 0 {
		return
	}
	s.dispatch(pos.Symbol, func(ctx context.Context) {
		s.applyExits(ctx, pos.Symbol, intents)
	})
}

// dispatch marks symbol busy and runs job under the execution timeout. Caller holds s.mu.
func (s *TradingService) dispatch(symbol string, job func(ctx context.Context)) {
	s.busy[symbol] = struct{}{}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ExecutionTimeout)
		defer cancel()

		job(ctx)

		s.mu.Lock()
		delete(s.busy, symbol)
		s.mu.Unlock()
	}()
}

// Wait blocks until every dispatched job has finished.
func (s *TradingService) Wait() {
	s.inflight.Wait()
}

func (s *TradingService) enterPosition(ctx context.Context, sig domain.Signal, stop float64, targets domain.TakeProfits) {
	op := "enterPosition"
	s.journalSignal(ctx, sig)

	balance, err := s.exec.FetchAccountBalance(ctx)
	if err != nil {
		s.logger.Error(ctx, err, op+": failed to fetch balance, entry abandoned", map[string]interface{}{"symbol": sig.Symbol})
		s.entry.ClosePosition(sig.Symbol)
		return
	}
	qty := s.risk.GetPositionSize(ctx, balance, sig.Price, stop)

	pos, err := s.positions.Open(ctx, position.OpenRequest{
		Symbol:      sig.Symbol,
		Direction:   sig.Direction,
		Quantity:    qty,
		EntryPrice:  sig.Price,
		StopLoss:    stop,
		TakeProfits: targets,
	})
	if err != nil {
		s.logger.Error(ctx, err, op+": open failed, latch released", map[string]interface{}{
			"symbol": sig.Symbol, "direction": string(sig.Direction), "quantity": qty, "balance": balance,
		})
		s.entry.ClosePosition(sig.Symbol)
		return
	}

	s.mu.Lock()
	s.trackers[pos.Symbol] = risk.NewExitTracker()
	s.mu.Unlock()

	s.metrics.Opened(pos.Symbol, string(pos.Direction))
	s.metrics.SetOpenPositions(len(s.positions.Positions()))
}

// journalSignal persists the emitted signal. Failures are logged only.
func (s *TradingService) journalSignal(ctx context.Context, sig domain.Signal) {
	rec := &domain.SignalRecord{Signal: sig, TradingMode: s.cfg.Mode, CreatedAt: s.cfg.Now()}
	if _, err := s.trades.CreateSignal(ctx, rec); err != nil {
		s.logger.Error(ctx, err, "journalSignal: failed to persist signal", map[string]interface{}{"symbol": sig.Symbol})
	}
}

// applyExits realizes the intents in order. On the first failure the tracker
// transitions that were not applied are undone so the next tick retries them.
func (s *TradingService) applyExits(ctx context.Context, symbol string, intents []risk.ExitIntent) {
	op := "applyExits"
	for i, intent := range intents {
		var pnl float64
		var err error
		if intent.Kind == risk.IntentPartialClose {
			pnl, err = s.positions.PartialClose(ctx, symbol, intent.Price)
		} else {
			pnl, err = s.positions.Close(ctx, symbol, intent.Price, intent.Reason)
		}

		if errors.Is(err, ports.ErrNoPosition) {
			s.logger.Warn(ctx, op+": position already gone", map[string]interface{}{"symbol": symbol})
			s.finishPosition(symbol)
			return
		}
		if err != nil {
			s.logger.Error(ctx, err, op+": exit not applied, will retry on next tick", map[string]interface{}{
				"symbol": symbol, "kind": string(intent.Kind), "price": intent.Price,
			})
			s.rollbackIntents(symbol, intents[i:])
			return
		}

		s.recordLeg(ctx, symbol, intent.Reason, pnl)
		if intent.Kind == risk.IntentClose {
			s.finishPosition(symbol)
			return
		}
		// A partial too small to split closes the whole position.
		if _, open := s.positions.Get(symbol); !open {
			s.finishPosition(symbol)
			return
		}
	}
}

func (s *TradingService) rollbackIntents(symbol string, pending []risk.ExitIntent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tracker, ok := s.trackers[symbol]
	if !ok {
		return
	}
	for _, intent := range pending {
		if intent.Kind == risk.IntentPartialClose {
			tracker.Rearm()
		} else {
			tracker.Reopen()
		}
	}
}

// recordLeg books a realized leg with the safety gate, the daily table and metrics.
func (s *TradingService) recordLeg(ctx context.Context, symbol string, reason domain.CloseReason, pnl float64) {
	s.limiter.RecordTrade(ctx, pnl)
	if s.dailyPnl != nil {
		if err := s.dailyPnl.AddDailyPnl(ctx, s.today(), pnl, s.cfg.Now()); err != nil {
			s.logger.Error(ctx, err, "recordLeg: failed to update daily P&L", map[string]interface{}{"symbol": symbol, "pnl": pnl})
		}
	}
	s.metrics.Closed(symbol, string(reason), pnl)
}

// finishPosition drops the tracker and releases the entry latch.
func (s *TradingService) finishPosition(symbol string) {
	s.mu.Lock()
	delete(s.trackers, symbol)
	s.mu.Unlock()
	s.entry.ClosePosition(symbol)
	s.metrics.SetOpenPositions(len(s.positions.Positions()))
}

func (s *TradingService) handleStreamError(err error) {
	s.logger.Error(context.Background(), err, "Tick stream error reported")
}

func (s *TradingService) today() string {
	return s.cfg.Now().Format(dateLayout)
}

// --- Operator accessors ---

// Positions returns the open positions.
func (s *TradingService) Positions() []domain.Position {
	return s.positions.Positions()
}

// SafetyStatus returns the safety limiter snapshot.
func (s *TradingService) SafetyStatus() safety.Status {
	return s.limiter.Status()
}

// EmergencyCloseAll flattens every open position at the last seen price.
func (s *TradingService) EmergencyCloseAll(ctx context.Context) (map[string]float64, error) {
	results, err := s.positions.EmergencyCloseAll(ctx, s.aggregator.LastPrices())
	for symbol, pnl := range results {
		s.recordLeg(ctx, symbol, domain.CloseReasonEmergency, pnl)
		s.finishPosition(symbol)
	}
	return results, err
}

// Performance summarizes trades closed at or after since.
func (s *TradingService) Performance(ctx context.Context, since time.Time) (*analytics.Report, error) {
	trades, err := s.trades.FindClosedTrades(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load closed trades: %w", err)
	}
	return analytics.Analyze(trades), nil
}
