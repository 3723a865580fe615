package safety

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devrajweb/delta-bot/internal/ports"
)

const (
	defaultMaxTradesPerDay = 10
	defaultMaxDailyLoss    = -500.0
	defaultCooldown        = 15 * time.Minute
)

// Config holds the circuit breaker limits.
type Config struct {
	MaxTradesPerDay int
	MaxDailyLoss    float64 // Non-positive threshold; trading stops once daily P&L is at or below it
	Cooldown        time.Duration
	Now             func() time.Time
}

// Status is a point-in-time copy of the limiter state.
type Status struct {
	TradeCount      int       `json:"tradeCount"`
	DailyPnL        float64   `json:"dailyPnl"`
	LastLoss        time.Time `json:"lastLoss,omitempty"`
	MaxTradesPerDay int       `json:"maxTradesPerDay"`
	MaxDailyLoss    float64   `json:"maxDailyLoss"`
	CanTrade        bool      `json:"canTrade"`
	Reason          string    `json:"reason,omitempty"`
}

// Limiter gates new entries on trade count, cumulative loss and post-loss cooldown.
type Limiter struct {
	cfg    Config
	logger ports.Logger

	mu         sync.Mutex
	tradeCount int
	dailyPnL   float64
	lastLoss   time.Time
}

// NewLimiter creates a limiter with defaults for zero-valued limits.
func NewLimiter(cfg Config, logger ports.Logger) (*Limiter, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for safety limiter")
	}
	if cfg.MaxTradesPerDay <= 0 {
		cfg.MaxTradesPerDay = defaultMaxTradesPerDay
	}
	if cfg.MaxDailyLoss == 0 {
		cfg.MaxDailyLoss = defaultMaxDailyLoss
	}
	if cfg.MaxDailyLoss > 0 {
		cfg.MaxDailyLoss = -cfg.MaxDailyLoss
	}
	if cfg.Cooldown < 0 {
		return nil, fmt.Errorf("cooldown cannot be negative")
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = defaultCooldown
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Limiter{cfg: cfg, logger: logger}, nil
}

// CanTrade reports whether a new entry is allowed.
func (l *Limiter) CanTrade() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	ok, _ := l.check()
	return ok
}

// check evaluates the gates. Caller holds the lock.
func (l *Limiter) check() (bool, string) {
	if l.tradeCount >= l.cfg.MaxTradesPerDay {
		return false, fmt.Sprintf("daily trade limit reached (%d/%d)", l.tradeCount, l.cfg.MaxTradesPerDay)
	}
	if l.dailyPnL <= l.cfg.MaxDailyLoss {
		return false, fmt.Sprintf("daily loss limit reached (%.2f <= %.2f)", l.dailyPnL, l.cfg.MaxDailyLoss)
	}
	if !l.lastLoss.IsZero() && l.cfg.Now().Sub(l.lastLoss) < l.cfg.Cooldown {
		return false, fmt.Sprintf("cooldown after loss until %s", l.lastLoss.Add(l.cfg.Cooldown).Format(time.RFC3339))
	}
	return true, ""
}

// RecordTrade counts a realized leg and its P&L. A loss starts the cooldown.
func (l *Limiter) RecordTrade(ctx context.Context, pnl float64) {
	l.mu.Lock()
	l.tradeCount++
	l.dailyPnL += pnl
	if pnl < 0 {
		l.lastLoss = l.cfg.Now()
	}
	count, daily := l.tradeCount, l.dailyPnL
	l.mu.Unlock()

	l.logger.Info(ctx, "RecordTrade: trade recorded", map[string]interface{}{"pnl": pnl, "tradeCount": count, "dailyPnl": daily})
}

// Restore seeds today's counters, e.g. from the daily P&L table after a restart.
// A non-zero lastLoss resumes the cooldown it started.
func (l *Limiter) Restore(ctx context.Context, tradeCount int, dailyPnL float64, lastLoss time.Time) {
	l.mu.Lock()
	l.tradeCount = tradeCount
	l.dailyPnL = dailyPnL
	if lastLoss.After(l.lastLoss) {
		l.lastLoss = lastLoss
	}
	l.mu.Unlock()
	l.logger.Info(ctx, "Restore: safety state restored", map[string]interface{}{
		"tradeCount": tradeCount, "dailyPnl": dailyPnL, "lastLoss": lastLoss,
	})
}

// ResetDaily zeroes the trade count and daily P&L. The loss cooldown survives.
func (l *Limiter) ResetDaily(ctx context.Context) {
	l.mu.Lock()
	l.tradeCount = 0
	l.dailyPnL = 0
	l.mu.Unlock()
	l.logger.Info(ctx, "ResetDaily: daily safety counters reset")
}

// Status returns a snapshot of the limiter state.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	ok, reason := l.check()
	return Status{
		TradeCount:      l.tradeCount,
		DailyPnL:        l.dailyPnL,
		LastLoss:        l.lastLoss,
		MaxTradesPerDay: l.cfg.MaxTradesPerDay,
		MaxDailyLoss:    l.cfg.MaxDailyLoss,
		CanTrade:        ok,
		Reason:          reason,
	}
}

// Run resets the daily counters at every local midnight until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	for {
		wait := NextMidnight(l.cfg.Now()).Sub(l.cfg.Now())
		l.logger.Debug(ctx, "Run: next daily reset scheduled", map[string]interface{}{"in": wait.String()})
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			l.ResetDaily(ctx)
		}
	}
}

// NextMidnight returns the start of the day after t in t's location.
func NextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}
