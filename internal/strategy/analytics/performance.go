// Package analytics summarizes closed trades into a performance report.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/devrajweb/delta-bot/internal/domain"
)

// Report holds performance metrics over a set of closed trades. A trade's
// result is its RealizedPNL, so a TP1 partial counts toward the trade it belongs to.
type Report struct {
	// Basic Metrics
	TotalTrades   int     `json:"totalTrades"`
	WinningTrades int     `json:"winningTrades"`
	LosingTrades  int     `json:"losingTrades"`
	Breakeven     int     `json:"breakeven"`
	WinRate       float64 `json:"winRate"`
	TotalPnL      float64 `json:"totalPnl"`
	GrossProfit   float64 `json:"grossProfit"`
	GrossLoss     float64 `json:"grossLoss"`
	ProfitFactor  float64 `json:"profitFactor"`
	AverageWin    float64 `json:"averageWin"`
	AverageLoss   float64 `json:"averageLoss"`
	Expectancy    float64 `json:"expectancy"`

	// Advanced Metrics
	MaxDrawdown          float64                `json:"maxDrawdown"` // Largest peak-to-trough drop of cumulative P&L
	MaxConsecutiveWins   int                    `json:"maxConsecutiveWins"`
	MaxConsecutiveLosses int                    `json:"maxConsecutiveLosses"`
	AverageHoldMinutes   float64                `json:"averageHoldMinutes"`
	BySymbol             map[string]SymbolStats `json:"bySymbol"`
	ByCloseReason        map[string]int         `json:"byCloseReason"`
	EquityCurve          []EquityPoint          `json:"equityCurve"`
}

// SymbolStats is the per-symbol breakdown.
type SymbolStats struct {
	Trades int     `json:"trades"`
	Wins   int     `json:"wins"`
	PnL    float64 `json:"pnl"`
}

// EquityPoint is cumulative P&L after a trade closed.
type EquityPoint struct {
	Time     time.Time `json:"time"`
	Value    float64   `json:"value"`
	Drawdown float64   `json:"drawdown"`
}

// Analyze computes the report. Trades are processed in exit order; the input is not modified.
func Analyze(trades []*domain.Trade) *Report {
	r := &Report{
		BySymbol:      make(map[string]SymbolStats),
		ByCloseReason: make(map[string]int),
		EquityCurve:   make([]EquityPoint, 0, len(trades)),
	}
	if len(trades) == 0 {
		return r
	}

	sorted := make([]*domain.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ExitTime.Before(sorted[j].ExitTime)
	})

	var equity, peak float64
	var wins, losses int
	var held time.Duration
	for _, t := range sorted {
		pnl := t.RealizedPNL
		r.TotalTrades++
		r.TotalPnL += pnl

		stats := r.BySymbol[t.Symbol]
		stats.Trades++
		stats.PnL += pnl

		switch {
		case pnl > 0:
			r.WinningTrades++
			r.GrossProfit += pnl
			stats.Wins++
			wins++
			losses = 0
		case pnl < 0:
			r.LosingTrades++
			r.GrossLoss += -pnl
			losses++
			wins = 0
		default:
			r.Breakeven++
			wins, losses = 0, 0
		}
		r.MaxConsecutiveWins = max(r.MaxConsecutiveWins, wins)
		r.MaxConsecutiveLosses = max(r.MaxConsecutiveLosses, losses)
		r.BySymbol[t.Symbol] = stats
		if t.CloseReason != "" {
			r.ByCloseReason[string(t.CloseReason)]++
		}
		if !t.ExitTime.IsZero() && t.ExitTime.After(t.EntryTime) {
			held += t.ExitTime.Sub(t.EntryTime)
		}

		equity += pnl
		peak = math.Max(peak, equity)
		drawdown := peak - equity
		r.MaxDrawdown = math.Max(r.MaxDrawdown, drawdown)
		r.EquityCurve = append(r.EquityCurve, EquityPoint{Time: t.ExitTime, Value: equity, Drawdown: drawdown})
	}

	n := float64(r.TotalTrades)
	r.WinRate = float64(r.WinningTrades) / n
	if r.WinningTrades > 0 {
		r.AverageWin = r.GrossProfit / float64(r.WinningTrades)
	}
	if r.LosingTrades > 0 {
		r.AverageLoss = -r.GrossLoss / float64(r.LosingTrades)
	}
	if r.GrossLoss > 0 {
		r.ProfitFactor = r.GrossProfit / r.GrossLoss
	}
	r.Expectancy = r.TotalPnL / n
	r.AverageHoldMinutes = held.Minutes() / n
	return r
}
