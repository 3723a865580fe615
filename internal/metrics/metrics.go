// Package metrics exposes Prometheus collectors for the tick path.
// A nil *Collectors is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "deltabot"

// Collectors groups every metric the engine records.
type Collectors struct {
	Registry *prometheus.Registry

	ticks         *prometheus.CounterVec
	signals       *prometheus.CounterVec
	vetoes        *prometheus.CounterVec
	opened        *prometheus.CounterVec
	closed        *prometheus.CounterVec
	realizedPnl   *prometheus.CounterVec
	openPositions prometheus.Gauge
	safetyBlocks  prometheus.Counter
}

// New creates the collectors and registers them on a dedicated registry
// together with the Go runtime and process collectors.
func New() *Collectors {
	c := &Collectors{
		Registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total", Help: "Trade ticks received.",
		}, []string{"symbol"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "signals_total", Help: "Entry signals emitted.",
		}, []string{"symbol", "direction"}),
		vetoes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "filter_vetoes_total", Help: "Entries vetoed by market filters.",
		}, []string{"symbol", "reason"}),
		opened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "positions_opened_total", Help: "Positions opened.",
		}, []string{"symbol", "direction"}),
		closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "legs_closed_total", Help: "Closed legs by reason (TP1 partials included).",
		}, []string{"symbol", "reason"}),
		realizedPnl: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "realized_pnl_abs_total", Help: "Absolute realized P&L by sign.",
		}, []string{"symbol", "sign"}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "open_positions", Help: "Currently open positions.",
		}),
		safetyBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "safety_blocks_total", Help: "Entry evaluations skipped by the safety limiter.",
		}),
	}
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.ticks, c.signals, c.vetoes, c.opened, c.closed, c.realizedPnl, c.openPositions, c.safetyBlocks,
	)
	return c
}

// Tick counts one received tick.
func (c *Collectors) Tick(symbol string) {
	if c == nil {
		return
	}
	c.ticks.WithLabelValues(symbol).Inc()
}

// Signal counts an emitted entry signal.
func (c *Collectors) Signal(symbol, direction string) {
	if c == nil {
		return
	}
	c.signals.WithLabelValues(symbol, direction).Inc()
}

// Veto counts a filter veto.
func (c *Collectors) Veto(symbol, reason string) {
	if c == nil {
		return
	}
	c.vetoes.WithLabelValues(symbol, reason).Inc()
}

// Opened counts an opened position.
func (c *Collectors) Opened(symbol, direction string) {
	if c == nil {
		return
	}
	c.opened.WithLabelValues(symbol, direction).Inc()
}

// Closed counts a realized leg and its P&L.
func (c *Collectors) Closed(symbol, reason string, pnl float64) {
	if c == nil {
		return
	}
	c.closed.WithLabelValues(symbol, reason).Inc()
	switch {
	case pnl > 0:
		c.realizedPnl.WithLabelValues(symbol, "profit").Add(pnl)
	case pnl < 0:
		c.realizedPnl.WithLabelValues(symbol, "loss").Add(-pnl)
	}
}

// SetOpenPositions sets the open position gauge.
func (c *Collectors) SetOpenPositions(n int) {
	if c == nil {
		return
	}
	c.openPositions.Set(float64(n))
}

// SafetyBlocked counts an entry skipped by the safety gate.
func (c *Collectors) SafetyBlocked() {
	if c == nil {
		return
	}
	c.safetyBlocks.Inc()
}
