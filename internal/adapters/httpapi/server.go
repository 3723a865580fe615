// Package httpapi serves the operator endpoints: health, open positions, safety
// status, trade performance, Prometheus metrics and emergency close-all.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/devrajweb/delta-bot/internal/domain"
	"github.com/devrajweb/delta-bot/internal/ports"
	"github.com/devrajweb/delta-bot/internal/safety"
	"github.com/devrajweb/delta-bot/internal/strategy/analytics"
)

// Operator is the part of the trading service the ops API drives.
type Operator interface {
	Positions() []domain.Position
	SafetyStatus() safety.Status
	EmergencyCloseAll(ctx context.Context) (map[string]float64, error)
	Performance(ctx context.Context, since time.Time) (*analytics.Report, error)
}

// Config holds the ops server settings.
type Config struct {
	Addr     string
	Operator Operator
	Gatherer prometheus.Gatherer // nil disables /metrics
	Logger   ports.Logger
}

// Server wraps the gin router and the underlying http.Server.
type Server struct {
	cfg    Config
	router *gin.Engine
	srv    *http.Server
}

// New builds the router.
func New(cfg Config) (*Server, error) {
	if cfg.Operator == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("operator and logger are required for ops server")
	}
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{cfg: cfg, router: r}
	r.GET("/healthz", Health)
	r.HEAD("/healthz", Health)
	r.GET("/positions", s.listPositions)
	r.POST("/positions/close-all", s.closeAll)
	r.GET("/safety", s.safetyStatus)
	r.GET("/performance", s.performance)
	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}
	return s, nil
}

// Router exposes the gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// Start listens in the background. Listen errors other than a clean shutdown are logged.
func (s *Server) Start(ctx context.Context) {
	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		s.cfg.Logger.Info(ctx, "OpsServer: listening", map[string]interface{}{"addr": s.cfg.Addr})
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.cfg.Logger.Error(ctx, err, "OpsServer: listen failed", map[string]interface{}{"addr": s.cfg.Addr})
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// Health handles /healthz.
func Health(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	if c.Request.Method == http.MethodHead {
		c.Status(http.StatusOK)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type positionView struct {
	Symbol     string    `json:"symbol"`
	Direction  string    `json:"direction"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entryPrice"`
	StopLoss   float64   `json:"stopLoss"`
	TP1        float64   `json:"tp1"`
	TP2        float64   `json:"tp2"`
	TP1Hit     bool      `json:"tp1Hit"`
	EntryTime  time.Time `json:"entryTime"`
	TradeID    int64     `json:"tradeId,omitempty"`
}

func (s *Server) listPositions(c *gin.Context) {
	positions := s.cfg.Operator.Positions()
	out := make([]positionView, 0, len(positions))
	for _, p := range positions {
		out = append(out, positionView{
			Symbol:     p.Symbol,
			Direction:  string(p.Direction),
			Quantity:   p.Quantity,
			EntryPrice: p.EntryPrice,
			StopLoss:   p.StopLoss,
			TP1:        p.TakeProfits.TP1,
			TP2:        p.TakeProfits.TP2,
			TP1Hit:     p.TP1Hit,
			EntryTime:  p.EntryTime,
			TradeID:    p.TradeID,
		})
	}
	c.JSON(http.StatusOK, gin.H{"positions": out})
}

func (s *Server) safetyStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Operator.SafetyStatus())
}

func (s *Server) closeAll(c *gin.Context) {
	ctx := c.Request.Context()
	s.cfg.Logger.Warn(ctx, "OpsServer: emergency close-all requested", map[string]interface{}{"remote": c.ClientIP()})
	closed, err := s.cfg.Operator.EmergencyCloseAll(ctx)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"closed": closed, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": closed})
}

// performance handles /performance?since=YYYY-MM-DD. Without since all closed trades are included.
func (s *Server) performance(c *gin.Context) {
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be YYYY-MM-DD"})
			return
		}
		since = t
	}
	report, err := s.cfg.Operator.Performance(c.Request.Context(), since)
	if err != nil {
		s.cfg.Logger.Error(c.Request.Context(), err, "OpsServer: performance report failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}
