package ports

import (
	"context"
	"time"

	"github.com/devrajweb/delta-bot/internal/domain"
)

// TradeRepository persists the trade lifecycle and the signal journal.
type TradeRepository interface {
	// CreateTrade saves a new trade record and returns its assigned ID.
	CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error)
	// UpdateTrade overwrites the mutable fields of an existing trade.
	UpdateTrade(ctx context.Context, trade *domain.Trade) error
	// FindTradeByID retrieves a trade. Returns nil, nil if not found.
	FindTradeByID(ctx context.Context, id int64) (*domain.Trade, error)
	// FindOpenTrades returns trades still marked OPEN, newest first.
	FindOpenTrades(ctx context.Context) ([]*domain.Trade, error)
	// FindClosedTrades returns trades closed at or after since, oldest exit first.
	FindClosedTrades(ctx context.Context, since time.Time) ([]*domain.Trade, error)
	// CreateSignal appends an emitted signal to the journal.
	CreateSignal(ctx context.Context, rec *domain.SignalRecord) (int64, error)
}

// DailyPnlRepository keeps the per-day realized P&L aggregate.
type DailyPnlRepository interface {
	// AddDailyPnl adds pnl and one trade realized at the given time to the row for
	// date, creating it if needed. A losing leg also becomes the row's last loss.
	AddDailyPnl(ctx context.Context, date string, pnl float64, at time.Time) error
	// GetDailyPnl returns the row for date. Returns nil, nil if absent.
	GetDailyPnl(ctx context.Context, date string) (*domain.DailyPnl, error)
}
