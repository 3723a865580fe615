package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/devrajweb/delta-bot/internal/domain"
	"github.com/devrajweb/delta-bot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.TradeRepository and ports.DailyPnlRepository using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trading_bot.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// One writer; the driver serializes through this connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		direction TEXT NOT NULL,
		qty REAL NOT NULL,
		status TEXT NOT NULL,
		trading_mode TEXT NOT NULL,
		entry_price REAL NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		entry_order_id TEXT NULL,
		stop_loss REAL NOT NULL,
		tp1 REAL NOT NULL,
		tp2 REAL NOT NULL,
		exit_price REAL DEFAULT NULL,
		exit_time TIMESTAMP DEFAULT NULL,
		pnl REAL DEFAULT NULL,
		realized_pnl REAL NOT NULL DEFAULT 0,
		close_reason TEXT NULL
	);

	CREATE TABLE IF NOT EXISTS signals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		price REAL NOT NULL,
		candles_count INTEGER NOT NULL,
		ema20 REAL NULL,
		ema50 REAL NULL,
		ema200 REAL NULL,
		rsi REAL NULL,
		volume_spike INTEGER NOT NULL,
		trading_mode TEXT NOT NULL,
		signal_time TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS daily_pnl (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL UNIQUE,
		pnl REAL NOT NULL DEFAULT 0,
		trades INTEGER NOT NULL DEFAULT 0,
		last_loss TIMESTAMP NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trades_symbol_status ON trades (symbol, status);
	CREATE INDEX IF NOT EXISTS idx_signals_symbol_time ON signals (symbol, signal_time);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- TradeRepository Implementation ---

// CreateTrade saves a new trade record and returns its assigned ID.
func (r *Repository) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trades (symbol, side, direction, qty, status, trading_mode, entry_price, entry_time,
	                    entry_order_id, stop_loss, tp1, tp2, realized_pnl)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		trade.Symbol, trade.Side, trade.Direction, trade.Quantity, trade.Status, trade.TradingMode,
		trade.EntryPrice, trade.EntryTime, nullString(trade.EntryOrderID), trade.StopLoss, trade.TP1, trade.TP2,
		trade.RealizedPNL)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade for symbol %s: %w: %w", trade.Symbol, ports.ErrQueryFailed, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade %s: %w", trade.Symbol, err)
	}
	trade.ID = id
	r.logger.Debug(ctx, "Trade created", map[string]interface{}{"tradeID": id, "symbol": trade.Symbol, "direction": string(trade.Direction)})
	return id, nil
}

// UpdateTrade overwrites the mutable fields of an existing trade.
func (r *Repository) UpdateTrade(ctx context.Context, trade *domain.Trade) error {
	const query = `
	UPDATE trades
	SET qty = ?, status = ?, stop_loss = ?, exit_price = ?, exit_time = ?,
	    pnl = ?, realized_pnl = ?, close_reason = ?
	WHERE id = ?`

	var exitTime sql.NullTime
	var exitPrice, pnl sql.NullFloat64
	if !trade.ExitTime.IsZero() {
		exitTime = sql.NullTime{Time: trade.ExitTime.UTC(), Valid: true}
		exitPrice = sql.NullFloat64{Float64: trade.ExitPrice, Valid: true}
		pnl = sql.NullFloat64{Float64: trade.PNL, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		trade.Quantity, trade.Status, trade.StopLoss, exitPrice, exitTime,
		pnl, trade.RealizedPNL, nullString(string(trade.CloseReason)),
		trade.ID)
	if err != nil {
		return fmt.Errorf("failed to update trade ID %d: %w: %w", trade.ID, ports.ErrUpdateFailed, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for update trade ID %d: %w", trade.ID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("trade ID %d not found for update: %w", trade.ID, ports.ErrNotFound)
	}
	r.logger.Debug(ctx, "Trade updated", map[string]interface{}{"tradeID": trade.ID, "symbol": trade.Symbol, "status": string(trade.Status)})
	return nil
}

const tradeColumns = `
	id, symbol, side, direction, qty, status, trading_mode, entry_price, entry_time,
	entry_order_id, stop_loss, tp1, tp2, exit_price, exit_time, pnl, realized_pnl, close_reason`

// FindTradeByID retrieves a trade by its unique ID.
func (r *Repository) FindTradeByID(ctx context.Context, id int64) (*domain.Trade, error) {
	query := `SELECT` + tradeColumns + ` FROM trades WHERE id = ?`

	trade, err := scanTrade(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "Trade not found by ID", map[string]interface{}{"tradeID": id})
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query trade by ID %d: %w", id, err)
	}
	return trade, nil
}

// FindOpenTrades returns trades still marked OPEN, newest first.
func (r *Repository) FindOpenTrades(ctx context.Context) ([]*domain.Trade, error) {
	query := `SELECT` + tradeColumns + ` FROM trades WHERE status = ? ORDER BY entry_time DESC, id DESC`
	return r.queryTrades(ctx, "FindOpenTrades", query, domain.TradeOpen)
}

// FindClosedTrades returns trades closed at or after since, oldest exit first.
func (r *Repository) FindClosedTrades(ctx context.Context, since time.Time) ([]*domain.Trade, error) {
	query := `SELECT` + tradeColumns + ` FROM trades WHERE status = ? AND exit_time >= ? ORDER BY exit_time ASC, id ASC`
	return r.queryTrades(ctx, "FindClosedTrades", query, domain.TradeClosed, since.UTC())
}

func (r *Repository) queryTrades(ctx context.Context, op, query string, args ...interface{}) ([]*domain.Trade, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %w", op, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade during %s: %w", op, err)
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// CreateSignal appends an emitted signal to the journal.
func (r *Repository) CreateSignal(ctx context.Context, rec *domain.SignalRecord) (int64, error) {
	const query = `
	INSERT INTO signals (symbol, direction, price, candles_count, ema20, ema50, ema200, rsi,
	                     volume_spike, trading_mode, signal_time, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	s := rec.Signal
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	result, err := r.db.ExecContext(ctx, query,
		s.Symbol, s.Direction, s.Price, s.CandlesCount, s.EMA20, s.EMA50, s.EMA200, s.RSI,
		s.VolumeSpike, rec.TradingMode, s.Timestamp, createdAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert signal for symbol %s: %w: %w", s.Symbol, ports.ErrQueryFailed, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for signal %s: %w", s.Symbol, err)
	}
	rec.ID = id
	rec.CreatedAt = createdAt
	return id, nil
}

// --- DailyPnlRepository Implementation ---

// AddDailyPnl adds pnl and one trade to the row for date, creating it if needed.
// A losing leg records at as the row's last loss.
func (r *Repository) AddDailyPnl(ctx context.Context, date string, pnl float64, at time.Time) error {
	const query = `
	INSERT INTO daily_pnl (date, pnl, trades, last_loss) VALUES (?, ?, 1, ?)
	ON CONFLICT(date) DO UPDATE SET pnl = pnl + excluded.pnl, trades = trades + 1,
		last_loss = COALESCE(excluded.last_loss, last_loss)`

	lastLoss := sql.NullTime{Time: at.UTC(), Valid: pnl < 0}
	if _, err := r.db.ExecContext(ctx, query, date, pnl, lastLoss); err != nil {
		return fmt.Errorf("failed to upsert daily pnl for %s: %w: %w", date, ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Daily PnL updated", map[string]interface{}{"date": date, "pnl": pnl})
	return nil
}

// GetDailyPnl returns the row for date, or nil if no leg was realized that day.
func (r *Repository) GetDailyPnl(ctx context.Context, date string) (*domain.DailyPnl, error) {
	const query = `SELECT date, pnl, trades, last_loss FROM daily_pnl WHERE date = ?`

	d := &domain.DailyPnl{}
	var lastLoss sql.NullTime
	err := r.db.QueryRowContext(ctx, query, date).Scan(&d.Date, &d.PnL, &d.Trades, &lastLoss)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query daily pnl for %s: %w", date, err)
	}
	if lastLoss.Valid {
		d.LastLoss = lastLoss.Time
	}
	return d, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanTrade scans a row into a domain.Trade struct.
func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var (
		side, direction, status, mode string
		orderID, closeReason          sql.NullString
		exitPrice, pnl                sql.NullFloat64
		exitTime                      sql.NullTime
	)
	err := s.Scan(
		&t.ID, &t.Symbol, &side, &direction, &t.Quantity, &status, &mode, &t.EntryPrice, &t.EntryTime,
		&orderID, &t.StopLoss, &t.TP1, &t.TP2, &exitPrice, &exitTime, &pnl, &t.RealizedPNL, &closeReason)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	t.Side = domain.OrderSide(side)
	t.Direction = domain.Direction(direction)
	t.Status = domain.TradeStatus(status)
	t.TradingMode = domain.TradingMode(mode)
	t.EntryOrderID = orderID.String
	t.CloseReason = domain.CloseReason(closeReason.String)
	t.ExitPrice = exitPrice.Float64
	t.PNL = pnl.Float64
	if exitTime.Valid {
		t.ExitTime = exitTime.Time
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
