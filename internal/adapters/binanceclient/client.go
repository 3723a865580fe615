package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"

	"github.com/devrajweb/delta-bot/internal/domain"
	"github.com/devrajweb/delta-bot/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	klineInterval = "1m"
	maxKlineLimit = 1500
)

// aggTradeServeFunc matches futures.WsAggTradeServe.
type aggTradeServeFunc func(symbol string, handler futures.WsAggTradeHandler, errHandler futures.ErrHandler) (doneC, stopC chan struct{}, err error)

// Client implements ports.ExecutionClient, ports.MarketFeed and ports.CandleHistory
// on top of the Binance USDⓈ-M futures API.
type Client struct {
	futuresClient        *futures.Client
	logger               ports.Logger
	balanceAsset         string
	quantityPrecision    int
	reconnectDelay       time.Duration
	maxReconnectAttempts int
	now                  func() time.Time
	serveAggTrades       aggTradeServeFunc
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey               string
	SecretKey            string
	UseTestnet           bool
	Logger               ports.Logger
	BalanceAsset         string        // Wallet asset used for sizing (default USDT)
	QuantityPrecision    int           // Decimal places sent for order quantities, 0 means whole units
	ReconnectDelay       time.Duration // Initial reconnect delay (e.g., 1 * time.Second)
	MaxReconnectAttempts int           // Max consecutive failed attempts before giving up
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		futures.UseTestnet = true // websocket endpoints read the package-level flag
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts < 0 {
		return nil, fmt.Errorf("max reconnect attempts cannot be negative, got %d: %w", maxAttempts, ports.ErrConfigurationError)
	}
	if maxAttempts == 0 {
		maxAttempts = 10
	}
	asset := cfg.BalanceAsset
	if asset == "" {
		asset = "USDT"
	}
	if cfg.QuantityPrecision < 0 || cfg.QuantityPrecision > 8 {
		return nil, fmt.Errorf("quantity precision must be between 0 and 8, got %d: %w", cfg.QuantityPrecision, ports.ErrConfigurationError)
	}

	return &Client{
		futuresClient:        client,
		logger:               cfg.Logger,
		balanceAsset:         asset,
		quantityPrecision:    cfg.QuantityPrecision,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
		now:                  time.Now,
		serveAggTrades:       futures.WsAggTradeServe,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Invalid signature
			mappedErr = ports.ErrAuthenticationFailed
		case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130:
			mappedErr = ports.ErrInvalidRequest
		case -2010: // New order rejected
			mappedErr = ports.ErrOrderPlacementFailed
		case -2013: // Order does not exist
			mappedErr = ports.ErrOrderNotFound
		case -2014, -2015: // API-key format invalid / IP or permissions
			mappedErr = ports.ErrInvalidAPIKeys
		case -2019, -3005, -3041, -4047: // Margin, balance or position limit
			mappedErr = ports.ErrInsufficientFunds
		case -2022: // ReduceOnly Order is rejected
			mappedErr = ports.ErrOrderPlacementFailed
		case -4003, -4014: // Qty or price not within permissible range
			mappedErr = ports.ErrInvalidRequest
		case -4044: // Position not found
			mappedErr = ports.ErrPositionNotFound
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// FetchAccountBalance returns the wallet balance of the configured asset.
func (c *Client) FetchAccountBalance(ctx context.Context) (float64, error) {
	op := "FetchAccountBalance"
	account, err := c.futuresClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}

	for _, bal := range account.Assets {
		if bal.Asset == c.balanceAsset {
			balance, err := strconv.ParseFloat(bal.WalletBalance, 64)
			if err != nil {
				parseErr := fmt.Errorf("could not parse balance '%s' for asset %s: %w", bal.WalletBalance, c.balanceAsset, err)
				return 0, c.handleError(ctx, parseErr, op)
			}
			return balance, nil
		}
	}

	err = fmt.Errorf("asset %s not found in account balance", c.balanceAsset)
	return 0, c.handleError(ctx, err, op)
}

// formatQuantity truncates quantity to the configured precision.
func (c *Client) formatQuantity(quantity float64) string {
	return decimal.NewFromFloat(domain.TruncateQuantity(quantity, c.quantityPrecision)).String()
}

// PlaceMarketOrder places a market order for quantity on side.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, quantity float64, side domain.OrderSide) (*ports.OrderResponse, error) {
	return c.placeMarketOrder(ctx, "PlaceMarketOrder", symbol, quantity, side, false)
}

func (c *Client) placeMarketOrder(ctx context.Context, op, symbol string, quantity float64, side domain.OrderSide, reduceOnly bool) (*ports.OrderResponse, error) {
	qty := c.formatQuantity(quantity)
	if qty == "0" {
		return nil, fmt.Errorf("%s failed: %w: quantity %v below precision", op, ports.ErrInvalidQuantity, quantity)
	}

	svc := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(qty).
		NewClientOrderID(uuid.NewString())
	if reduceOnly {
		svc = svc.ReduceOnly(true)
	}

	order, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": symbol, "side": string(side), "quantity": qty, "orderID": resp.OrderID, "avgPrice": resp.AvgPrice, "reduceOnly": reduceOnly,
	})
	return resp, nil
}

// ClosePosition flattens the account's exposure on symbol with a reduce-only market order.
// It returns nil, nil when the account is already flat.
func (c *Client) ClosePosition(ctx context.Context, symbol string) (*ports.OrderResponse, error) {
	op := "ClosePosition"
	positions, err := c.futuresClient.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	var amt float64
	for _, p := range positions {
		if p.Symbol != symbol {
			continue
		}
		v, err := strconv.ParseFloat(p.PositionAmt, 64)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("could not parse position amount '%s': %w", p.PositionAmt, err), op)
		}
		amt += v
	}
	if amt == 0 {
		c.logger.Warn(ctx, op+": no exchange position to close", map[string]interface{}{"symbol": symbol})
		return nil, nil
	}

	side := domain.Sell
	if amt < 0 {
		side = domain.Buy
		amt = -amt
	}
	return c.placeMarketOrder(ctx, op, symbol, amt, side, true)
}

// StreamTicks subscribes to the aggregated trade stream of every symbol. Each symbol
// reconnects independently with exponential backoff. When one symbol exhausts its
// attempts the whole stream is stopped and doneCh is closed.
func (c *Client) StreamTicks(ctx context.Context, symbols []string, handler ports.TickHandler, errHandler func(err error)) (chan struct{}, error) {
	op := "StreamTicks"
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%s: %w: no symbols", op, ports.ErrInvalidRequest)
	}
	wsCtx, cancelWs := context.WithCancel(ctx)

	var wg sync.WaitGroup
	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			if !c.runAggTradeLoop(wsCtx, symbol, handler, errHandler) {
				cancelWs()
			}
		}(symbol)
	}

	doneCh := make(chan struct{})
	go func() {
		wg.Wait()
		cancelWs()
		c.logger.Info(ctx, op+": all tick streams stopped, closing done channel")
		close(doneCh)
	}()
	return doneCh, nil
}

// runAggTradeLoop keeps one symbol subscribed until ctx ends. It returns false when
// the reconnect attempts are exhausted.
func (c *Client) runAggTradeLoop(ctx context.Context, symbol string, handler ports.TickHandler, errHandler func(err error)) bool {
	op := "StreamTicks"
	b := &backoff.Backoff{
		Min:    c.reconnectDelay,
		Max:    c.reconnectDelay * 60,
		Factor: 2,
		Jitter: true,
	}

	wsHandler := func(event *futures.WsAggTradeEvent) {
		price, volume, err := translateAggTrade(event)
		if err != nil {
			c.logger.Warn(ctx, op+": dropping malformed trade event", map[string]interface{}{"symbol": symbol, "error": err.Error()})
			return
		}
		handler(symbol, price, volume)
	}
	wsErrHandler := func(err error) {
		translated := c.handleError(ctx, err, op+" WebSocket")
		if errHandler != nil {
			errHandler(translated)
		}
	}

	for {
		if ctx.Err() != nil {
			return true
		}
		c.logger.Info(ctx, op+": Attempting WebSocket connection...", map[string]interface{}{"symbol": symbol, "attempt": int(b.Attempt()) + 1})
		innerDone, innerStop, err := c.serveAggTrades(symbol, wsHandler, wsErrHandler)
		if err != nil {
			c.handleError(ctx, err, op+" connection attempt")
			if int(b.Attempt())+1 >= c.maxReconnectAttempts {
				c.logger.Error(ctx, err, op+": Max reconnection attempts exceeded, giving up.", map[string]interface{}{"symbol": symbol, "maxAttempts": c.maxReconnectAttempts})
				return false
			}
			delay := b.Duration()
			c.logger.Info(ctx, op+": Connection failed, retrying...", map[string]interface{}{"symbol": symbol, "delay": delay.String()})
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return true
			}
		}

		c.logger.Info(ctx, op+": WebSocket connection established.", map[string]interface{}{"symbol": symbol})
		b.Reset()

		select {
		case <-innerDone:
			c.logger.Warn(ctx, op+": WebSocket connection closed unexpectedly. Reconnecting...", map[string]interface{}{"symbol": symbol})
			select {
			case <-time.After(b.Duration()):
			case <-ctx.Done():
				return true
			}
		case <-ctx.Done():
			select {
			case innerStop <- struct{}{}:
			default:
			}
			c.logger.Info(ctx, op+": Context cancelled, stopping WebSocket.", map[string]interface{}{"symbol": symbol})
			return true
		}
	}
}

// GetCandles returns up to limit completed 1-minute candles, oldest first. The
// still-forming kline at the tail is dropped.
func (c *Client) GetCandles(ctx context.Context, symbol string, limit int) ([]domain.Candle, error) {
	op := "GetCandles"
	if limit <= 0 {
		return nil, nil
	}
	if limit > maxKlineLimit-1 {
		limit = maxKlineLimit - 1
	}
	klines, err := c.futuresClient.NewKlinesService().Symbol(symbol).Interval(klineInterval).Limit(limit + 1).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	nowMs := c.now().UnixMilli()
	candles := make([]domain.Candle, 0, len(klines))
	for _, bk := range klines {
		if bk.CloseTime >= nowMs {
			continue
		}
		candle, err := translateBinanceKline(bk)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline: %w", err), op)
		}
		candles = append(candles, candle)
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

// GetCandlesRange fetches all 1-minute candles for symbol between start and end.
func (c *Client) GetCandlesRange(ctx context.Context, symbol string, start, end time.Time) ([]domain.Candle, error) {
	op := "GetCandlesRange"
	var all []domain.Candle
	from := start

	for {
		klines, err := c.futuresClient.NewKlinesService().
			Symbol(symbol).
			Interval(klineInterval).
			StartTime(from.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(maxKlineLimit).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(klines) == 0 {
			break
		}
		for _, bk := range klines {
			candle, err := translateBinanceKline(bk)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline range: %w", err), op)
			}
			all = append(all, candle)
		}
		last := klines[len(klines)-1]
		from = time.UnixMilli(last.CloseTime + 1)
		if from.After(end) || len(klines) < maxKlineLimit {
			break
		}
	}

	return all, nil
}

// --- Translation Helpers ---

func translateOrderResponse(order *futures.CreateOrderResponse) *ports.OrderResponse {
	if order == nil {
		return nil
	}
	avgPrice, _ := strconv.ParseFloat(order.AvgPrice, 64)
	origQty, _ := strconv.ParseFloat(order.OrigQuantity, 64)
	execQty, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)

	return &ports.OrderResponse{
		OrderID:       strconv.FormatInt(order.OrderID, 10),
		Symbol:        order.Symbol,
		ClientOrderID: order.ClientOrderID,
		AvgPrice:      avgPrice,
		OrigQuantity:  origQty,
		ExecutedQty:   execQty,
		Status:        string(order.Status),
		Side:          string(order.Side),
		Timestamp:     time.UnixMilli(order.UpdateTime),
	}
}

func translateAggTrade(event *futures.WsAggTradeEvent) (price, volume float64, err error) {
	if event == nil {
		return 0, 0, errors.New("received nil trade event")
	}
	price, err = strconv.ParseFloat(event.Price, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing price '%s': %w", event.Price, err)
	}
	volume, err = strconv.ParseFloat(event.Quantity, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing quantity '%s': %w", event.Quantity, err)
	}
	if price <= 0 || volume < 0 {
		return 0, 0, fmt.Errorf("invalid trade price %v volume %v", price, volume)
	}
	return price, volume, nil
}

func translateBinanceKline(bk *futures.Kline) (domain.Candle, error) {
	if bk == nil {
		return domain.Candle{}, errors.New("received nil historical kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	return domain.Candle{
		Timestamp: time.UnixMilli(bk.OpenTime),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
	}, nil
}
