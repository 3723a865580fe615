package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"github.com/devrajweb/delta-bot/config"
	"github.com/devrajweb/delta-bot/internal/adapters/binanceclient"
	"github.com/devrajweb/delta-bot/internal/adapters/httpapi"
	"github.com/devrajweb/delta-bot/internal/adapters/logger"
	"github.com/devrajweb/delta-bot/internal/adapters/paper"
	"github.com/devrajweb/delta-bot/internal/adapters/rediscache"
	"github.com/devrajweb/delta-bot/internal/adapters/sqlite"
	"github.com/devrajweb/delta-bot/internal/app"
	"github.com/devrajweb/delta-bot/internal/domain"
	"github.com/devrajweb/delta-bot/internal/market"
	"github.com/devrajweb/delta-bot/internal/metrics"
	"github.com/devrajweb/delta-bot/internal/ports"
	"github.com/devrajweb/delta-bot/internal/position"
	"github.com/devrajweb/delta-bot/internal/risk"
	"github.com/devrajweb/delta-bot/internal/safety"
	"github.com/devrajweb/delta-bot/internal/strategy"
)

func main() {
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, err := logger.NewZapLogger(logger.Config{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "file": cfg.LogFile})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()
	appLogger.Info(ctx, "Database repository initialized")

	// 4. Initialize Exchange Client (Binance Adapter) and execution
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		BalanceAsset:         cfg.BalanceAsset,
		QuantityPrecision:    cfg.QuantityPrecision,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(ctx, "Binance client initialized")

	var exec ports.ExecutionClient = binanceClient
	if cfg.TradingMode == domain.ModePaper {
		paperEngine, err := paper.NewEngine(paper.Config{InitialBalance: cfg.PaperInitialBalance, Logger: appLogger})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize paper engine")
			log.Fatalf("FATAL: Failed to initialize paper engine: %v", err)
		}
		exec = paperEngine
		appLogger.Info(ctx, "Paper execution enabled", map[string]interface{}{"initialBalance": cfg.PaperInitialBalance})
	} else {
		appLogger.Warn(ctx, "LIVE execution enabled, orders will reach the exchange")
	}

	// 5. Candle history, cached in Redis when configured
	var history ports.CandleHistory = binanceClient
	if cfg.RedisAddr != "" {
		rdb, err := rediscache.NewClient(ctx, rediscache.ClientConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			appLogger.Warn(ctx, "Redis unavailable, candle history is not cached", map[string]interface{}{"addr": cfg.RedisAddr, "error": err.Error()})
		} else {
			defer func() { _ = rdb.Close() }()
			history = rediscache.NewCandleHistory(rdb, cfg.CacheTTL, binanceClient, "", appLogger)
			appLogger.Info(ctx, "Candle history cache enabled", map[string]interface{}{"addr": cfg.RedisAddr, "ttl": cfg.CacheTTL.String()})
		}
	}

	// 6. Initialize Metrics
	collectors := metrics.New()

	// 7. Initialize Engines and Application Service
	entryEngine, err := strategy.NewEntryEngine(strategy.Config{
		OnFilter: func(symbol string, reason strategy.FilterReason) { collectors.Veto(symbol, string(reason)) },
	}, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize entry engine: %v", err)
	}
	riskManager, err := risk.NewRiskManager(risk.RiskConfig{RiskPercent: cfg.RiskPercent})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize risk manager: %v", err)
	}
	limiter, err := safety.NewLimiter(safety.Config{
		MaxTradesPerDay: cfg.MaxTradesPerDay,
		MaxDailyLoss:    cfg.MaxDailyLoss,
		Cooldown:        cfg.Cooldown,
	}, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize safety limiter: %v", err)
	}
	positions, err := position.NewManager(position.Config{Mode: cfg.TradingMode, QuantityPrecision: cfg.QuantityPrecision}, appLogger, exec, repo)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize position manager: %v", err)
	}

	tradingService, err := app.NewTradingService(app.Config{
		Symbols:          cfg.Symbols,
		Mode:             cfg.TradingMode,
		SignalTimeframe:  cfg.SignalTimeframe,
		HistoryCandles:   cfg.HistoryCandles,
		ExecutionTimeout: cfg.ExecutionTimeout,
		CloseOnShutdown:  cfg.CloseOnShutdown,
	}, app.Deps{
		Logger: appLogger,
		Aggregator: market.NewAggregator(market.Config{
			MinCandles: cfg.MinCandles,
			MaxBuckets: cfg.MaxCandleBuckets,
		}),
		Entry:     entryEngine,
		Risk:      riskManager,
		Positions: positions,
		Limiter:   limiter,
		Exec:      exec,
		Feed:      binanceClient,
		History:   history,
		Trades:    repo,
		DailyPnl:  repo,
		Metrics:   collectors,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}
	appLogger.Info(ctx, "Trading service initialized")

	// 8. Ops HTTP API
	if cfg.HTTPAddr != "" {
		opsServer, err := httpapi.New(httpapi.Config{
			Addr:     cfg.HTTPAddr,
			Operator: tradingService,
			Gatherer: collectors.Registry,
			Logger:   appLogger,
		})
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize ops server: %v", err)
		}
		tradingService.SetOpsServer(opsServer)
	}

	// 9. Start the Service
	if err := tradingService.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "Trading service exited with error")
		log.Fatalf("FATAL: Trading service exited with error: %v", err)
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}
