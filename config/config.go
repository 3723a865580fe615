package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/devrajweb/delta-bot/internal/adapters/logger"
	"github.com/devrajweb/delta-bot/internal/domain"
	"github.com/devrajweb/delta-bot/internal/ports"
)

// Config holds all application configuration.
type Config struct {
	// Mode
	TradingMode domain.TradingMode
	ConfirmLive bool

	// Binance API
	APIKey       string
	SecretKey    string
	IsTestnet    bool
	Symbols      []string
	BalanceAsset string

	// Risk & Safety
	RiskPercent     float64 // Percent of equity risked per trade (0.5 = 0.5%)
	MaxDailyLoss    float64 // Non-positive; a positive value is negated
	MaxTradesPerDay int
	Cooldown        time.Duration
	MinCandles      int

	// Candles
	SignalTimeframe  time.Duration
	HistoryCandles   int
	MaxCandleBuckets int

	// Execution
	PaperInitialBalance float64
	QuantityPrecision   int
	ExecutionTimeout    time.Duration
	CloseOnShutdown     bool

	// Database
	DBPath string

	// Cache
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// Ops HTTP
	HTTPAddr string

	// Logging
	LogLevel      logger.LogLevel
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int

	// Connection Settings
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string

	// Mode
	switch mode := strings.ToUpper(getEnv("TRADING_MODE", string(domain.ModePaper))); mode {
	case string(domain.ModePaper), string(domain.ModeLive):
		cfg.TradingMode = domain.TradingMode(mode)
	default:
		errs = append(errs, fmt.Sprintf("TRADING_MODE must be PAPER or LIVE, got %q", mode))
	}
	cfg.ConfirmLive = getEnv("CONFIRM_LIVE", "") == "YES"

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety
	cfg.BalanceAsset = getEnv("BALANCE_ASSET", "USDT")

	if cfg.TradingMode == domain.ModeLive {
		if !cfg.ConfirmLive {
			errs = append(errs, fmt.Sprintf("CONFIRM_LIVE=YES must be set for LIVE mode: %v", ports.ErrLiveNotConfirmed))
		}
		if cfg.APIKey == "" {
			errs = append(errs, "BINANCE_API_KEY must be set for LIVE mode")
		}
		if cfg.SecretKey == "" {
			errs = append(errs, "BINANCE_API_SECRET must be set for LIVE mode")
		}
	}

	cfg.Symbols = parseSymbols(getEnv("SYMBOLS", "BTCUSDT,ETHUSDT"))
	if len(cfg.Symbols) == 0 {
		errs = append(errs, "SYMBOLS must list at least one symbol")
	}

	// Risk & Safety
	cfg.RiskPercent, err = getEnvAsFloatRequired("RISK_PERCENT", 0.5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RISK_PERCENT: %v", err))
	} else if cfg.RiskPercent <= 0 || cfg.RiskPercent > 100 {
		errs = append(errs, "RISK_PERCENT must be in (0, 100]")
	}

	cfg.MaxDailyLoss, err = getEnvAsFloatRequired("MAX_DAILY_LOSS", -500)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_DAILY_LOSS: %v", err))
	} else if cfg.MaxDailyLoss == 0 {
		errs = append(errs, "MAX_DAILY_LOSS must be non-zero")
	} else if cfg.MaxDailyLoss > 0 {
		cfg.MaxDailyLoss = -cfg.MaxDailyLoss
	}

	cfg.MaxTradesPerDay, err = getEnvAsIntRequired("MAX_TRADES_PER_DAY", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_TRADES_PER_DAY: %v", err))
	} else if cfg.MaxTradesPerDay <= 0 {
		errs = append(errs, "MAX_TRADES_PER_DAY must be positive")
	}

	cooldownMinutes, err := getEnvAsIntRequired("COOLDOWN_MINUTES", 15)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid COOLDOWN_MINUTES: %v", err))
	} else if cooldownMinutes <= 0 {
		errs = append(errs, "COOLDOWN_MINUTES must be positive")
	}
	cfg.Cooldown = time.Duration(cooldownMinutes) * time.Minute

	cfg.MinCandles = getEnvAsInt("MIN_CANDLES", 1)
	if cfg.MinCandles < 1 {
		errs = append(errs, "MIN_CANDLES must be at least 1")
	}

	// Candles
	timeframeSeconds := getEnvAsInt("SIGNAL_TIMEFRAME_SECONDS", 60)
	if timeframeSeconds <= 0 {
		errs = append(errs, "SIGNAL_TIMEFRAME_SECONDS must be positive")
	}
	cfg.SignalTimeframe = time.Duration(timeframeSeconds) * time.Second

	cfg.HistoryCandles = getEnvAsInt("HISTORY_CANDLES", 500)
	if cfg.HistoryCandles < 0 {
		errs = append(errs, "HISTORY_CANDLES cannot be negative")
	}
	cfg.MaxCandleBuckets = getEnvAsInt("MAX_CANDLE_BUCKETS", 1500)
	if cfg.MaxCandleBuckets <= 0 {
		errs = append(errs, "MAX_CANDLE_BUCKETS must be positive")
	}

	// Execution
	cfg.PaperInitialBalance, err = getEnvAsFloatRequired("PAPER_INITIAL_BALANCE", 10000)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PAPER_INITIAL_BALANCE: %v", err))
	} else if cfg.PaperInitialBalance <= 0 {
		errs = append(errs, "PAPER_INITIAL_BALANCE must be positive")
	}

	cfg.QuantityPrecision = getEnvAsInt("QUANTITY_PRECISION", 3)
	if cfg.QuantityPrecision < 0 || cfg.QuantityPrecision > 8 {
		errs = append(errs, "QUANTITY_PRECISION must be between 0 and 8")
	}

	timeoutSeconds := getEnvAsInt("EXECUTION_TIMEOUT_SECONDS", 10)
	if timeoutSeconds <= 0 {
		errs = append(errs, "EXECUTION_TIMEOUT_SECONDS must be positive")
	}
	cfg.ExecutionTimeout = time.Duration(timeoutSeconds) * time.Second
	cfg.CloseOnShutdown = getEnvAsBool("CLOSE_ON_SHUTDOWN", false)

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/trading_bot.db")

	// Cache
	cfg.RedisAddr = getEnv("REDIS_ADDR", "")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB = getEnvAsInt("REDIS_DB", 0)
	cfg.CacheTTL = time.Duration(getEnvAsInt("CACHE_TTL_SECONDS", 300)) * time.Second

	// Ops HTTP. An explicitly empty HTTP_ADDR disables the server.
	if v, ok := os.LookupEnv("HTTP_ADDR"); ok {
		cfg.HTTPAddr = v
	} else {
		cfg.HTTPAddr = ":8080"
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFile = getEnv("LOG_FILE", "")
	cfg.LogMaxSizeMB = getEnvAsInt("LOG_MAX_SIZE_MB", 50)
	cfg.LogMaxBackups = getEnvAsInt("LOG_MAX_BACKUPS", 5)

	// Connection Settings
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 1)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts <= 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS must be positive")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// parseSymbols splits a comma list, upper-cases and de-duplicates it.
func parseSymbols(raw string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
