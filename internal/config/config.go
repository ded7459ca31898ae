// Package config provides configuration management for the grid bot.
//
// Configuration is loaded from environment variables (.env file) with
// sensible defaults. There is no settings database in this build: the
// effective configuration is resolved once at startup and handed to every
// component as an immutable snapshot.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// OperationMode selects whether the exchange adapter talks to a sandbox
// (shadow) or moves real funds (production).
type OperationMode string

const (
	ModeShadow     OperationMode = "shadow"
	ModeProduction OperationMode = "production"
)

// MarketAllocation splits trading capital between spot and derivatives.
type MarketAllocation struct {
	SpotPercentage        float64
	DerivativesPercentage float64
}

// GridConfig controls ladder construction and spacing.
type GridConfig struct {
	InitialLevels          int
	MinLevels              int
	MaxLevels              int
	InitialSpacingFraction float64
	UseDynamicSpacing      bool
	ATRPeriod              int
	ATRMultiplier          float64
	TrailingStopEnabled    bool
	MinSpacingFraction     float64
	RecenterThresholdLevels float64
	TPFraction             float64
	SLFraction             float64
	CancelBudgetPerCycle   int
	PlaceBudgetPerCycle    int
	MaxConsecutiveFailures int
}

// RiskConfig bounds portfolio-level risk exposure.
type RiskConfig struct {
	MaxPortfolioVaR        float64
	MaxSingleAssetWeight   float64
	MaxCorrelationExposure float64
	AlertCooldownMinutes   int
}

// SentimentConfig controls the sentiment aggregator cadence and weighting.
type SentimentConfig struct {
	Enabled             bool
	FetchIntervalMin    int
	SmoothingWindow     int
	SourceWeights       map[string]float64
	AlertThresholdLow   float64
	AlertThresholdHigh  float64
	FeedURLs            map[string]string // source name -> news/social feed JSON endpoint
	FeedTimeoutSeconds  int
}

// SelectorConfig controls the pair selector's candidate universe, filters,
// and composite scoring weights.
type SelectorConfig struct {
	PreferredSymbols      []string
	MinQuoteVolume24h     float64
	MinPrice              float64
	MaxSpreadFraction     float64
	MaxPerVenue           int
	ReselectIntervalHours int
	WeightVolume          float64
	WeightPriceChange     float64
	WeightADX             float64
	WeightSentiment       float64
}

// RetrainConfig controls when a worker requests model/parameter retraining.
type RetrainConfig struct {
	TradeThreshold int
}

// SupervisorConfig bounds the worker crash-restart policy.
type SupervisorConfig struct {
	RestartBackoffSeconds     int
	PermanentHaltWindowSeconds int
	ShutdownGraceSeconds      int
}

// CyclesConfig controls the cadence of the main loops.
type CyclesConfig struct {
	WorkerInterval      time.Duration
	CoordinatorInterval time.Duration
	RiskInterval        time.Duration
	CacheTTLTicker      time.Duration
	CacheTTLKlines      time.Duration
	CacheTTLBalances    time.Duration
}

// OverridePrecedence resolves the tie between a manually configured venue
// and the capital manager's own rebalancing recommendation.
type OverridePrecedence string

const (
	ManualWins     OverridePrecedence = "manual_wins"
	RebalanceWins  OverridePrecedence = "rebalance_wins"
)

// AllocationConfig controls capital-manager behavior.
type AllocationConfig struct {
	OverridePrecedence   OverridePrecedence
	TransferFloorUSD     float64
}

// Config holds the effective, resolved application configuration.
type Config struct {
	DataDir              string
	OperationMode        OperationMode
	MaxConcurrentPairs   int
	MinCapitalPerPairUSD float64
	SafetyBufferFraction float64
	MarketAllocation     MarketAllocation
	Allocation           AllocationConfig
	Grid                 GridConfig
	Risk                 RiskConfig
	Sentiment            SentimentConfig
	Selector             SelectorConfig
	Retrain              RetrainConfig
	Supervisor           SupervisorConfig
	Cycles               CyclesConfig

	ExchangeAPIKey    string
	ExchangeAPISecret string

	LogLevel string
	HTTPPort int
	DevMode  bool

	Backup BackupConfig
}

// BackupConfig controls off-box backup of the persisted grid state.
type BackupConfig struct {
	Enabled         bool
	Bucket          string
	Prefix          string
	Endpoint        string
	Region          string
	RetentionDays   int
	IntervalMinutes int
}

// Load reads configuration from the environment, applying defaults for
// anything unset, and validates the result.
//
// dataDirOverride, when provided and non-empty, takes priority over the
// GRIDBOT_DATA_DIR environment variable.
func Load(dataDirOverride ...string) (*Config, error) {
	_ = godotenv.Load()

	var dataDir string
	if len(dataDirOverride) > 0 && dataDirOverride[0] != "" {
		dataDir = dataDirOverride[0]
	} else {
		dataDir = getEnv("GRIDBOT_DATA_DIR", "")
		if dataDir == "" {
			dataDir = "./data"
		}
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data directory: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:              absDataDir,
		OperationMode:        OperationMode(getEnv("OPERATION_MODE", string(ModeShadow))),
		MaxConcurrentPairs:   getEnvAsInt("MAX_CONCURRENT_PAIRS", 5),
		MinCapitalPerPairUSD: getEnvAsFloat("MIN_CAPITAL_PER_PAIR_USD", 5.0),
		SafetyBufferFraction: getEnvAsFloat("SAFETY_BUFFER_FRACTION", 0.1),
		MarketAllocation: MarketAllocation{
			SpotPercentage:        getEnvAsFloat("SPOT_PERCENTAGE", 70.0),
			DerivativesPercentage: getEnvAsFloat("DERIVATIVES_PERCENTAGE", 30.0),
		},
		Allocation: AllocationConfig{
			OverridePrecedence: OverridePrecedence(getEnv("ALLOCATION_OVERRIDE_PRECEDENCE", string(ManualWins))),
			TransferFloorUSD:   getEnvAsFloat("ALLOCATION_TRANSFER_FLOOR_USD", 100.0),
		},
		Grid: GridConfig{
			InitialLevels:          getEnvAsInt("GRID_INITIAL_LEVELS", 10),
			MinLevels:              getEnvAsInt("GRID_MIN_LEVELS", 4),
			MaxLevels:              getEnvAsInt("GRID_MAX_LEVELS", 30),
			InitialSpacingFraction: getEnvAsFloat("GRID_INITIAL_SPACING_FRACTION", 0.005),
			UseDynamicSpacing:      getEnvAsBool("GRID_USE_DYNAMIC_SPACING", true),
			ATRPeriod:              getEnvAsInt("GRID_ATR_PERIOD", 14),
			ATRMultiplier:          getEnvAsFloat("GRID_ATR_MULTIPLIER", 1.5),
			TrailingStopEnabled:    getEnvAsBool("GRID_TRAILING_STOP_ENABLED", false),
			MinSpacingFraction:     getEnvAsFloat("GRID_MIN_SPACING_FRACTION", 0.001),
			RecenterThresholdLevels: getEnvAsFloat("GRID_RECENTER_THRESHOLD_LEVELS", 2.0),
			TPFraction:             getEnvAsFloat("GRID_TP_FRACTION", 0.03),
			SLFraction:             getEnvAsFloat("GRID_SL_FRACTION", 0.05),
			CancelBudgetPerCycle:   getEnvAsInt("GRID_CANCEL_BUDGET_PER_CYCLE", 10),
			PlaceBudgetPerCycle:    getEnvAsInt("GRID_PLACE_BUDGET_PER_CYCLE", 10),
			MaxConsecutiveFailures: getEnvAsInt("GRID_MAX_CONSECUTIVE_FAILURES", 5),
		},
		Risk: RiskConfig{
			MaxPortfolioVaR:        getEnvAsFloat("RISK_MAX_PORTFOLIO_VAR", 0.05),
			MaxSingleAssetWeight:   getEnvAsFloat("RISK_MAX_SINGLE_ASSET_WEIGHT", 0.35),
			MaxCorrelationExposure: getEnvAsFloat("RISK_MAX_CORRELATION_EXPOSURE", 0.7),
			AlertCooldownMinutes:   getEnvAsInt("RISK_ALERT_COOLDOWN_MINUTES", 30),
		},
		Sentiment: SentimentConfig{
			Enabled:            getEnvAsBool("SENTIMENT_ENABLED", true),
			FetchIntervalMin:   getEnvAsInt("SENTIMENT_FETCH_INTERVAL_MINUTES", 15),
			SmoothingWindow:    getEnvAsInt("SENTIMENT_SMOOTHING_WINDOW", 5),
			SourceWeights:      parseWeights(getEnv("SENTIMENT_SOURCE_WEIGHTS", "news:0.5,social:0.3,onchain:0.2")),
			AlertThresholdLow:  getEnvAsFloat("SENTIMENT_ALERT_THRESHOLD_LOW", -0.6),
			AlertThresholdHigh: getEnvAsFloat("SENTIMENT_ALERT_THRESHOLD_HIGH", 0.6),
			FeedURLs:           parseNamedURLs(getEnv("SENTIMENT_FEED_URLS", "")),
			FeedTimeoutSeconds: getEnvAsInt("SENTIMENT_FEED_TIMEOUT_SECONDS", 10),
		},
		Selector: SelectorConfig{
			PreferredSymbols:      splitList(getEnv("SELECTOR_PREFERRED_SYMBOLS", "BTCUSDT,ETHUSDT")),
			MinQuoteVolume24h:     getEnvAsFloat("SELECTOR_MIN_QUOTE_VOLUME_24H", 1_000_000),
			MinPrice:              getEnvAsFloat("SELECTOR_MIN_PRICE", 0.001),
			MaxSpreadFraction:     getEnvAsFloat("SELECTOR_MAX_SPREAD_FRACTION", 0.01),
			MaxPerVenue:           getEnvAsInt("SELECTOR_MAX_PER_VENUE", 3),
			ReselectIntervalHours: getEnvAsInt("SELECTOR_RESELECT_INTERVAL_HOURS", 6),
			WeightVolume:          getEnvAsFloat("SELECTOR_WEIGHT_VOLUME", 0.4),
			WeightPriceChange:     getEnvAsFloat("SELECTOR_WEIGHT_PRICE_CHANGE", 0.2),
			WeightADX:             getEnvAsFloat("SELECTOR_WEIGHT_ADX", 0.3),
			WeightSentiment:       getEnvAsFloat("SELECTOR_WEIGHT_SENTIMENT", 0.1),
		},
		Retrain: RetrainConfig{
			TradeThreshold: getEnvAsInt("RETRAIN_TRADE_THRESHOLD", 200),
		},
		Supervisor: SupervisorConfig{
			RestartBackoffSeconds:      getEnvAsInt("SUPERVISOR_RESTART_BACKOFF_SECONDS", 5),
			PermanentHaltWindowSeconds: getEnvAsInt("SUPERVISOR_PERMANENT_HALT_WINDOW_SECONDS", 60),
			ShutdownGraceSeconds:       getEnvAsInt("SUPERVISOR_SHUTDOWN_GRACE_SECONDS", 10),
		},
		Cycles: CyclesConfig{
			WorkerInterval:      time.Duration(getEnvAsInt("CYCLE_WORKER_INTERVAL_SECONDS", 10)) * time.Second,
			CoordinatorInterval: time.Duration(getEnvAsInt("CYCLE_COORDINATOR_INTERVAL_SECONDS", 60)) * time.Second,
			RiskInterval:        time.Duration(getEnvAsInt("CYCLE_RISK_INTERVAL_SECONDS", 120)) * time.Second,
			CacheTTLTicker:      time.Duration(getEnvAsInt("CACHE_TTL_TICKER_SECONDS", 5)) * time.Second,
			CacheTTLKlines:      time.Duration(getEnvAsInt("CACHE_TTL_KLINES_SECONDS", 60)) * time.Second,
			CacheTTLBalances:    time.Duration(getEnvAsInt("CACHE_TTL_BALANCES_SECONDS", 30)) * time.Second,
		},
		ExchangeAPIKey:    getEnv("EXCHANGE_API_KEY", ""),
		ExchangeAPISecret: getEnv("EXCHANGE_API_SECRET", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		HTTPPort:          getEnvAsInt("HTTP_PORT", 8001),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		Backup: BackupConfig{
			Enabled:         getEnvAsBool("BACKUP_ENABLED", false),
			Bucket:          getEnv("BACKUP_BUCKET", ""),
			Prefix:          getEnv("BACKUP_PREFIX", "gridbot-backup"),
			Endpoint:        getEnv("BACKUP_ENDPOINT", ""),
			Region:          getEnv("BACKUP_REGION", "auto"),
			RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 14),
			IntervalMinutes: getEnvAsInt("BACKUP_INTERVAL_MINUTES", 1440),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks invariants that must hold before the supervisor starts.
// A configuration error here is fatal: the supervisor refuses to start.
func (c *Config) Validate() error {
	if c.OperationMode != ModeShadow && c.OperationMode != ModeProduction {
		return fmt.Errorf("operation_mode must be %q or %q, got %q", ModeShadow, ModeProduction, c.OperationMode)
	}
	if c.OperationMode == ModeProduction && (c.ExchangeAPIKey == "" || c.ExchangeAPISecret == "") {
		return fmt.Errorf("production mode requires EXCHANGE_API_KEY and EXCHANGE_API_SECRET")
	}
	if c.MaxConcurrentPairs <= 0 {
		return fmt.Errorf("max_concurrent_pairs must be positive")
	}
	sum := c.MarketAllocation.SpotPercentage + c.MarketAllocation.DerivativesPercentage
	if sum < 99.9 || sum > 100.1 {
		return fmt.Errorf("market_allocation percentages must sum to 100, got %.2f", sum)
	}
	if c.Grid.MinLevels > c.Grid.MaxLevels {
		return fmt.Errorf("grid.min_levels (%d) cannot exceed grid.max_levels (%d)", c.Grid.MinLevels, c.Grid.MaxLevels)
	}
	if c.Grid.InitialLevels < c.Grid.MinLevels || c.Grid.InitialLevels > c.Grid.MaxLevels {
		return fmt.Errorf("grid.initial_levels (%d) must be within [min_levels, max_levels]", c.Grid.InitialLevels)
	}
	if c.Allocation.OverridePrecedence != ManualWins && c.Allocation.OverridePrecedence != RebalanceWins {
		return fmt.Errorf("allocation override_precedence must be %q or %q", ManualWins, RebalanceWins)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseWeights(raw string) map[string]float64 {
	weights := make(map[string]float64)
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			continue
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err == nil {
			weights[strings.TrimSpace(parts[0])] = v
		}
	}
	return weights
}

func parseNamedURLs(raw string) map[string]string {
	urls := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			continue
		}
		if name, url := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]); name != "" && url != "" {
			urls[name] = url
		}
	}
	return urls
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
