// Package config provides configuration management for the gTrade dashboard.
// It loads configuration from environment variables and .env files, with an
// optional TOML file overriding the wallet and pair tables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gtrade-dashboard/internal/types"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Chain     ChainConfig
	Dashboard DashboardConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           string
	Host           string
	AllowedOrigins []string
}

// ChainConfig holds the RPC endpoint and the contracts read from it
type ChainConfig struct {
	Name            string
	RPCURL          string
	TokenAddress    string
	TokenDecimals   int32
	DiamondAddress  string
	CollateralIndex uint64
	RequestTimeout  time.Duration
	CallsPerSecond  float64
	CallBurst       int

	MaxConsecutiveFails int
	MinSuccessRate      float64
}

// DashboardConfig holds the aggregation and refresh settings
type DashboardConfig struct {
	DataSource      string // "live" or "mock"
	RefreshInterval time.Duration
	DebounceWindow  time.Duration
	HistoryPageSize int
	TradeCap        int
	PnLRetention    int
	FallbackBalance float64
	InitialFunding  float64
	Wallets         []types.StrategyWallet
	Pairs           []types.TrackedPair
}

// RedisConfig holds Redis configuration for the snapshot mirror
type RedisConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
	SnapshotTTL    time.Duration
}

// RateLimitConfig holds API rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// fileOverlay is the shape of the optional TOML file
type fileOverlay struct {
	Wallets []types.StrategyWallet `toml:"wallets"`
	Pairs   []types.TrackedPair    `toml:"pairs"`
}

// DefaultWallets returns the four strategy wallets of the default deployment
func DefaultWallets() []types.StrategyWallet {
	return []types.StrategyWallet{
		{ID: "A", StrategyType: "Mean Reversion", Address: "0xc9DB0FaddED889f7EADeBD56ddf6e0594058F076"},
		{ID: "B", StrategyType: "Funding Arb", Address: "0x6399961f8CaFAA1c784f3211A069aBe284276729"},
		{ID: "C", StrategyType: "Momentum", Address: "0x44Dfb735b11F5E1625fcAF365C24D8e1c3e63903"},
		{ID: "D", StrategyType: "Hybrid", Address: "0xED07C6487A188ad4bfa9f6317104Caa76fBEBC32"},
	}
}

// DefaultPairs returns the pairs whose borrowing fees are tracked
func DefaultPairs() []types.TrackedPair {
	return []types.TrackedPair{
		{Name: "BTC/USD", Index: 0},
		{Name: "ETH/USD", Index: 1},
		{Name: "LINK/USD", Index: 2},
		{Name: "DOGE/USD", Index: 4},
		{Name: "MATIC/USD", Index: 5},
		{Name: "SOL/USD", Index: 32},
	}
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Chain: ChainConfig{
			Name:            getEnv("CHAIN_NAME", "arbitrum-sepolia"),
			RPCURL:          getEnv("CHAIN_RPC_URL", "https://sepolia-rollup.arbitrum.io/rpc"),
			TokenAddress:    getEnv("CHAIN_TOKEN_ADDRESS", "0x4cC7EbEeD5EA3adf3978F19833d2E1f3e8980cD6"),
			TokenDecimals:   int32(getEnvAsInt("CHAIN_TOKEN_DECIMALS", 6)),
			DiamondAddress:  getEnv("CHAIN_DIAMOND_ADDRESS", "0xd659a15812064C79E189fd950A189b15c75d3186"),
			CollateralIndex: uint64(getEnvAsInt("CHAIN_COLLATERAL_INDEX", 1)),
			RequestTimeout:  getEnvAsDuration("CHAIN_REQUEST_TIMEOUT", 10*time.Second),
			CallsPerSecond:  getEnvAsFloat("CHAIN_CALLS_PER_SECOND", 20),
			CallBurst:       getEnvAsInt("CHAIN_CALL_BURST", 10),

			MaxConsecutiveFails: getEnvAsInt("CHAIN_MAX_CONSECUTIVE_FAILS", 5),
			MinSuccessRate:      getEnvAsFloat("CHAIN_MIN_SUCCESS_RATE", 0.5),
		},
		Dashboard: DashboardConfig{
			DataSource:      getEnv("DATA_SOURCE", "live"),
			RefreshInterval: getEnvAsDuration("REFRESH_INTERVAL", 30*time.Second),
			DebounceWindow:  getEnvAsDuration("REFRESH_DEBOUNCE", 5*time.Second),
			HistoryPageSize: getEnvAsInt("HISTORY_PAGE_SIZE", 20),
			TradeCap:        getEnvAsInt("TRADE_CAP", 50),
			PnLRetention:    getEnvAsInt("PNL_RETENTION_DAYS", 90),
			FallbackBalance: getEnvAsFloat("FALLBACK_BALANCE", 37500),
			InitialFunding:  getEnvAsFloat("INITIAL_FUNDING", 37500),
			Wallets:         DefaultWallets(),
			Pairs:           DefaultPairs(),
		},
		Redis: RedisConfig{
			Enabled:        getEnvAsBool("REDIS_ENABLED", false),
			Host:           getEnv("REDIS_HOST", "localhost"),
			Port:           getEnv("REDIS_PORT", "6379"),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getEnvAsInt("REDIS_DB", 0),
			MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 10),
			SnapshotTTL:    getEnvAsDuration("REDIS_SNAPSHOT_TTL", 90*time.Second),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsInt("RATE_LIMIT_RPS", 20),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 40),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if path := getEnv("DASHBOARD_CONFIG_FILE", ""); path != "" {
		if err := config.applyFile(path); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// applyFile replaces the wallet and pair tables with those found in a TOML file.
// Tables absent from the file keep their defaults.
func (c *Config) applyFile(path string) error {
	var overlay fileOverlay
	if _, err := toml.DecodeFile(path, &overlay); err != nil {
		return fmt.Errorf("error loading config file %s: %w", path, err)
	}

	if len(overlay.Wallets) > 0 {
		c.Dashboard.Wallets = overlay.Wallets
	}
	if len(overlay.Pairs) > 0 {
		c.Dashboard.Pairs = overlay.Pairs
	}
	return nil
}

// Validate checks the configuration for values the dashboard cannot run with
func (c *Config) Validate() error {
	if c.Dashboard.DataSource != "live" && c.Dashboard.DataSource != "mock" {
		return fmt.Errorf("DATA_SOURCE must be live or mock, got %q", c.Dashboard.DataSource)
	}
	if c.Dashboard.DataSource == "live" {
		if c.Chain.RPCURL == "" {
			return fmt.Errorf("CHAIN_RPC_URL is required for the live data source")
		}
		if !common.IsHexAddress(c.Chain.TokenAddress) {
			return fmt.Errorf("invalid token address: %s", c.Chain.TokenAddress)
		}
		if !common.IsHexAddress(c.Chain.DiamondAddress) {
			return fmt.Errorf("invalid diamond address: %s", c.Chain.DiamondAddress)
		}
	}

	if len(c.Dashboard.Wallets) == 0 {
		return fmt.Errorf("at least one strategy wallet is required")
	}
	seen := make(map[string]bool, len(c.Dashboard.Wallets))
	for _, w := range c.Dashboard.Wallets {
		if w.ID == "" {
			return fmt.Errorf("strategy wallet %s has no id", w.Address)
		}
		if !types.IsStrategyID(w.ID) {
			return fmt.Errorf("unknown strategy id %q for wallet %s, expected one of %v", w.ID, w.Address, types.StrategyIDs)
		}
		if seen[w.ID] {
			return fmt.Errorf("duplicate strategy id: %s", w.ID)
		}
		seen[w.ID] = true
		if !common.IsHexAddress(w.Address) {
			return fmt.Errorf("invalid address for strategy %s: %s", w.ID, w.Address)
		}
	}

	if c.Chain.MaxConsecutiveFails <= 0 {
		return fmt.Errorf("CHAIN_MAX_CONSECUTIVE_FAILS must be positive")
	}
	if c.Chain.MinSuccessRate <= 0 || c.Chain.MinSuccessRate > 1 {
		return fmt.Errorf("CHAIN_MIN_SUCCESS_RATE must be in (0, 1]")
	}

	if c.Dashboard.RefreshInterval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL must be positive")
	}
	if c.Dashboard.DebounceWindow < 0 {
		return fmt.Errorf("REFRESH_DEBOUNCE cannot be negative")
	}
	if c.Dashboard.TradeCap <= 0 {
		return fmt.Errorf("TRADE_CAP must be positive")
	}
	if c.Dashboard.HistoryPageSize <= 0 {
		return fmt.Errorf("HISTORY_PAGE_SIZE must be positive")
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a bool with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated environment variable, dropping empty items
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
