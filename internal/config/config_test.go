package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REFRESH_INTERVAL", "45s")
	t.Setenv("FALLBACK_BALANCE", "1000.5")
	t.Setenv("REDIS_ENABLED", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Dashboard.RefreshInterval)
	assert.Equal(t, 1000.5, cfg.Dashboard.FallbackBalance)
	assert.True(t, cfg.Redis.Enabled)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "live", cfg.Dashboard.DataSource)
	assert.Equal(t, 30*time.Second, cfg.Dashboard.RefreshInterval)
	assert.Equal(t, 5*time.Second, cfg.Dashboard.DebounceWindow)
	assert.Equal(t, 20, cfg.Dashboard.HistoryPageSize)
	assert.Equal(t, 50, cfg.Dashboard.TradeCap)
	assert.Equal(t, 37500.0, cfg.Dashboard.FallbackBalance)
	assert.Equal(t, int32(6), cfg.Chain.TokenDecimals)
	assert.Equal(t, uint64(1), cfg.Chain.CollateralIndex)
	assert.Len(t, cfg.Dashboard.Wallets, 4)
	assert.Len(t, cfg.Dashboard.Pairs, 6)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_FileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashboard.toml")
	content := `
[[wallets]]
id = "C"
type = "Scalper"
address = "0x0000000000000000000000000000000000000001"

[[pairs]]
name = "ARB/USD"
index = 41
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("DASHBOARD_CONFIG_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Len(t, cfg.Dashboard.Wallets, 1)
	assert.Equal(t, "C", cfg.Dashboard.Wallets[0].ID)
	assert.Equal(t, "Scalper", cfg.Dashboard.Wallets[0].StrategyType)
	require.Len(t, cfg.Dashboard.Pairs, 1)
	assert.Equal(t, uint64(41), cfg.Dashboard.Pairs[0].Index)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Setenv("DASHBOARD_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "unknown data source",
			mutate:  func(c *Config) { c.Dashboard.DataSource = "csv" },
			wantErr: "DATA_SOURCE",
		},
		{
			name:    "bad token address",
			mutate:  func(c *Config) { c.Chain.TokenAddress = "0x1234" },
			wantErr: "token address",
		},
		{
			name: "bad token address ignored for mock",
			mutate: func(c *Config) {
				c.Dashboard.DataSource = "mock"
				c.Chain.TokenAddress = "0x1234"
			},
		},
		{
			name:    "duplicate strategy id",
			mutate:  func(c *Config) { c.Dashboard.Wallets[1].ID = "A" },
			wantErr: "duplicate strategy id",
		},
		{
			name:    "strategy id outside the known set",
			mutate:  func(c *Config) { c.Dashboard.Wallets[0].ID = "W1" },
			wantErr: "unknown strategy id \"W1\"",
		},
		{
			name: "subset of the known ids",
			mutate: func(c *Config) {
				c.Dashboard.Wallets = c.Dashboard.Wallets[2:]
			},
		},
		{
			name:    "bad wallet address",
			mutate:  func(c *Config) { c.Dashboard.Wallets[0].Address = "nope" },
			wantErr: "invalid address for strategy A",
		},
		{
			name:    "no wallets",
			mutate:  func(c *Config) { c.Dashboard.Wallets = nil },
			wantErr: "at least one strategy wallet",
		},
		{
			name:    "zero consecutive fail threshold",
			mutate:  func(c *Config) { c.Chain.MaxConsecutiveFails = 0 },
			wantErr: "CHAIN_MAX_CONSECUTIVE_FAILS",
		},
		{
			name:    "success rate above one",
			mutate:  func(c *Config) { c.Chain.MinSuccessRate = 1.5 },
			wantErr: "CHAIN_MIN_SUCCESS_RATE",
		},
		{
			name:    "zero trade cap",
			mutate:  func(c *Config) { c.Dashboard.TradeCap = 0 },
			wantErr: "TRADE_CAP",
		},
		{
			name:    "zero refresh interval",
			mutate:  func(c *Config) { c.Dashboard.RefreshInterval = 0 },
			wantErr: "REFRESH_INTERVAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig()
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue int
		want         int
	}{
		{name: "returns integer when valid", envValue: "200", defaultValue: 100, want: 200},
		{name: "returns default when invalid", envValue: "invalid", defaultValue: 100, want: 100},
		{name: "returns default when not set", envValue: "", defaultValue: 100, want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT", tt.envValue)
			assert.Equal(t, tt.want, getEnvAsInt("TEST_INT", tt.defaultValue))
		})
	}
}

func TestGetEnvAsFloatAndBool(t *testing.T) {
	t.Setenv("TEST_FLOAT", "2.5")
	t.Setenv("TEST_FLOAT_BAD", "x")
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_BOOL_BAD", "maybe")

	assert.Equal(t, 2.5, getEnvAsFloat("TEST_FLOAT", 1))
	assert.Equal(t, 1.0, getEnvAsFloat("TEST_FLOAT_BAD", 1))
	assert.True(t, getEnvAsBool("TEST_BOOL", false))
	assert.False(t, getEnvAsBool("TEST_BOOL_BAD", false))
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue time.Duration
		want         time.Duration
	}{
		{name: "returns duration when valid", envValue: "30s", defaultValue: 10 * time.Second, want: 30 * time.Second},
		{name: "returns default when invalid", envValue: "invalid", defaultValue: 10 * time.Second, want: 10 * time.Second},
		{name: "returns default when not set", envValue: "", defaultValue: 10 * time.Second, want: 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.envValue)
			assert.Equal(t, tt.want, getEnvAsDuration("TEST_DURATION", tt.defaultValue))
		})
	}
}

func TestGetEnvAsList(t *testing.T) {
	t.Setenv("TEST_LIST", " https://a.example , ,https://b.example")
	t.Setenv("TEST_LIST_BLANK", " , ")

	assert.Equal(t, []string{"https://a.example", "https://b.example"}, getEnvAsList("TEST_LIST", nil))
	assert.Equal(t, []string{"*"}, getEnvAsList("TEST_LIST_BLANK", []string{"*"}))
	assert.Equal(t, []string{"*"}, getEnvAsList("TEST_LIST_UNSET", []string{"*"}))
}
