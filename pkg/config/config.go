package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration of the rebalancer daemon.
// Resolution order for every field: environment variable > config file >
// built-in default. Wallet credentials are fatal when missing.
type Config struct {
	Wallet    WalletConfig
	Rebalance RebalanceConfig
	Ledger    EndpointConfig
	Recommend EndpointConfig
	History   HistoryConfig
	Metrics   MetricsConfig
	Log       LogConfig
}

// WalletConfig identifies the account the engine manages.
type WalletConfig struct {
	Address string
	// SecretStorePath optionally points at a badger secret store holding
	// the ledger API credential under key "ledger_api_key". When empty the
	// credential comes from LEDGER_API_KEY.
	SecretStorePath string
	APIKey          string
}

// RebalanceConfig carries every tunable of the engine. Defaults follow
// the production deployment.
type RebalanceConfig struct {
	Enabled             bool
	DryRun              bool
	Interval            time.Duration
	SettleDelay         time.Duration
	MaxActiveVaults     int
	HighPct             float64
	LowPct              float64
	TakeProfitRoePct    float64
	MinExitRoePct       float64
	MinDepositUsd       float64
	DustThresholdUsd    float64
	WithdrawBufferBps   float64
	ReassignEmptyBucket bool
}

type EndpointConfig struct {
	BaseURL string
	Timeout time.Duration
}

type HistoryConfig struct {
	DBPath string
}

type MetricsConfig struct {
	// Listen is the debug/metrics listen address (e.g. "127.0.0.1:6061").
	// Empty disables the listener.
	Listen string
}

type LogConfig struct {
	Level string
	File  string
}

type fileConfig struct {
	Wallet struct {
		Address         string `yaml:"address"`
		SecretStorePath string `yaml:"secret_store_path"`
	} `yaml:"wallet"`
	Rebalance struct {
		Enabled             *bool    `yaml:"enabled"`
		DryRun              *bool    `yaml:"dry_run"`
		Interval            string   `yaml:"interval"`
		SettleDelay         string   `yaml:"settle_delay"`
		MaxActiveVaults     *int     `yaml:"max_active_vaults"`
		HighPct             *float64 `yaml:"high_pct"`
		LowPct              *float64 `yaml:"low_pct"`
		TakeProfitRoePct    *float64 `yaml:"take_profit_roe_pct"`
		MinExitRoePct       *float64 `yaml:"min_exit_roe_pct"`
		MinDepositUsd       *float64 `yaml:"min_deposit_usd"`
		DustThresholdUsd    *float64 `yaml:"dust_threshold_usd"`
		WithdrawBufferBps   *float64 `yaml:"withdraw_buffer_bps"`
		ReassignEmptyBucket *bool    `yaml:"reassign_empty_bucket"`
	} `yaml:"rebalance"`
	Ledger struct {
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"ledger"`
	Recommend struct {
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"recommend"`
	History struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"history"`
	Metrics struct {
		Listen string `yaml:"listen"`
	} `yaml:"metrics"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
}

// Load reads configuration from the optional YAML file at path plus the
// environment. A `.env` file in the working directory is honored when
// present.
func Load(path string) (*Config, error) {
	// Best effort: a missing .env is the normal case in production.
	_ = godotenv.Load()

	var fc fileConfig
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		Wallet: WalletConfig{
			Address:         envStr("WALLET_ADDRESS", fc.Wallet.Address),
			SecretStorePath: envStr("SECRET_STORE_PATH", fc.Wallet.SecretStorePath),
			APIKey:          envStr("LEDGER_API_KEY", ""),
		},
		Rebalance: RebalanceConfig{
			Enabled:             envBool("REBALANCE_ENABLED", fc.Rebalance.Enabled, true),
			DryRun:              envBool("REBALANCE_DRY_RUN", fc.Rebalance.DryRun, true),
			Interval:            envDuration("REBALANCE_INTERVAL", fc.Rebalance.Interval, 48*time.Hour),
			SettleDelay:         envDuration("REBALANCE_SETTLE_DELAY", fc.Rebalance.SettleDelay, 60*time.Second),
			MaxActiveVaults:     envInt("REBALANCE_MAX_ACTIVE_VAULTS", fc.Rebalance.MaxActiveVaults, 10),
			HighPct:             envFloat("REBALANCE_HIGH_PCT", fc.Rebalance.HighPct, 70),
			LowPct:              envFloat("REBALANCE_LOW_PCT", fc.Rebalance.LowPct, 30),
			TakeProfitRoePct:    envFloat("REBALANCE_TAKE_PROFIT_ROE_PCT", fc.Rebalance.TakeProfitRoePct, 10),
			MinExitRoePct:       envFloat("REBALANCE_MIN_EXIT_ROE_PCT", fc.Rebalance.MinExitRoePct, 2),
			MinDepositUsd:       envFloat("REBALANCE_MIN_DEPOSIT_USD", fc.Rebalance.MinDepositUsd, 5),
			DustThresholdUsd:    envFloat("REBALANCE_DUST_THRESHOLD_USD", fc.Rebalance.DustThresholdUsd, 1),
			WithdrawBufferBps:   envFloat("REBALANCE_WITHDRAW_BUFFER_BPS", fc.Rebalance.WithdrawBufferBps, 10),
			ReassignEmptyBucket: envBool("REBALANCE_REASSIGN_EMPTY_BUCKET", fc.Rebalance.ReassignEmptyBucket, true),
		},
		Ledger: EndpointConfig{
			BaseURL: envStr("LEDGER_BASE_URL", fc.Ledger.BaseURL),
			Timeout: envDuration("LEDGER_TIMEOUT", fc.Ledger.Timeout, 30*time.Second),
		},
		Recommend: EndpointConfig{
			BaseURL: envStr("RECOMMENDER_BASE_URL", fc.Recommend.BaseURL),
			Timeout: envDuration("RECOMMENDER_TIMEOUT", fc.Recommend.Timeout, 60*time.Second),
		},
		History: HistoryConfig{
			DBPath: envStrDefault("HISTORY_DB_PATH", fc.History.DBPath, "data/rounds.db"),
		},
		Metrics: MetricsConfig{
			Listen: envStr("METRICS_LISTEN", fc.Metrics.Listen),
		},
		Log: LogConfig{
			Level: envStrDefault("LOG_LEVEL", fc.Log.Level, "info"),
			File:  envStr("LOG_FILE", fc.Log.File),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate enforces the configuration-fatal conditions. Everything else
// degrades gracefully at runtime.
func (c *Config) validate() error {
	if strings.TrimSpace(c.Wallet.Address) == "" {
		return fmt.Errorf("config: WALLET_ADDRESS is required")
	}
	if strings.TrimSpace(c.Ledger.BaseURL) == "" {
		return fmt.Errorf("config: LEDGER_BASE_URL is required")
	}
	if strings.TrimSpace(c.Recommend.BaseURL) == "" {
		return fmt.Errorf("config: RECOMMENDER_BASE_URL is required")
	}
	if c.Rebalance.HighPct < 0 || c.Rebalance.LowPct < 0 {
		return fmt.Errorf("config: allocation percentages must be non-negative")
	}
	return nil
}

func envStr(key, fileVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return strings.TrimSpace(fileVal)
}

func envStrDefault(key, fileVal, def string) string {
	if v := envStr(key, fileVal); v != "" {
		return v
	}
	return def
}

func envBool(key string, fileVal *bool, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	if fileVal != nil {
		return *fileVal
	}
	return def
}

func envInt(key string, fileVal *int, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	if fileVal != nil {
		return *fileVal
	}
	return def
}

func envFloat(key string, fileVal *float64, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	if fileVal != nil {
		return *fileVal
	}
	return def
}

// envDuration accepts Go duration strings ("48h", "60s"). A bare number
// is treated as milliseconds for compatibility with older deployments.
func envDuration(key, fileVal string, def time.Duration) time.Duration {
	for _, raw := range []string{strings.TrimSpace(os.Getenv(key)), strings.TrimSpace(fileVal)} {
		if raw == "" {
			continue
		}
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}
