package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration loads in three layers: built-in defaults, an optional
// YAML file, then environment variable overrides. Every value is range
// validated before the process accepts it.

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Market   MarketConfig   `yaml:"market"`
	Batch    BatchConfig    `yaml:"batch"`
	NATS     NATSConfig     `yaml:"nats"`
	Log      LogConfig      `yaml:"log"`
	Accounts AccountsConfig `yaml:"accounts"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimit       int           `yaml:"rate_limit"`
	RateWindow      time.Duration `yaml:"rate_window"`
}

type MarketConfig struct {
	Authority       string `yaml:"authority"`
	FeeBps          uint16 `yaml:"fee_bps"`
	ClearingEnabled bool   `yaml:"clearing_enabled"`
}

type BatchConfig struct {
	MaxBatchSize        uint32 `yaml:"max_batch_size"`
	TimeoutSeconds      uint32 `yaml:"timeout_seconds"`
	MinBatchSize        uint32 `yaml:"min_batch_size"`
	PriceImprovementPct uint16 `yaml:"price_improvement_pct"`
}

type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type AccountsConfig struct {
	FeeCollector string `yaml:"fee_collector"`
	GridOperator string `yaml:"grid_operator"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       100,
			RateWindow:      time.Minute,
		},
		Market: MarketConfig{
			Authority:       "exchange-authority",
			FeeBps:          25,
			ClearingEnabled: true,
		},
		Batch: BatchConfig{
			MaxBatchSize:        4,
			TimeoutSeconds:      300,
			MinBatchSize:        1,
			PriceImprovementPct: 5,
		},
		NATS: NATSConfig{
			URL: "nats://127.0.0.1:4222",
		},
		Log: LogConfig{
			Level: "info",
		},
		Accounts: AccountsConfig{
			FeeCollector: "fee-collector",
			GridOperator: "grid-operator",
		},
	}
}

// Load builds the effective configuration. A missing file is fine; a
// malformed one is not.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, err
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Server.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("MARKET_AUTHORITY"); v != "" {
		cfg.Market.Authority = v
	}
	if v := os.Getenv("MARKET_FEE_BPS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil {
			cfg.Market.FeeBps = uint16(n)
		}
	}
	if v := os.Getenv("CLEARING_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Market.ClearingEnabled = b
		}
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATS.Enabled = true
		cfg.NATS.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
}

func (c Config) Validate() error {
	if c.Server.Port == "" {
		return ErrInvalidConfig
	}
	if _, err := strconv.ParseUint(c.Server.Port, 10, 16); err != nil {
		return ErrInvalidConfig
	}
	if c.Market.Authority == "" {
		return ErrInvalidConfig
	}
	if c.Market.FeeBps > 10000 {
		return ErrInvalidConfig
	}
	if c.Batch.MaxBatchSize == 0 || c.Batch.MaxBatchSize > 4 {
		return ErrInvalidConfig
	}
	if c.Batch.MinBatchSize == 0 || c.Batch.MinBatchSize > c.Batch.MaxBatchSize {
		return ErrInvalidConfig
	}
	if c.Batch.TimeoutSeconds == 0 {
		return ErrInvalidConfig
	}
	if c.Batch.PriceImprovementPct > 100 {
		return ErrInvalidConfig
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return ErrInvalidConfig
	}
	if c.Accounts.FeeCollector == "" || c.Accounts.GridOperator == "" {
		return ErrInvalidConfig
	}
	return nil
}
