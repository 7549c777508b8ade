// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"

	"github.com/memeflow/copytrade/internal/logger"
)

type Config struct {
	RPCURL      string `mapstructure:"rpc_url"`
	ProgramID   string `mapstructure:"program_id"`
	ExecutorKey string `mapstructure:"executor_key"` // путь к keypair или base58

	Engine  EngineConfig  `mapstructure:"engine"`
	Storage StorageConfig `mapstructure:"storage"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Audit   AuditConfig   `mapstructure:"audit"`
	Log     logger.Config `mapstructure:"log"`
}

type EngineConfig struct {
	Workers        int           `mapstructure:"workers"`
	QueueSize      int           `mapstructure:"queue_size"`
	Retries        int           `mapstructure:"retries"`
	RetryInterval  time.Duration `mapstructure:"retry_interval"`
	MaxUplineDepth int           `mapstructure:"max_upline_depth"`
	QuoteDecimals  int32         `mapstructure:"quote_decimals"`
	TradesFile     string        `mapstructure:"trades_file"` // JSONL, "-" для stdin
}

type StorageConfig struct {
	Driver      string `mapstructure:"driver"` // memory, postgres
	PostgresURL string `mapstructure:"postgres_url"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type AuditConfig struct {
	CSVPath       string        `mapstructure:"csv_path"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

const (
	EnvPrefix = "MEMEFLOW"

	DefaultProgramID      = "HX3Ex4icMLJFwqSDJ9vsLe87ZNd7UyrBxPiUHj78rKLm"
	DefaultWorkers        = 4
	DefaultQueueSize      = 256
	DefaultRetries        = 5
	DefaultRetryInterval  = 200 * time.Millisecond
	DefaultMaxUplineDepth = 32
	DefaultQuoteDecimals  = 9
)

func defaults() map[string]interface{} {
	logDefaults := logger.DefaultConfig()
	return map[string]interface{}{
		"rpc_url":                 "https://api.mainnet-beta.solana.com",
		"program_id":              DefaultProgramID,
		"executor_key":            "",
		"engine.workers":          DefaultWorkers,
		"engine.queue_size":       DefaultQueueSize,
		"engine.retries":          DefaultRetries,
		"engine.retry_interval":   DefaultRetryInterval,
		"engine.max_upline_depth": DefaultMaxUplineDepth,
		"engine.quote_decimals":   DefaultQuoteDecimals,
		"engine.trades_file":      "-",
		"storage.driver":          "memory",
		"storage.postgres_url":    "",
		"metrics.enabled":         true,
		"metrics.addr":            ":9090",
		"audit.csv_path":          "",
		"audit.flush_interval":    time.Second,
		"log.level":               logDefaults.Level,
		"log.format":              logDefaults.Format,
		"log.file":                logDefaults.File,
		"log.max_size":            logDefaults.MaxSize,
		"log.max_age":             logDefaults.MaxAge,
		"log.max_backups":         logDefaults.MaxBackups,
		"log.compress":            logDefaults.Compress,
		"log.development":         logDefaults.Development,
	}
}

// LoadConfig reads path (optional), applies defaults and MEMEFLOW_* environment
// overrides (engine.workers -> MEMEFLOW_ENGINE_WORKERS) and validates.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &cfg, validateConfig(&cfg)
}

// Program returns the parsed authority program id.
func (c *Config) Program() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(c.ProgramID)
}

func validateConfig(cfg *Config) error {
	if err := validateURL(cfg.RPCURL, "http"); err != nil {
		return fmt.Errorf("rpc_url: %w", err)
	}
	if _, err := solana.PublicKeyFromBase58(cfg.ProgramID); err != nil {
		return fmt.Errorf("program_id: %w", err)
	}
	if err := validateEngine(&cfg.Engine); err != nil {
		return err
	}

	switch cfg.Storage.Driver {
	case "memory":
	case "postgres":
		if cfg.Storage.PostgresURL == "" {
			return errors.New("storage.postgres_url is required for the postgres driver")
		}
		if err := validateURL(cfg.Storage.PostgresURL, "postgres"); err != nil {
			return fmt.Errorf("storage.postgres_url: %w", err)
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", cfg.Storage.Driver)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return errors.New("metrics.addr is required when metrics are enabled")
	}
	if cfg.Audit.CSVPath != "" && cfg.Audit.FlushInterval <= 0 {
		return errors.New("invalid audit.flush_interval")
	}
	return nil
}

func validateEngine(e *EngineConfig) error {
	if e.Workers <= 0 {
		return errors.New("invalid engine.workers")
	}
	if e.QueueSize <= 0 {
		return errors.New("invalid engine.queue_size")
	}
	if e.Retries < 0 {
		return errors.New("invalid engine.retries")
	}
	if e.RetryInterval <= 0 {
		return errors.New("invalid engine.retry_interval")
	}
	if e.MaxUplineDepth <= 0 || e.MaxUplineDepth > 256 {
		return errors.New("engine.max_upline_depth must be within 1..256")
	}
	if e.QuoteDecimals < 0 || e.QuoteDecimals > 18 {
		return errors.New("engine.quote_decimals must be within 0..18")
	}
	return nil
}

func validateURL(rawURL string, scheme string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, scheme) {
		return errors.New("invalid URL protocol")
	}
	return nil
}
