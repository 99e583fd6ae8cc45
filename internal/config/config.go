// Package config loads service configuration from config.yaml, a .env
// file and SIMULATOR_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/atlas-desktop/strategy-simulator/internal/backtester"
	"github.com/atlas-desktop/strategy-simulator/internal/data"
	"github.com/atlas-desktop/strategy-simulator/pkg/types"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. SIMULATOR_SERVER_PORT.
const EnvPrefix = "SIMULATOR"

// Config is the full service configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Data       DataConfig       `mapstructure:"data"`
	Binance    BinanceConfig    `mapstructure:"binance"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Simulation SimulationConfig `mapstructure:"simulation"`
}

type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	WebSocketPath  string        `mapstructure:"websocket_path"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	EnableMetrics  bool          `mapstructure:"enable_metrics"`
	Workers        int           `mapstructure:"workers"`
	QueueSize      int           `mapstructure:"queue_size"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DataConfig struct {
	Provider     string        `mapstructure:"provider"`
	Dir          string        `mapstructure:"dir"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

type BinanceConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	SecretKey         string        `mapstructure:"secret_key"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
	PageLimit         int           `mapstructure:"page_limit"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

type ClickHouseConfig struct {
	Addr        []string      `mapstructure:"addr"`
	Database    string        `mapstructure:"database"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	Table       string        `mapstructure:"table"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// PostgresConfig holds the result store DSN. An empty DSN keeps results in memory.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type SimulationConfig struct {
	FeeRate          float64 `mapstructure:"fee_rate"`
	MinTradeSize     float64 `mapstructure:"min_trade_size"`
	ProgressInterval int     `mapstructure:"progress_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.websocket_path", "/ws")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.enable_metrics", true)
	v.SetDefault("server.workers", 4)
	v.SetDefault("server.queue_size", 64)

	v.SetDefault("log.level", "info")

	v.SetDefault("data.provider", string(data.KindFile))
	v.SetDefault("data.dir", "./data")
	v.SetDefault("data.fetch_timeout", 30*time.Second)

	bn := data.DefaultBinanceConfig()
	v.SetDefault("binance.base_url", "")
	v.SetDefault("binance.api_key", "")
	v.SetDefault("binance.secret_key", "")
	v.SetDefault("binance.requests_per_second", bn.RequestsPerSecond)
	v.SetDefault("binance.burst", bn.Burst)
	v.SetDefault("binance.max_retries", bn.MaxRetries)
	v.SetDefault("binance.retry_backoff", bn.RetryBackoff)
	v.SetDefault("binance.page_limit", bn.PageLimit)
	v.SetDefault("binance.request_timeout", bn.RequestTimeout)

	v.SetDefault("clickhouse.addr", []string{"localhost:9000"})
	v.SetDefault("clickhouse.database", "default")
	v.SetDefault("clickhouse.username", "default")
	v.SetDefault("clickhouse.password", "")
	v.SetDefault("clickhouse.table", "candles")
	v.SetDefault("clickhouse.dial_timeout", 5*time.Second)

	v.SetDefault("postgres.dsn", "")

	fees := backtester.DefaultFeeSchedule()
	v.SetDefault("simulation.fee_rate", fees.FeeRate.InexactFloat64())
	v.SetDefault("simulation.min_trade_size", fees.MinTradeSize.InexactFloat64())
	v.SetDefault("simulation.progress_interval", backtester.DefaultEngineOptions().ProgressInterval)
}

// Load reads configuration. configPath may name a file or a directory to
// search for config.yaml; a missing file is not an error. Variables from
// .env in the working directory are exported before the environment is read.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if strings.HasSuffix(configPath, ".yaml") || strings.HasSuffix(configPath, ".yml") {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if configPath != "" {
			v.AddConfigPath(configPath)
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.Workers < 1 {
		return fmt.Errorf("server.workers must be at least 1")
	}
	switch data.Kind(c.Data.Provider) {
	case data.KindFile, data.KindSample, data.KindBinance, data.KindClickHouse:
	default:
		return fmt.Errorf("unknown data.provider %q", c.Data.Provider)
	}
	if c.Simulation.FeeRate < 0 || c.Simulation.FeeRate >= 1 {
		return fmt.Errorf("simulation.fee_rate must be in [0, 1)")
	}
	if c.Simulation.MinTradeSize < 0 {
		return fmt.Errorf("simulation.min_trade_size must not be negative")
	}
	return nil
}

// ServerSettings converts the server section to the API server settings
func (c *Config) ServerSettings() *types.ServerConfig {
	return &types.ServerConfig{
		Host:           c.Server.Host,
		Port:           c.Server.Port,
		WebSocketPath:  c.Server.WebSocketPath,
		ReadTimeout:    c.Server.ReadTimeout,
		WriteTimeout:   c.Server.WriteTimeout,
		AllowedOrigins: c.Server.AllowedOrigins,
		EnableMetrics:  c.Server.EnableMetrics,
	}
}

// ProviderConfig converts the data sections to a provider selection
func (c *Config) ProviderConfig() data.ProviderConfig {
	return data.ProviderConfig{
		Kind:    data.Kind(c.Data.Provider),
		DataDir: c.Data.Dir,
		Binance: data.BinanceConfig{
			BaseURL:           c.Binance.BaseURL,
			APIKey:            c.Binance.APIKey,
			SecretKey:         c.Binance.SecretKey,
			RequestsPerSecond: c.Binance.RequestsPerSecond,
			Burst:             c.Binance.Burst,
			MaxRetries:        c.Binance.MaxRetries,
			RetryBackoff:      c.Binance.RetryBackoff,
			PageLimit:         c.Binance.PageLimit,
			RequestTimeout:    c.Binance.RequestTimeout,
		},
		ClickHouse: data.ClickHouseConfig{
			Addr:        c.ClickHouse.Addr,
			Database:    c.ClickHouse.Database,
			Username:    c.ClickHouse.Username,
			Password:    c.ClickHouse.Password,
			Table:       c.ClickHouse.Table,
			DialTimeout: c.ClickHouse.DialTimeout,
		},
	}
}

// EngineOptions converts the simulation section to engine options
func (c *Config) EngineOptions() backtester.EngineOptions {
	return backtester.EngineOptions{
		Fees: backtester.FeeSchedule{
			FeeRate:      decimal.NewFromFloat(c.Simulation.FeeRate),
			MinTradeSize: decimal.NewFromFloat(c.Simulation.MinTradeSize),
		},
		FetchTimeout:     c.Data.FetchTimeout,
		ProgressInterval: c.Simulation.ProgressInterval,
	}
}
