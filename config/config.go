package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Fundingflow FundingflowConfig `yaml:"fundingflow"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Channels    ChannelsConfig    `yaml:"channels"`
	Reader      ReaderConfig      `yaml:"reader"`
	Spot        SpotConfig        `yaml:"spot"`
	Aggregator  AggregatorConfig  `yaml:"aggregator"`
	Ranking     RankingConfig     `yaml:"ranking"`
	Source      SourceConfig      `yaml:"source"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type FundingflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

type ChannelsConfig struct {
	UpdateBuffer int `yaml:"update_buffer"`
}

type ReaderConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type SpotConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type AggregatorConfig struct {
	Exchanges  []string      `yaml:"exchanges"`
	SpotFilter bool          `yaml:"spot_filter"`
	Interval   time.Duration `yaml:"interval"`
}

type RankingConfig struct {
	TopN         int     `yaml:"top_n"`
	Threshold    float64 `yaml:"threshold"`
	VolumeFilter float64 `yaml:"volume_filter"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type SourceConfig struct {
	Binance BinanceSourceConfig `yaml:"binance"`
	Bybit   BybitSourceConfig   `yaml:"bybit"`
	Bitget  BitgetSourceConfig  `yaml:"bitget"`
	Okx     OkxSourceConfig     `yaml:"okx"`
}

type BinanceSourceConfig struct {
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
	SpotURL        string               `yaml:"spot_url"`
	Futures        BinanceFuturesConfig `yaml:"futures"`
}

type BinanceFuturesConfig struct {
	Enabled           bool          `yaml:"enabled"`
	MarkPriceInterval time.Duration `yaml:"mark_price_interval"`
}

type BybitSourceConfig struct {
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
	BaseURL        string               `yaml:"base_url"`
	Futures        FuturesConfig        `yaml:"futures"`
}

type BitgetSourceConfig struct {
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
	BaseURL        string               `yaml:"base_url"`
	Futures        FuturesConfig        `yaml:"futures"`
}

type OkxSourceConfig struct {
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
	RestURL        string               `yaml:"rest_url"`
	WsURL          string               `yaml:"ws_url"`
	Futures        OkxFuturesConfig     `yaml:"futures"`
}

type FuturesConfig struct {
	Enabled bool `yaml:"enabled"`
}

type OkxFuturesConfig struct {
	Enabled            bool          `yaml:"enabled"`
	SubscribeBatchSize int           `yaml:"subscribe_batch_size"`
	SubscribeInterval  time.Duration `yaml:"subscribe_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// Exchange-imposed cap on channel subscriptions per outbound message.
const maxOkxSubscribeBatch = 50

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Channels: ChannelsConfig{UpdateBuffer: 4096},
		Reader:   ReaderConfig{Timeout: 10 * time.Second},
		Spot:     SpotConfig{TTL: time.Hour},
		Aggregator: AggregatorConfig{
			Exchanges:  []string{"bybit", "binance", "bitget", "okx"},
			SpotFilter: true,
			Interval:   5 * time.Minute,
		},
		Ranking: RankingConfig{TopN: 5, Threshold: 0.1, VolumeFilter: 0},
		Source: SourceConfig{
			Binance: BinanceSourceConfig{
				SpotURL: "https://api.binance.com",
				Futures: BinanceFuturesConfig{Enabled: true, MarkPriceInterval: time.Second},
			},
			Bybit: BybitSourceConfig{
				BaseURL: "https://api.bybit.com",
				Futures: FuturesConfig{Enabled: true},
			},
			Bitget: BitgetSourceConfig{
				BaseURL: "https://api.bitget.com",
				Futures: FuturesConfig{Enabled: true},
			},
			Okx: OkxSourceConfig{
				RestURL: "https://www.okx.com",
				WsURL:   "wss://ws.okx.com:8443/ws/v5/public",
				Futures: OkxFuturesConfig{
					Enabled:            true,
					SubscribeBatchSize: maxOkxSubscribeBatch,
					SubscribeInterval:  100 * time.Millisecond,
				},
			},
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override CloudWatch settings from environment variables if available
	if config.Metrics.CloudWatch.Enabled {
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Metrics.CloudWatch.Region = strings.TrimSpace(v)
		}
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

var validExchanges = map[string]bool{
	"binance": true,
	"bybit":   true,
	"bitget":  true,
	"okx":     true,
}

func validateConfig(cfg *Config) error {
	if cfg.Fundingflow.Name == "" {
		return fmt.Errorf("fundingflow.name is required")
	}

	if cfg.Fundingflow.Version == "" {
		return fmt.Errorf("fundingflow.version is required")
	}

	if cfg.Channels.UpdateBuffer <= 0 {
		return fmt.Errorf("channels.update_buffer must be greater than 0")
	}

	if cfg.Reader.Timeout <= 0 {
		return fmt.Errorf("reader.timeout must be greater than 0")
	}

	if cfg.Spot.TTL <= 0 {
		return fmt.Errorf("spot.ttl must be greater than 0")
	}

	if len(cfg.Aggregator.Exchanges) == 0 {
		return fmt.Errorf("aggregator.exchanges must not be empty")
	}
	for _, ex := range cfg.Aggregator.Exchanges {
		if !validExchanges[ex] {
			return fmt.Errorf("aggregator.exchanges contains unknown exchange '%s'", ex)
		}
	}

	if cfg.Aggregator.Interval <= 0 {
		return fmt.Errorf("aggregator.interval must be greater than 0")
	}

	if cfg.Ranking.TopN <= 0 {
		return fmt.Errorf("ranking.top_n must be greater than 0")
	}

	okx := cfg.Source.Okx.Futures
	if okx.SubscribeBatchSize <= 0 || okx.SubscribeBatchSize > maxOkxSubscribeBatch {
		return fmt.Errorf("source.okx.futures.subscribe_batch_size must be between 1 and %d", maxOkxSubscribeBatch)
	}
	if okx.SubscribeInterval <= 0 {
		return fmt.Errorf("source.okx.futures.subscribe_interval must be greater than 0")
	}

	return nil
}
