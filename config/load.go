package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the agent's complete runtime configuration for one
// market.
type AppConfig struct {
	Symbol              string        `yaml:"symbol"`
	ReferenceFeed       string        `yaml:"referenceFeed"`
	EnableFeedFailover  bool          `yaml:"enableFeedFailover"`
	SpreadBps           float64       `yaml:"spreadBps"`
	TakeProfitBps       float64       `yaml:"takeProfitBps"`
	RequoteThresholdBps float64       `yaml:"requoteThresholdBps"`
	MinOrderAgeMs       int           `yaml:"minOrderAgeMs"`
	OrderSizeUSD        float64       `yaml:"orderSizeUsd"`
	CloseThresholdUSD   float64       `yaml:"closeThresholdUsd"`
	WarmupSeconds        int          `yaml:"warmupSeconds"`
	UpdateThrottleMs    int           `yaml:"updateThrottleMs"`
	OrderSyncIntervalMs int           `yaml:"orderSyncIntervalMs"`
	PositionSyncInterval int          `yaml:"positionSyncIntervalMs"`
	StatusIntervalMs    int           `yaml:"statusIntervalMs"`
	FairPriceWindowMs   int           `yaml:"fairPriceWindowMs"`

	MarketPriceDecimals int `yaml:"marketPriceDecimals"`
	MarketSizeDecimals  int `yaml:"marketSizeDecimals"`
	MaxAtomicActions    int `yaml:"maxAtomicActions"`

	Gateway GatewayConfig `yaml:"gateway"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Alert   AlertConfig   `yaml:"alert"`
	HotReload HotReloadConfig `yaml:"hotReload"`
}

// GatewayConfig holds the local venue's connection details. APIKey/APISecret
// are meant to be supplied out-of-band via the MM_GATEWAY_API_KEY and
// MM_GATEWAY_API_SECRET env vars rather than written into the sample file.
type GatewayConfig struct {
	APIKey    string `yaml:"apiKey"`
	APISecret string `yaml:"apiSecret"`
	BaseURL   string `yaml:"baseUrl"`
	WSURL     string `yaml:"wsUrl"`
}

// LogConfig configures the logging package's zap sinks.
type LogConfig struct {
	Level   string   `yaml:"level"`
	Format  string   `yaml:"format"`
	Outputs []string `yaml:"outputs"`
}

// MetricsConfig configures the metrics package's Prometheus listener.
type MetricsConfig struct {
	ListenAddr string `yaml:"listenAddr"`
}

// AlertConfig configures the alert package's channel fan-out.
type AlertConfig struct {
	WebhookURL string `yaml:"webhookUrl"`
}

// HotReloadConfig controls whether the config file is watched for
// live-safe key changes after startup.
type HotReloadConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultAppConfig returns the defaults named in the configuration table,
// applied before a YAML file is parsed so unset keys fall back to these.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		ReferenceFeed:        "binance",
		EnableFeedFailover:   true,
		SpreadBps:            10,
		TakeProfitBps:        5,
		RequoteThresholdBps:  3,
		MinOrderAgeMs:        10000,
		OrderSizeUSD:         100,
		CloseThresholdUSD:    10,
		WarmupSeconds:        10,
		UpdateThrottleMs:     100,
		FairPriceWindowMs:    300000,
		MarketPriceDecimals:  2,
		MarketSizeDecimals:   4,
		MaxAtomicActions:     4,
		OrderSyncIntervalMs:  3000,
		StatusIntervalMs:     1000,
		PositionSyncInterval: 5000,
		Log:                  LogConfig{Level: "info", Format: "json", Outputs: []string{"stdout"}},
		Metrics:              MetricsConfig{ListenAddr: ":9100"},
		HotReload:            HotReloadConfig{Enabled: true},
	}
}

// Load reads YAML config from path over the defaults and validates it.
func Load(path string) (AppConfig, error) {
	cfg := DefaultAppConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides the venue signing
// credentials from env vars if present, so they never need to live in the
// YAML file on disk.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("MM_GATEWAY_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("MM_GATEWAY_API_SECRET"); v != "" {
		cfg.Gateway.APISecret = v
	}
	return cfg, Validate(cfg)
}
