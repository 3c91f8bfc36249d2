package config

import (
	"errors"
	"fmt"
)

// Validate rejects a missing symbol, credential or base URL, a non-positive
// spread, order size, close threshold, throttle, fair-price window or
// atomic-action cap, and a negative requote threshold, order age, warmup or
// decimal count before the orchestrator starts, so a bad config fails fast
// with exit code 1 rather than producing nonsensical quotes at runtime.
func Validate(cfg AppConfig) error {
	if cfg.Symbol == "" {
		return errors.New("symbol is required")
	}
	if cfg.SpreadBps <= 0 {
		return errors.New("spreadBps must be > 0")
	}
	if cfg.RequoteThresholdBps < 0 {
		return errors.New("requoteThresholdBps must be >= 0")
	}
	if cfg.MinOrderAgeMs < 0 {
		return errors.New("minOrderAgeMs must be >= 0")
	}
	if cfg.OrderSizeUSD <= 0 {
		return errors.New("orderSizeUsd must be > 0")
	}
	if cfg.CloseThresholdUSD <= 0 {
		return errors.New("closeThresholdUsd must be > 0")
	}
	if cfg.WarmupSeconds < 0 {
		return errors.New("warmupSeconds must be >= 0")
	}
	if cfg.UpdateThrottleMs <= 0 {
		return errors.New("updateThrottleMs must be > 0")
	}
	if cfg.FairPriceWindowMs <= 0 {
		return errors.New("fairPriceWindowMs must be > 0")
	}
	if cfg.MarketPriceDecimals < 0 || cfg.MarketSizeDecimals < 0 {
		return errors.New("marketPriceDecimals/marketSizeDecimals must be >= 0")
	}
	if cfg.MaxAtomicActions <= 0 {
		return errors.New("maxAtomicActions must be > 0")
	}
	if cfg.Gateway.APIKey == "" || cfg.Gateway.APISecret == "" {
		return errors.New("gateway.apiKey/apiSecret is required (or env overrides)")
	}
	if cfg.Gateway.BaseURL == "" {
		return fmt.Errorf("symbol %s: gateway.baseUrl is required", cfg.Symbol)
	}
	return nil
}

// ValidateConfig is kept for backward compatibility; delegates to Validate.
func ValidateConfig(cfg AppConfig) error {
	return Validate(cfg)
}
