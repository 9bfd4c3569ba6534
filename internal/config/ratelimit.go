package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// RateLimitConfig drives the redis token bucket in front of the mutating
// seat routes.
type RateLimitConfig struct {
	Enabled        bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	Capacity       int           `envconfig:"RATE_LIMIT_CAPACITY" default:"60"`
	RefillTokens   int           `envconfig:"RATE_LIMIT_REFILL_TOKENS" default:"1"`
	RefillInterval time.Duration `envconfig:"RATE_LIMIT_REFILL_INTERVAL" default:"1s"`
	TTL            time.Duration `envconfig:"RATE_LIMIT_TTL" default:"10m"`
	KeyStrategy    string        `envconfig:"RATE_LIMIT_KEY_STRATEGY" default:"ip_user_route"`
	Prefix         string        `envconfig:"RATE_LIMIT_PREFIX" default:"rl"`
	Debug          bool          `envconfig:"RATE_LIMIT_DEBUG" default:"false"`
}

// LoadRateLimitConfig reads RATE_LIMIT_* and clamps the values into a
// usable bucket.  Malformed values fall back to the defaults.
func LoadRateLimitConfig() RateLimitConfig {
	var cfg RateLimitConfig
	if err := envconfig.Process("", &cfg); err != nil {
		cfg = RateLimitConfig{
			Enabled:        true,
			Capacity:       60,
			RefillTokens:   1,
			RefillInterval: time.Second,
			TTL:            10 * time.Minute,
			KeyStrategy:    "ip_user_route",
			Prefix:         "rl",
		}
	}
	return cfg.normalize()
}

func (cfg RateLimitConfig) normalize() RateLimitConfig {
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	if cfg.RefillTokens < 1 {
		cfg.RefillTokens = 1
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	if minTTL := 5 * cfg.RefillInterval; cfg.TTL < minTTL {
		cfg.TTL = minTTL
	}
	return cfg
}
