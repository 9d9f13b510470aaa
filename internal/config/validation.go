package config

import (
	"fmt"
	"strings"

	"chartcore/internal/market"
	"chartcore/internal/scheduler"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Feed.validate(); err != nil {
		return err
	}
	if err := c.Market.validate(); err != nil {
		return err
	}
	return nil
}

func (a *AppConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(a.LogLevel)) {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("app.log_level must be one of debug/info/warn/error, got %q", a.LogLevel)
	}
}

func (f *FeedConfig) validate() error {
	for _, s := range f.Symbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("feed.symbols contains empty entry")
		}
	}
	for _, raw := range f.Resolutions {
		if _, err := market.ParseResolution(raw); err != nil {
			return fmt.Errorf("feed.resolutions: %w", err)
		}
	}
	if len(f.ParsedResolutions()) == 0 {
		return fmt.Errorf("feed.resolutions requires at least one valid resolution")
	}
	if f.Limit > 1500 {
		return fmt.Errorf("feed.limit must be <= 1500, got %d", f.Limit)
	}
	for raw, val := range f.TTLOverrides {
		if _, err := market.ParseResolution(raw); err != nil {
			return fmt.Errorf("feed.ttl_overrides: %w", err)
		}
		if _, ok := scheduler.ParseIntervalDuration(val); !ok {
			return fmt.Errorf("feed.ttl_overrides.%s: invalid duration %q", raw, val)
		}
	}
	return nil
}

func (m *MarketConfig) validate() error {
	if m.Proxy.Enabled && strings.TrimSpace(m.Proxy.RESTURL) == "" {
		return fmt.Errorf("market.proxy.rest_url required when proxy enabled")
	}
	return nil
}
