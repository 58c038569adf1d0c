package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}

	if c.RateLimit.PerMinute < 1 {
		return errors.New("rate_limit.per_minute must be >= 1")
	}
	if c.RateLimit.InteractiveReserve < 0 {
		return errors.New("rate_limit.interactive_reserve must be >= 0")
	}
	if c.RateLimit.InteractiveReserve >= c.RateLimit.PerMinute {
		return fmt.Errorf("rate_limit.interactive_reserve (%d) must be below per_minute (%d)",
			c.RateLimit.InteractiveReserve, c.RateLimit.PerMinute)
	}

	if c.Queue.Workers < 1 {
		return errors.New("queue.workers must be >= 1")
	}
	if c.Queue.MaxAttempts < 1 {
		return errors.New("queue.max_attempts must be >= 1")
	}

	for name, at := range map[string]string{
		"schedule.fred_refresh":      c.Schedule.FREDRefresh,
		"schedule.premarket_quotes":  c.Schedule.PremarketQuotes,
		"schedule.premarket_summary": c.Schedule.PremarketSummary,
		"schedule.daily_append":      c.Schedule.DailyAppend,
		"schedule.close_summary":     c.Schedule.CloseSummary,
	} {
		if _, err := time.Parse("15:04", at); err != nil {
			return fmt.Errorf("%s: invalid HH:MM time %q", name, at)
		}
	}

	for region, hours := range c.Markets {
		if region == "24/7" {
			continue
		}
		if _, err := time.Parse("15:04", hours.Open); err != nil {
			return fmt.Errorf("markets.%s.open: invalid HH:MM time %q", region, hours.Open)
		}
		if _, err := time.Parse("15:04", hours.Close); err != nil {
			return fmt.Errorf("markets.%s.close: invalid HH:MM time %q", region, hours.Close)
		}
	}

	for i, a := range c.Assets {
		if a.Symbol == "" {
			return fmt.Errorf("assets[%d].symbol is required", i)
		}
		if a.Source != "twelvedata" && a.Source != "fred" {
			return fmt.Errorf("assets[%d].source must be twelvedata or fred, got %q", i, a.Source)
		}
	}

	return nil
}
