package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var supportedDrivers = []string{DriverSQLite, DriverPostgres, DriverPgx, DriverMemory}

// Validate performs business-rule validation on the loaded configuration.
// Load calls it automatically.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535 (got %d)", c.Server.Port)
	}

	if err := c.Database.validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if c.RateLimit.Enabled {
		if c.Redis.URL == "" {
			return errors.New("rate_limit: requires redis.url")
		}
		if err := c.RateLimit.validate(); err != nil {
			return fmt.Errorf("rate_limit: %w", err)
		}
	}

	if c.Tracing.Enabled {
		if err := c.Tracing.validate(); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	return nil
}

func (d *DatabaseConfig) validate() error {
	d.Driver = strings.ToLower(strings.TrimSpace(d.Driver))
	if !slices.Contains(supportedDrivers, d.Driver) {
		return fmt.Errorf("driver must be one of %s (got %q)", strings.Join(supportedDrivers, ", "), d.Driver)
	}
	if d.Driver != DriverMemory && d.URL == "" {
		return errors.New("url is required")
	}
	if d.MaxOpenConns < 0 || d.MaxIdleConns < 0 {
		return errors.New("connection pool sizes must be >= 0")
	}
	return nil
}

func (r RateLimitConfig) validate() error {
	if r.Limit <= 0 {
		return fmt.Errorf("limit must be > 0 (got %d)", r.Limit)
	}
	if r.Window <= 0 {
		return fmt.Errorf("window must be > 0 (got %s)", r.Window)
	}
	if r.BlockDuration < 0 {
		return fmt.Errorf("block_duration must be >= 0 (got %s)", r.BlockDuration)
	}
	return nil
}

func (t TracingConfig) validate() error {
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		return fmt.Errorf("sample_ratio must be in 0..1 (got %g)", t.SampleRatio)
	}
	if strings.TrimSpace(t.ServiceName) == "" {
		return errors.New("service_name is required")
	}
	return nil
}

// SplitList splits a comma-separated setting into trimmed, non-empty items.
func SplitList(raw string) []string {
	var items []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}
