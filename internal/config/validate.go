package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateService(); err != nil {
		return err
	}
	if err := c.validateHarness(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateService() error {
	if len(c.Service.Command) == 0 {
		return errors.New("service.command must be set")
	}
	if c.Service.BasePort <= 0 || c.Service.BasePort > 65535 {
		return fmt.Errorf("service.base_port must be between 1 and 65535 (got %d)", c.Service.BasePort)
	}
	if last := c.Service.BasePort + c.Harness.Workers - 1; last > 65535 {
		return fmt.Errorf("service.base_port %d leaves no room for %d workers", c.Service.BasePort, c.Harness.Workers)
	}
	if c.Service.MaxRestarts < 0 {
		return errors.New("service.max_restarts must be >= 0")
	}
	return nil
}

func (c *Config) validateHarness() error {
	if c.Harness.Workers <= 0 {
		return errors.New("harness.workers must be positive")
	}
	if strings.TrimSpace(c.Harness.Strategy) == "" {
		return errors.New("harness.strategy must be set")
	}
	if c.Harness.BlobCacheMiB < 0 {
		return errors.New("harness.blob_cache_mib must be >= 0")
	}
	if c.Harness.MemoryHeadroomMiB < 0 {
		return errors.New("harness.memory_headroom_mib must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error (got %q)", c.Logging.Level)
	}
	return nil
}
