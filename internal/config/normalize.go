package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeService(); err != nil {
		return err
	}
	c.normalizeHarness()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.RunDir) == "" {
		c.Paths.RunDir = defaultRunDir
	}
	if c.Paths.RunDir, err = expandPath(c.Paths.RunDir); err != nil {
		return fmt.Errorf("paths.run_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeService() error {
	if value, ok := os.LookupEnv("BUNDLEEVAL_SERVICE_COMMAND"); ok && strings.TrimSpace(value) != "" {
		c.Service.Command = strings.Fields(value)
	}
	command := c.Service.Command[:0]
	for _, arg := range c.Service.Command {
		if arg = strings.TrimSpace(arg); arg != "" {
			command = append(command, arg)
		}
	}
	c.Service.Command = command
	if len(c.Service.Command) == 0 {
		c.Service.Command = defaultServiceCommand()
	}

	if c.Service.WorkDir != "" {
		var err error
		if c.Service.WorkDir, err = expandPath(c.Service.WorkDir); err != nil {
			return fmt.Errorf("service.workdir: %w", err)
		}
	}

	c.Service.Host = strings.TrimSpace(c.Service.Host)
	if c.Service.Host == "" {
		c.Service.Host = defaultServiceHost
	}
	if value, ok := os.LookupEnv("PORT"); ok {
		port, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Service.BasePort = port
	}
	if c.Service.BasePort == 0 {
		c.Service.BasePort = defaultBasePort
	}
	if c.Service.ReadyAttempts <= 0 {
		c.Service.ReadyAttempts = defaultReadyAttempts
	}
	if c.Service.ReadyIntervalMS <= 0 {
		c.Service.ReadyIntervalMS = defaultReadyIntervalMS
	}
	if c.Service.RequestTimeoutSeconds <= 0 {
		c.Service.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
	if c.Service.StopGraceMS <= 0 {
		c.Service.StopGraceMS = defaultStopGraceMS
	}
	if len(c.Service.Headers) > 0 {
		headers := make(map[string]string, len(c.Service.Headers))
		for key, value := range c.Service.Headers {
			if key = strings.TrimSpace(key); key != "" {
				headers[key] = value
			}
		}
		c.Service.Headers = headers
	}
	return nil
}

func (c *Config) normalizeHarness() {
	if c.Harness.Workers <= 0 {
		c.Harness.Workers = runtime.NumCPU()
	}
	c.Harness.Strategy = strings.ToLower(strings.TrimSpace(c.Harness.Strategy))
	if c.Harness.Strategy == "" {
		c.Harness.Strategy = defaultStrategy
	}
	c.Harness.Endpoint = strings.TrimSpace(c.Harness.Endpoint)
	if c.Harness.Endpoint != "" && !strings.HasPrefix(c.Harness.Endpoint, "/") {
		c.Harness.Endpoint = "/" + c.Harness.Endpoint
	}
	hosts := make([]string, 0, len(c.Harness.CDNHosts))
	for _, host := range c.Harness.CDNHosts {
		if host = strings.TrimSpace(host); host != "" {
			hosts = append(hosts, host)
		}
	}
	c.Harness.CDNHosts = hosts
	if c.Harness.ProgressIntervalMS <= 0 {
		c.Harness.ProgressIntervalMS = defaultProgressIntervalMS
	}
	if c.RequestCache.MinBytes < 0 {
		c.RequestCache.MinBytes = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// Normalize re-applies defaults and path expansion after callers mutate the
// configuration, for example from command-line flags.
func (c *Config) Normalize() error {
	return c.normalize()
}
