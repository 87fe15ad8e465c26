package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	RunDir   string `toml:"run_dir"`
	LogDir   string `toml:"log_dir"`
	CacheDir string `toml:"cache_dir"`
}

// Service describes how each worker launches and talks to its private
// identification service instance.
type Service struct {
	Command               []string          `toml:"command"`
	WorkDir               string            `toml:"workdir"`
	Host                  string            `toml:"host"`
	BasePort              int               `toml:"base_port"`
	ReadyAttempts         int               `toml:"ready_attempts"`
	ReadyIntervalMS       int               `toml:"ready_interval_ms"`
	RequestTimeoutSeconds int               `toml:"request_timeout_seconds"`
	MaxRestarts           int               `toml:"max_restarts"`
	StopGraceMS           int               `toml:"stop_grace_ms"`
	Headers               map[string]string `toml:"headers"`
}

// Harness contains the job distribution settings.
type Harness struct {
	Workers            int      `toml:"workers"`
	Strategy           string   `toml:"strategy"`
	Endpoint           string   `toml:"endpoint"`
	RequiresSourceMap  bool     `toml:"requires_source_map"`
	RequestCache       bool     `toml:"request_cache"`
	ExcludeCDN         bool     `toml:"exclude_cdn"`
	CDNHosts           []string `toml:"cdn_hosts"`
	BlobCacheMiB       int      `toml:"blob_cache_mib"`
	MemoryHeadroomMiB  int      `toml:"memory_headroom_mib"`
	ProgressIntervalMS int      `toml:"progress_interval_ms"`
}

// RequestCache contains configuration for the persistent response cache.
type RequestCache struct {
	MinBytes int `toml:"min_bytes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for bundleeval.
//
// Configuration sections by subsystem:
//   - Paths: run state, logs and the request cache
//   - Service: identification service command, ports and timeouts
//   - Harness: worker count, strategy and job extraction filters
//   - RequestCache: response cache thresholds
//   - Logging: log format and level
type Config struct {
	Paths        Paths        `toml:"paths"`
	Service      Service      `toml:"service"`
	Harness      Harness      `toml:"harness"`
	RequestCache RequestCache `toml:"request_cache"`
	Logging      Logging      `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/bundleeval/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("bundleeval.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the run, log and cache directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.RunDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Harness.RequestCache && strings.TrimSpace(c.Paths.CacheDir) != "" {
		if err := os.MkdirAll(c.Paths.CacheDir, 0o755); err != nil {
			return fmt.Errorf("create cache directory %q: %w", c.Paths.CacheDir, err)
		}
	}
	return nil
}

// ReadyInterval returns the delay between readiness probes.
func (c *Config) ReadyInterval() time.Duration {
	return time.Duration(c.Service.ReadyIntervalMS) * time.Millisecond
}

// RequestTimeout returns the per-request deadline for identification calls.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Service.RequestTimeoutSeconds) * time.Second
}

// StopGrace returns how long a terminated service may take to exit before it is killed.
func (c *Config) StopGrace() time.Duration {
	return time.Duration(c.Service.StopGraceMS) * time.Millisecond
}

// ProgressInterval returns the progress monitor sampling period.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.Harness.ProgressIntervalMS) * time.Millisecond
}

// BlobCacheBytes returns the per-worker decompressed blob cache budget.
func (c *Config) BlobCacheBytes() int64 {
	return int64(c.Harness.BlobCacheMiB) << 20
}

// MemoryHeadroomBytes returns the RAM that must remain free after mapping the archive.
func (c *Config) MemoryHeadroomBytes() uint64 {
	return uint64(c.Harness.MemoryHeadroomMiB) << 20
}

// RequestCachePath returns the SQLite file backing the request cache.
func (c *Config) RequestCachePath() string {
	return filepath.Join(c.Paths.CacheDir, "requests.db")
}

// ServicePort returns the private port assigned to the given worker.
func (c *Config) ServicePort(workerIndex int) int {
	return c.Service.BasePort + workerIndex
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Save writes the configuration as TOML. Coordinators use it to hand the
// effective, flag-adjusted settings to worker processes.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
