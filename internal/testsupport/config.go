package testsupport

import (
	"path/filepath"
	"testing"

	"bundleeval/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.RunDir = filepath.Join(base, "run")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.CacheDir = filepath.Join(base, "cache")
	cfgVal.Service.Host = "127.0.0.1"
	cfgVal.Service.ReadyAttempts = 200
	cfgVal.Service.ReadyIntervalMS = 25
	cfgVal.Service.RequestTimeoutSeconds = 10
	cfgVal.Service.MaxRestarts = 3
	cfgVal.Service.StopGraceMS = 500
	cfgVal.Harness.Workers = 2
	cfgVal.Harness.ProgressIntervalMS = 20
	cfgVal.Harness.MemoryHeadroomMiB = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithWorkers sets the worker count.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Harness.Workers = n
	}
}

// WithStrategy selects the analysis strategy.
func WithStrategy(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Harness.Strategy = name
	}
}

// WithRequiresSourceMap toggles the source map requirement.
func WithRequiresSourceMap(v bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Harness.RequiresSourceMap = v
	}
}

// WithRequestCache enables the persistent request cache with the given threshold.
func WithRequestCache(minBytes int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Harness.RequestCache = true
		b.cfg.RequestCache.MinBytes = minBytes
	}
}

// WithService points the service command at argv and assigns the base port.
func WithService(basePort int, argv ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Service.BasePort = basePort
		b.cfg.Service.Command = append([]string(nil), argv...)
	}
}

// WithHeaders sets the request headers sent to the service.
func WithHeaders(headers map[string]string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Service.Headers = headers
	}
}

// BaseDir returns the temp directory backing the config paths.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.RunDir)
}
