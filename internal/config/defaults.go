package config

import "runtime"

const (
	defaultRunDir                = "~/.local/share/bundleeval/run"
	defaultLogDir                = "~/.local/share/bundleeval/logs"
	defaultCacheDir              = "~/.cache/bundleeval"
	defaultServiceHost           = "127.0.0.1"
	defaultBasePort              = 6666
	defaultReadyAttempts         = 1000
	defaultReadyIntervalMS       = 500
	defaultRequestTimeoutSeconds = 300
	defaultMaxRestarts           = 10
	defaultStopGraceMS           = 1000
	defaultStrategy              = "without_truths"
	defaultBlobCacheMiB          = 256
	defaultMemoryHeadroomMiB     = 2048
	defaultProgressIntervalMS    = 1000
	defaultRequestCacheMinBytes  = 1024
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
)

// DefaultCDNHosts lists the public CDNs whose scripts are excluded from job
// extraction when exclude_cdn is enabled.
var DefaultCDNHosts = []string{
	"//cdn.jsdelivr.net",
	"//cdnjs.cloudflare.com",
	"//unpkg.com",
	"//ajax.googleapis.com",
	"//ajax.aspnetcdn.com",
	"//code.jquery.com",
}

func defaultServiceCommand() []string {
	return []string{"node", "identification/identify.mjs"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RunDir:   defaultRunDir,
			LogDir:   defaultLogDir,
			CacheDir: defaultCacheDir,
		},
		Service: Service{
			Command:               defaultServiceCommand(),
			Host:                  defaultServiceHost,
			BasePort:              defaultBasePort,
			ReadyAttempts:         defaultReadyAttempts,
			ReadyIntervalMS:       defaultReadyIntervalMS,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			MaxRestarts:           defaultMaxRestarts,
			StopGraceMS:           defaultStopGraceMS,
		},
		Harness: Harness{
			Workers:            runtime.NumCPU(),
			Strategy:           defaultStrategy,
			ExcludeCDN:         true,
			CDNHosts:           append([]string(nil), DefaultCDNHosts...),
			BlobCacheMiB:       defaultBlobCacheMiB,
			MemoryHeadroomMiB:  defaultMemoryHeadroomMiB,
			ProgressIntervalMS: defaultProgressIntervalMS,
		},
		RequestCache: RequestCache{
			MinBytes: defaultRequestCacheMinBytes,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
