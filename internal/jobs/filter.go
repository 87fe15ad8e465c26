package jobs

import (
	"strings"

	"bundleeval/internal/config"
	"bundleeval/internal/dataset"
)

// Filter decides which meta entries become jobs.
type Filter struct {
	RequiresSourceMap bool
	ExcludeCDN        bool
	CDNHosts          []string
}

// FilterFromConfig builds the extraction filter for a run. requiresSourceMap
// is the effective requirement after combining the config flag with the
// selected strategy.
func FilterFromConfig(cfg *config.Config, requiresSourceMap bool) Filter {
	return Filter{
		RequiresSourceMap: requiresSourceMap,
		ExcludeCDN:        cfg.Harness.ExcludeCDN,
		CDNHosts:          cfg.Harness.CDNHosts,
	}
}

// Eligible reports whether entry should produce a job.
func (f Filter) Eligible(entry dataset.Entry) bool {
	if entry.Kind != dataset.KindScript || !entry.HasSource() {
		return false
	}
	if f.RequiresSourceMap && entry.SourceMapKey == "" {
		return false
	}
	return !f.IsCDN(entry.URL)
}

// IsCDN reports whether url is served by one of the excluded CDN hosts.
func (f Filter) IsCDN(url string) bool {
	if !f.ExcludeCDN {
		return false
	}
	for _, host := range f.CDNHosts {
		if host != "" && strings.Contains(url, host) {
			return true
		}
	}
	return false
}

// JobFor returns the job an eligible entry maps to.
func JobFor(domain string, entry dataset.Entry) Job {
	return Job{SourceKey: entry.SourceKey, SourceMapKey: entry.SourceMapKey, Domain: domain}
}
