package preflight

import (
	"fmt"
	"strings"

	"bundleeval/internal/config"
	"bundleeval/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Inputs names the files a run reads.
type Inputs struct {
	Datasets []string
	Archive  string
}

// RunAll executes every preflight check for the given config and inputs.
func RunAll(cfg *config.Config, in Inputs) []Result {
	if cfg == nil {
		return []Result{{Name: "Configuration", Detail: "missing"}}
	}

	results := []Result{
		CheckDirectoryAccess("Run directory", cfg.Paths.RunDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Harness.RequestCache {
		results = append(results, CheckDirectoryAccess("Cache directory", cfg.Paths.CacheDir))
	}
	if len(in.Datasets) == 0 {
		results = append(results, Result{Name: "Datasets", Detail: "no dataset files given"})
	}
	for _, path := range in.Datasets {
		results = append(results, CheckInputFile("Dataset", path))
	}
	archive := CheckInputFile("Object store", in.Archive)
	results = append(results, archive)
	if archive.Passed {
		results = append(results, CheckMemory(in.Archive, cfg.MemoryHeadroomBytes()))
	}
	results = append(results, CheckCommand("Identification service", cfg.Service.Command, cfg.Service.WorkDir))
	return results
}

// Err folds failed results into a single setup error, or returns nil when
// every check passed.
func Err(results []Result) error {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return services.Wrap(services.ErrSetup, "preflight", "checks", strings.Join(failed, "; "), nil)
}
