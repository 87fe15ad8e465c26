// Package rundir names the files a run keeps in its run directory and
// cleans up after completed runs.
package rundir

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"bundleeval/internal/logging"
	"bundleeval/internal/manifest"
)

const (
	ManifestName = manifest.FileName
	CounterName  = "tickets.counter"
	ConfigName   = "config.toml"
	LockName     = "bundleeval.lock"
)

// Layout resolves run artifact paths under one directory.
type Layout struct {
	Dir string
}

// New returns the layout rooted at dir.
func New(dir string) Layout {
	return Layout{Dir: strings.TrimSpace(dir)}
}

func (l Layout) Manifest() string { return filepath.Join(l.Dir, ManifestName) }
func (l Layout) Counter() string  { return filepath.Join(l.Dir, CounterName) }
func (l Layout) Config() string   { return filepath.Join(l.Dir, ConfigName) }
func (l Layout) Lock() string     { return filepath.Join(l.Dir, LockName) }

// Ensure creates the run directory.
func (l Layout) Ensure() error {
	return os.MkdirAll(l.Dir, 0o755)
}

// FileInfo describes one run artifact.
type FileInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// List returns the regular files in the run directory sorted by name. A
// missing directory yields no files.
func (l Layout) List() ([]FileInfo, error) {
	if l.Dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Name:    entry.Name(),
			Path:    filepath.Join(l.Dir, entry.Name()),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// CleanResult contains the outcome of a cleanup.
type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its removal error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanCompleted removes the per-run artifacts of a finished run. The lock
// and the config snapshot stay so a later status check can report the run.
func (l Layout) CleanCompleted(logger *slog.Logger) CleanResult {
	result := CleanResult{}
	files, err := l.List()
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: l.Dir, Error: err})
		return result
	}

	for _, f := range files {
		if !transient(f.Name) {
			continue
		}
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: f.Path, Error: err})
			if logger != nil {
				logger.Warn("failed to remove run artifact",
					logging.String("path", f.Path),
					logging.Error(err),
					logging.String(logging.FieldEventType, "run_cleanup_failed"),
					logging.String(logging.FieldErrorHint, "check run_dir permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
			}
			continue
		}
		result.Removed = append(result.Removed, f.Path)
	}
	if logger != nil && len(result.Removed) > 0 {
		logger.Debug("removed run artifacts",
			logging.Int("count", len(result.Removed)),
			logging.String(logging.FieldEventType, "run_cleanup"),
		)
	}
	return result
}

func transient(name string) bool {
	switch {
	case strings.HasPrefix(name, ManifestName):
		return true
	case strings.HasPrefix(name, CounterName):
		return true
	default:
		return false
	}
}
