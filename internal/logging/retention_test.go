package logging_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"bundleeval/internal/logging"
)

func TestCleanupOldLogsRemovesExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "bundleeval-old.log")
	fresh := filepath.Join(dir, "bundleeval-new.log")
	current := filepath.Join(dir, "bundleeval-current.log")
	for _, path := range []string{old, fresh, current} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	past := time.Now().AddDate(0, 0, -10)
	for _, path := range []string{old, current} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	logging.CleanupOldLogs(logging.NewNop(), 5, logging.RetentionTarget{
		Dir:     dir,
		Pattern: "bundleeval-*.log",
		Exclude: []string{current},
	})

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	for _, path := range []string{fresh, current} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s kept: %v", path, err)
		}
	}
}
