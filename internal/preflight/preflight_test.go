package preflight

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"bundleeval/internal/services"
	"bundleeval/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckInputFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "data.bson")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if r := CheckInputFile("Dataset", file); !r.Passed {
		t.Fatalf("expected pass, got %s", r.Detail)
	}
	if r := CheckInputFile("Dataset", dir); r.Passed {
		t.Fatal("expected failure for directory")
	}
	if r := CheckInputFile("Dataset", filepath.Join(dir, "missing")); r.Passed {
		t.Fatal("expected failure for missing file")
	}
	if r := CheckInputFile("Dataset", ""); r.Passed {
		t.Fatal("expected failure for empty path")
	}
}

func TestFits(t *testing.T) {
	if err := Fits(1<<30, 1<<30, 4<<30); err != nil {
		t.Fatalf("expected fit, got %v", err)
	}
	if err := Fits(3<<30, 2<<30, 4<<30); err == nil {
		t.Fatal("expected error when archive plus headroom exceeds memory")
	}
}

func TestCheckMemoryUsesTotalMemory(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "store.tar")
	if err := os.WriteFile(archive, make([]byte, 4096), 0o644); err != nil {
		t.Fatal(err)
	}
	orig := TotalMemory
	t.Cleanup(func() { TotalMemory = orig })

	TotalMemory = func() (uint64, error) { return 8192, nil }
	if r := CheckMemory(archive, 1024); !r.Passed {
		t.Fatalf("expected pass, got %s", r.Detail)
	}
	TotalMemory = func() (uint64, error) { return 4096, nil }
	if r := CheckMemory(archive, 1024); r.Passed {
		t.Fatal("expected failure when headroom does not fit")
	}
}

func TestCheckCommand(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	if r := CheckCommand("svc", []string{present, "--flag"}, ""); !r.Passed {
		t.Fatalf("expected absolute command to resolve, got %s", r.Detail)
	}
	if r := CheckCommand("svc", []string{"./present"}, binDir); !r.Passed {
		t.Fatalf("expected workdir-relative command to resolve, got %s", r.Detail)
	}
	if r := CheckCommand("svc", []string{"clearly-not-present-binary"}, ""); r.Passed {
		t.Fatal("expected missing binary to fail")
	}
	if r := CheckCommand("svc", nil, ""); r.Passed {
		t.Fatal("expected empty command to fail")
	}
}

func TestRunAllReportsSetupFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithService(7000, os.Args[0]))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	dataset := testsupport.WriteDataset(t, t.TempDir(), "a.bson", testsupport.ErrorDoc("example.com"))
	archive := testsupport.WriteArchive(t, t.TempDir(), map[string]string{"k": "v"})

	results := RunAll(cfg, Inputs{Datasets: []string{dataset}, Archive: archive})
	if err := Err(results); err != nil {
		t.Fatalf("expected all checks to pass: %v", err)
	}

	results = RunAll(cfg, Inputs{Datasets: []string{filepath.Join(t.TempDir(), "missing.bson")}, Archive: archive})
	err := Err(results)
	if !errors.Is(err, services.ErrSetup) {
		t.Fatalf("expected setup error, got %v", err)
	}
}
