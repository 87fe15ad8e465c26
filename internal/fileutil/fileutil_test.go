package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "nested", "out.json")

	if err := WriteFileAtomic(dst, []byte("[1,2]"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(dst, []byte("[3]"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "[3]" {
		t.Fatalf("content mismatch: got %q", got)
	}
	entries, err := os.ReadDir(filepath.Dir(dst))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp files cleaned up, found %d entries", len(entries))
	}
}

func TestFileSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob")
	if err := os.WriteFile(path, make([]byte, 1234), 0o644); err != nil {
		t.Fatal(err)
	}
	size, err := FileSize(path)
	if err != nil || size != 1234 {
		t.Fatalf("FileSize = %d, %v", size, err)
	}
	if _, err := FileSize(dir); err == nil {
		t.Fatal("expected error for directory")
	}
}

func TestMapSharesFileContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, []byte("mapped bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	first, err := Map(path)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	second, err := Map(path)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	if string(first.Bytes()) != "mapped bytes" || string(second.Bytes()) != "mapped bytes" {
		t.Fatalf("unexpected mapped contents %q / %q", first.Bytes(), second.Bytes())
	}
	if err := first.AdviseRandom(); err != nil {
		t.Fatalf("AdviseRandom: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}
	if first.Len() != 0 {
		t.Fatal("expected closed mapping to report zero length")
	}
}

func TestMapEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := Map(path)
	if err != nil {
		t.Fatal(err)
	}
	if m.Len() != 0 {
		t.Fatalf("expected empty mapping, got %d", m.Len())
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
}
