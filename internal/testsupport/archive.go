package testsupport

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// Compress returns data in the xz container format used by the object store.
func Compress(t testing.TB, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("xz writer: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("xz write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("xz close: %v", err)
	}
	return buf.Bytes()
}

// CompressLegacy returns data in the legacy .lzma (LZMA alone) format.
func CompressLegacy(t testing.TB, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		t.Fatalf("lzma writer: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("lzma write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("lzma close: %v", err)
	}
	return buf.Bytes()
}

// BuildArchive lays out already-compressed blobs as a tar archive with one
// "store/<key>" entry per blob, in key order.
func BuildArchive(t testing.TB, blobs map[string][]byte) []byte {
	t.Helper()

	keys := make([]string, 0, len(blobs))
	for key := range blobs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{Name: "store/", Typeflag: tar.TypeDir, Mode: 0o755}); err != nil {
		t.Fatalf("tar dir header: %v", err)
	}
	for _, key := range keys {
		data := blobs[key]
		hdr := &tar.Header{Name: "store/" + key, Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(data))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", key, err)
		}
		if _, err := tw.Write(data); err != nil {
			t.Fatalf("tar write %s: %v", key, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	return buf.Bytes()
}

// WriteArchive compresses each plain blob with xz and writes the resulting
// archive to dir/store.tar, returning its path.
func WriteArchive(t testing.TB, dir string, plain map[string]string) string {
	t.Helper()

	blobs := make(map[string][]byte, len(plain))
	for key, value := range plain {
		blobs[key] = Compress(t, []byte(value))
	}
	path := filepath.Join(dir, "store.tar")
	WriteBytes(t, path, BuildArchive(t, blobs))
	return path
}

// WriteBytes writes data to path, creating parent directories.
func WriteBytes(t testing.TB, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
