package testsupport

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"bundleeval/internal/objectstore"
	"bundleeval/internal/results"
)

// NewObjectStore builds an in-memory object store holding the xz-compressed
// plain blobs. Raw blobs are added as-is, which lets tests plant corrupt
// entries.
func NewObjectStore(t testing.TB, plain map[string]string, raw map[string][]byte) *objectstore.Store {
	t.Helper()

	blobs := make(map[string][]byte, len(plain)+len(raw))
	for key, value := range plain {
		blobs[key] = Compress(t, []byte(value))
	}
	for key, value := range raw {
		blobs[key] = value
	}
	buf := BuildArchive(t, blobs)
	index, err := objectstore.BuildIndex(buf)
	if err != nil {
		t.Fatalf("objectstore.BuildIndex: %v", err)
	}
	return objectstore.New(buf, index, 1<<20)
}

// ReadRecords returns every complete record in a results file keyed by id,
// failing the test when an id appears twice.
func ReadRecords(t testing.TB, path string) map[string]bson.Raw {
	t.Helper()

	out := map[string]bson.Raw{}
	if _, err := results.Scan(path, func(raw bson.Raw) error {
		id := raw.Lookup("id").StringValue()
		if _, dup := out[id]; dup {
			t.Errorf("duplicate record for %s", id)
		}
		out[id] = append(bson.Raw(nil), raw...)
		return nil
	}); err != nil {
		t.Fatalf("results.Scan: %v", err)
	}
	return out
}
