package recovery_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"bundleeval/internal/jobs"
	"bundleeval/internal/logging"
	"bundleeval/internal/recovery"
	"bundleeval/internal/results"
	"bundleeval/internal/testsupport"
)

func writeResults(t *testing.T, path string, list ...jobs.Job) {
	t.Helper()

	sink := results.NewSink(path)
	for i, job := range list {
		var rec results.Record
		if i%2 == 0 {
			var err error
			rec, err = results.Success(job, []byte(`{"libraries":["react"]}`))
			if err != nil {
				t.Fatalf("results.Success: %v", err)
			}
		} else {
			rec = results.Failure(job, "status 500: boom")
		}
		if err := sink.Append(context.Background(), rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
}

func fixture(t *testing.T) (dir string, datasets []string, resultsPath string) {
	t.Helper()

	dir = t.TempDir()
	// b.bson sorts after a.bson even though it is listed first.
	datasets = []string{
		testsupport.WriteDataset(t, dir, "b.bson",
			testsupport.CrawlDoc("two.example",
				testsupport.Script{URL: "https://two.example/x.js", Source: "x"},
				testsupport.Script{URL: "https://two.example/shared.js", Source: "shared"},
			),
		),
		testsupport.WriteDataset(t, dir, "a.bson",
			testsupport.CrawlDoc("one.example",
				testsupport.Script{URL: "https://one.example/shared.js", Source: "shared"},
				testsupport.Script{URL: "https://one.example/gone.js", Source: "gone"},
			),
			testsupport.ErrorDoc("down.example"),
			testsupport.CrawlDoc("one.example",
				testsupport.Script{URL: "https://one.example/shared.js", Source: "shared"},
			),
		),
	}
	resultsPath = filepath.Join(dir, "results.bson")
	writeResults(t, resultsPath,
		jobs.Job{SourceKey: "shared", Domain: "one.example"},
		jobs.Job{SourceKey: "x", Domain: "two.example"},
	)
	return dir, datasets, resultsPath
}

func readJSON(t *testing.T, path string, into any) {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		t.Fatalf("decode %s: %v\n%s", path, err, data)
	}
}

func TestRecoverFlat(t *testing.T) {
	t.Parallel()

	dir, datasets, resultsPath := fixture(t)
	out := filepath.Join(dir, "recovered.json")
	stats, err := recovery.Recover(context.Background(), recovery.Options{
		Datasets: datasets,
		Results:  resultsPath,
		Output:   out,
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	// one.example/shared, one.example/gone, two.example/x, two.example/shared
	if stats.Occurrences != 4 || stats.Restored != 3 || stats.Missing != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	var got []map[string]any
	readJSON(t, out, &got)
	if len(got) != 3 {
		t.Fatalf("expected 3 restored records, got %d", len(got))
	}
	want := []struct{ domain, id string }{
		{"one.example", "shared:"},
		{"two.example", "x:"},
		{"two.example", "shared:"},
	}
	for i, w := range want {
		if got[i]["domain"] != w.domain || got[i]["id"] != w.id {
			t.Fatalf("record %d: expected %s/%s, got %v/%v", i, w.domain, w.id, got[i]["domain"], got[i]["id"])
		}
	}
	if got[1]["error"] != "status 500: boom" {
		t.Fatalf("expected error record carried through, got %v", got[1])
	}
}

func TestRecoverRestoreOrder(t *testing.T) {
	t.Parallel()

	dir, datasets, resultsPath := fixture(t)
	out := filepath.Join(dir, "nested", "recovered.json")
	stats, err := recovery.Recover(context.Background(), recovery.Options{
		Datasets:     datasets,
		Results:      resultsPath,
		Output:       out,
		RestoreOrder: true,
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if stats.Files != 2 || stats.Restored != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	var got [][]map[string]any
	readJSON(t, out, &got)
	if len(got) != 2 {
		t.Fatalf("expected one array per file, got %d", len(got))
	}
	if len(got[0]) != 1 || got[0][0]["domain"] != "one.example" {
		t.Fatalf("expected a.bson first with one restored record, got %v", got[0])
	}
	if len(got[1]) != 2 || got[1][0]["id"] != "x:" || got[1][1]["id"] != "shared:" {
		t.Fatalf("expected b.bson in document order, got %v", got[1])
	}
	if got[1][1]["domain"] != "two.example" {
		t.Fatalf("expected domain from the dataset, got %v", got[1][1]["domain"])
	}
}

func TestRecoverMissingResultsFile(t *testing.T) {
	t.Parallel()

	dir, datasets, _ := fixture(t)
	out := filepath.Join(dir, "recovered.json")
	stats, err := recovery.Recover(context.Background(), recovery.Options{
		Datasets: datasets,
		Results:  filepath.Join(dir, "absent.bson"),
		Output:   out,
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if stats.Restored != 0 {
		t.Fatalf("expected nothing restored, got %+v", stats)
	}
	data, err := os.ReadFile(out)
	if err != nil || string(data) != "[]" {
		t.Fatalf("expected empty array, got %q err=%v", data, err)
	}
}
