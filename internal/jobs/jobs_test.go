package jobs_test

import (
	"context"
	"path/filepath"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"bundleeval/internal/config"
	"bundleeval/internal/jobs"
	"bundleeval/internal/logging"
	"bundleeval/internal/testsupport"
)

func defaultFilter(requiresMap bool) jobs.Filter {
	return jobs.Filter{RequiresSourceMap: requiresMap, ExcludeCDN: true, CDNHosts: config.DefaultCDNHosts}
}

func writeFixture(t *testing.T, dir string) []string {
	t.Helper()
	first := testsupport.WriteDataset(t, dir, "a.bson",
		testsupport.CrawlDoc("one.example",
			testsupport.Script{URL: "https://one.example/app.js", Source: "s1", SourceMap: "m1"},
			testsupport.Script{URL: "https://one.example/inline.js", Source: "s2"},
			testsupport.Script{URL: "https://cdn.jsdelivr.net/npm/lodash.js", Source: "s3", SourceMap: "m3"},
		),
		testsupport.ErrorDoc("down.example"),
		bson.D{{Key: "domain", Value: "v1.example"}, {Key: "meta", Value: bson.A{}}},
	)
	second := testsupport.WriteDataset(t, dir, "b.bson",
		testsupport.CrawlDoc("two.example",
			testsupport.Script{URL: "https://two.example/app.js", Source: "s1", SourceMap: "m1"},
			testsupport.Script{URL: "https://two.example/other.js", Source: "s4", SourceMap: "m4"},
		),
	)
	return []string{first, second}
}

func TestExtractDeduplicatesAcrossDomains(t *testing.T) {
	paths := writeFixture(t, t.TempDir())
	extractor := jobs.NewExtractor(defaultFilter(false), 2, logging.NewNop())

	set, stats, err := extractor.Extract(context.Background(), paths)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, id := range []string{"s1:m1", "s2:", "s4:m4"} {
		if !set.Contains(id) {
			t.Fatalf("expected job %s in %v", id, set.Sorted())
		}
	}
	if set.Len() != 3 {
		t.Fatalf("expected 3 jobs, got %d", set.Len())
	}
	if stats.Files != 2 || stats.Documents != 3 || stats.Failed != 1 || stats.ParseErrors != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestExtractRequiresSourceMap(t *testing.T) {
	paths := writeFixture(t, t.TempDir())
	set, _, err := jobs.NewExtractor(defaultFilter(true), 0, nil).Extract(context.Background(), paths)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if set.Len() != 2 || set.Contains("s2:") {
		t.Fatalf("unexpected jobs %v", set.Sorted())
	}
}

func TestExtractIsIdempotent(t *testing.T) {
	paths := writeFixture(t, t.TempDir())
	extractor := jobs.NewExtractor(defaultFilter(false), 1, nil)

	first, _, err := extractor.Extract(context.Background(), paths)
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := extractor.Extract(context.Background(), paths)
	if err != nil {
		t.Fatal(err)
	}
	a, b := first.Sorted(), second.Sorted()
	if len(a) != len(b) {
		t.Fatalf("length mismatch %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID() != b[i].ID() {
			t.Fatalf("job %d differs: %s vs %s", i, a[i].ID(), b[i].ID())
		}
	}
}

func TestExtractKeepsCDNWhenNotExcluded(t *testing.T) {
	paths := writeFixture(t, t.TempDir())
	filter := jobs.Filter{CDNHosts: config.DefaultCDNHosts}
	set, _, err := jobs.NewExtractor(filter, 0, nil).Extract(context.Background(), paths)
	if err != nil {
		t.Fatal(err)
	}
	if !set.Contains("s3:m3") {
		t.Fatalf("expected CDN job when exclusion disabled, got %v", set.Sorted())
	}
}

func TestExtractMissingFile(t *testing.T) {
	_, _, err := jobs.NewExtractor(defaultFilter(false), 0, nil).Extract(context.Background(), []string{"/nonexistent/file.bson"})
	if err == nil {
		t.Fatal("expected error for missing dataset")
	}
}

func TestOccurrencesByFilePreservesDocumentOrder(t *testing.T) {
	dir := t.TempDir()
	paths := writeFixture(t, dir)
	extractor := jobs.NewExtractor(defaultFilter(false), 2, nil)

	files, lists, err := extractor.OccurrencesByFile(context.Background(), []string{paths[1], paths[0]})
	if err != nil {
		t.Fatal(err)
	}
	if files[0] != paths[0] || files[1] != paths[1] {
		t.Fatalf("expected sorted file order, got %v", files)
	}
	want := [][]jobs.Occurrence{
		{{Domain: "one.example", JobID: "s1:m1"}, {Domain: "one.example", JobID: "s2:"}},
		{{Domain: "two.example", JobID: "s1:m1"}, {Domain: "two.example", JobID: "s4:m4"}},
	}
	for i := range want {
		if len(lists[i]) != len(want[i]) {
			t.Fatalf("file %d: got %v want %v", i, lists[i], want[i])
		}
		for j := range want[i] {
			if lists[i][j] != want[i][j] {
				t.Fatalf("file %d entry %d: got %v want %v", i, j, lists[i][j], want[i][j])
			}
		}
	}
}

func TestParseID(t *testing.T) {
	job, ok := jobs.ParseID("abc:")
	if !ok || job.SourceKey != "abc" || job.HasSourceMap() {
		t.Fatalf("unexpected parse %+v %v", job, ok)
	}
	job, ok = jobs.ParseID("abc:def")
	if !ok || job.SourceMapKey != "def" || job.ID() != "abc:def" {
		t.Fatalf("unexpected parse %+v %v", job, ok)
	}
	if _, ok := jobs.ParseID("nocolon"); ok {
		t.Fatal("expected failure without separator")
	}
}

func TestExtractKeepsJobsBeforeTruncatedRecord(t *testing.T) {
	dir := t.TempDir()
	valid := testsupport.EncodeDocs(t, testsupport.CrawlDoc("ok.example",
		testsupport.Script{URL: "https://ok.example/app.js", Source: "kept", SourceMap: "kept-map"},
	))
	cutOff := testsupport.EncodeDocs(t, testsupport.CrawlDoc("cut.example",
		testsupport.Script{URL: "https://cut.example/app.js", Source: "lost"},
	))
	path := filepath.Join(dir, "partial.bson")
	testsupport.WriteBytes(t, path, append(valid, cutOff[:len(cutOff)/2]...))

	extractor := jobs.NewExtractor(defaultFilter(false), 1, logging.NewNop())
	set, stats, err := extractor.Extract(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if set.Len() != 1 || !set.Contains("kept:kept-map") {
		t.Fatalf("expected only the complete document's job, got %v", set.Sorted())
	}
	if stats.Documents != 1 || stats.ParseErrors != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
