package results_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"bundleeval/internal/jobs"
	"bundleeval/internal/results"
)

func job(i int) jobs.Job {
	return jobs.Job{SourceKey: fmt.Sprintf("src%03d", i), SourceMapKey: fmt.Sprintf("map%03d", i), Domain: "example.com"}
}

func TestSuccessRecordCarriesPayload(t *testing.T) {
	rec, err := results.Success(job(1), []byte(`{"bundler":"webpack","libs":[{"name":"react","version":"18.2.0"}],"score":0.75}`))
	if err != nil {
		t.Fatalf("Success: %v", err)
	}
	if rec.ID != "src001:map001" || rec.Status != results.StatusSuccess {
		t.Fatalf("unexpected record %+v", rec)
	}
	if name, ok := rec.Result.Lookup("bundler").StringValueOK(); !ok || name != "webpack" {
		t.Fatalf("payload not preserved: %v", rec.Result)
	}
	if _, err := results.Success(job(1), []byte(`[1,2,3]`)); err == nil {
		t.Fatal("expected error for non-object payload")
	}
}

func TestSuccessAcceptsDollarKeys(t *testing.T) {
	rec, err := results.Success(job(2), []byte(`{"$weird": 1}`))
	if err != nil {
		t.Fatalf("Success: %v", err)
	}
	if _, err := rec.Result.LookupErr("$weird"); err != nil {
		t.Fatalf("expected $weird key: %v", err)
	}
}

func TestConcurrentAppendsNeverInterleave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bson")
	const writers, perWriter = 8, 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			sink := results.NewSink(path)
			for i := 0; i < perWriter; i++ {
				rec := results.Failure(job(w*perWriter+i), "boom")
				rec.Worker = w
				if err := sink.Append(context.Background(), rec); err != nil {
					t.Errorf("Append: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	loaded, stats, err := results.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if stats.Truncated != 0 {
		t.Fatalf("unexpected truncated tail of %d bytes", stats.Truncated)
	}
	if len(loaded) != writers*perWriter || stats.Records != writers*perWriter {
		t.Fatalf("expected %d records, got %d (%d scanned)", writers*perWriter, len(loaded), stats.Records)
	}
}

func TestReconcileRemovesFinishedJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bson")
	set := jobs.NewSet()
	for i := 0; i < 5; i++ {
		set.Add(job(i))
	}

	stats, err := results.Reconcile(set, path)
	if err != nil || stats.Done != 0 || set.Len() != 5 {
		t.Fatalf("missing file should leave set intact: %+v %v", stats, err)
	}

	sink := results.NewSink(path)
	for _, i := range []int{1, 3} {
		if err := sink.Append(context.Background(), results.Ignored(job(i), "no pnpm")); err != nil {
			t.Fatal(err)
		}
	}
	legacy, err := bson.Marshal(bson.D{{Key: "id", Value: job(4).ID()}, {Key: "error", Value: "Internal Server Error"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := sink.AppendRaw(context.Background(), legacy); err != nil {
		t.Fatal(err)
	}

	stats, err = results.Reconcile(set, path)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if stats.Done != 3 || set.Len() != 2 || !set.Contains(job(0).ID()) || !set.Contains(job(2).ID()) {
		t.Fatalf("unexpected reconcile result %+v, remaining %v", stats, set.Sorted())
	}

	again, err := results.Reconcile(set, path)
	if err != nil || again.Done != 0 || set.Len() != 2 {
		t.Fatalf("reconcile should be idempotent: %+v %v", again, err)
	}
}

func TestReconcileEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bson")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	set := jobs.NewSet()
	set.Add(job(1))
	stats, err := results.Reconcile(set, path)
	if err != nil || stats.Records != 0 || set.Len() != 1 {
		t.Fatalf("unexpected %+v %v", stats, err)
	}
}

func TestTruncatedTailIsToleratedAndRepaired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bson")
	sink := results.NewSink(path)
	for i := 0; i < 3; i++ {
		if err := sink.Append(context.Background(), results.Failure(job(i), "x")); err != nil {
			t.Fatal(err)
		}
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Truncate(path, info.Size()-7); err != nil {
		t.Fatal(err)
	}

	set := jobs.NewSet()
	for i := 0; i < 3; i++ {
		set.Add(job(i))
	}
	stats, err := results.Reconcile(set, path)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if stats.Records != 2 || stats.Truncated == 0 || set.Len() != 1 || !set.Contains(job(2).ID()) {
		t.Fatalf("unexpected %+v remaining %v", stats, set.Sorted())
	}

	if err := sink.WithLock(context.Background(), func() error {
		return results.TruncateTail(path, stats.Valid)
	}); err != nil {
		t.Fatal(err)
	}
	if err := sink.Append(context.Background(), results.Failure(job(2), "y")); err != nil {
		t.Fatal(err)
	}
	counts, scan, err := results.Count(path)
	if err != nil {
		t.Fatal(err)
	}
	if scan.Truncated != 0 || counts.Total != 3 || counts.Error != 3 {
		t.Fatalf("unexpected counts %+v scan %+v", counts, scan)
	}
}

func TestCountClassifiesLegacyRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bson")
	sink := results.NewSink(path)
	docs := []bson.D{
		{{Key: "id", Value: "a:"}, {Key: "libs", Value: bson.A{}}},
		{{Key: "id", Value: "b:"}, {Key: "error", Value: "boom"}},
		{{Key: "id", Value: "c:m"}, {Key: "ignore", Value: true}},
		{{Key: "id", Value: "a:"}, {Key: "status", Value: "success"}, {Key: "cached", Value: true}},
	}
	for _, doc := range docs {
		raw, err := bson.Marshal(doc)
		if err != nil {
			t.Fatal(err)
		}
		if err := sink.AppendRaw(context.Background(), raw); err != nil {
			t.Fatal(err)
		}
	}
	counts, _, err := results.Count(path)
	if err != nil {
		t.Fatal(err)
	}
	want := results.Counts{Total: 4, Success: 2, Error: 1, Ignored: 1, Cached: 1, Duplicates: 1}
	if counts != want {
		t.Fatalf("got %+v want %+v", counts, want)
	}
}

func TestStatusOfRecordWithoutID(t *testing.T) {
	if got := results.StatusOf(nil); got != results.StatusUnknown {
		t.Fatalf("nil record status = %q", got)
	}
	raw, err := bson.Marshal(bson.D{{Key: "libs", Value: bson.A{}}})
	if err != nil {
		t.Fatal(err)
	}
	if got := results.StatusOf(raw); got != results.StatusUnknown {
		t.Fatalf("record without id status = %q", got)
	}
	rec, err := results.Success(job(1), []byte(`{"libs":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	raw, err = bson.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	if got := results.StatusOf(raw); got != results.StatusSuccess {
		t.Fatalf("success record status = %q", got)
	}
}
