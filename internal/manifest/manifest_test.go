package manifest_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"bundleeval/internal/jobs"
	"bundleeval/internal/manifest"
	"bundleeval/internal/objectstore"
)

func TestCreateThenOpenReadOnly(t *testing.T) {
	ctx := context.Background()
	path := manifest.PathIn(t.TempDir())
	index := objectstore.Index{
		"aa": {Offset: 512, Size: 40},
		"bb": {Offset: 1536, Size: 120},
	}
	list := []jobs.Job{
		{SourceKey: "aa", SourceMapKey: "bb", Domain: "one.example"},
		{SourceKey: "bb", Domain: "two.example"},
	}
	run := manifest.Run{ID: "run-1", Archive: "/data/store.tar", Output: "/data/out.bson", Strategy: "versions", Endpoint: "/identify/versions/no_compartments", RequiresSourceMap: true, Workers: 4}

	created, err := manifest.Create(ctx, path, run, index, list)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := created.Close(); err != nil {
		t.Fatal(err)
	}

	m, err := manifest.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	got, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got.ID != "run-1" || got.TotalJobs != 2 || !got.RequiresSourceMap || got.Workers != 4 || got.CreatedAt.IsZero() {
		t.Fatalf("unexpected run %+v", got)
	}

	for ticket, want := range list {
		job, err := m.Job(ctx, int64(ticket))
		if err != nil {
			t.Fatalf("Job(%d): %v", ticket, err)
		}
		if job != want {
			t.Fatalf("Job(%d) = %+v want %+v", ticket, job, want)
		}
	}
	if _, err := m.Job(ctx, 2); !errors.Is(err, manifest.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}

	loaded, err := m.Index(ctx)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if len(loaded) != 2 || loaded["bb"] != index["bb"] {
		t.Fatalf("unexpected index %v", loaded)
	}
}

func TestCreateReplacesPreviousManifest(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), manifest.FileName)

	first, err := manifest.Create(ctx, path, manifest.Run{ID: "a"}, nil, []jobs.Job{{SourceKey: "x"}})
	if err != nil {
		t.Fatal(err)
	}
	first.Close()

	second, err := manifest.Create(ctx, path, manifest.Run{ID: "b"}, nil, nil)
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	defer second.Close()
	run, err := second.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if run.ID != "b" || run.TotalJobs != 0 {
		t.Fatalf("expected replaced manifest, got %+v", run)
	}
}
