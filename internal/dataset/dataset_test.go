package dataset_test

import (
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"bundleeval/internal/dataset"
	"bundleeval/internal/services"
	"bundleeval/internal/testsupport"
)

func TestDecodeNormalizesEntries(t *testing.T) {
	raw := testsupport.EncodeDocs(t, testsupport.CrawlDoc("example.com",
		testsupport.Script{URL: "https://example.com/app.js", Source: "aa", SourceMap: "bb"},
		testsupport.Script{URL: "https://example.com/vendor.js", Source: "cc"},
	))

	doc, err := dataset.Decode(bson.Raw(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if doc.Domain != "example.com" || doc.Failed() {
		t.Fatalf("unexpected document header: %+v", doc)
	}
	if !doc.Time.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected time %v", doc.Time)
	}
	if len(doc.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(doc.Entries))
	}
	redirect := doc.Entries[0]
	if redirect.Kind != dataset.KindRedirect || redirect.Status != 301 || redirect.Location != "https://example.com/" {
		t.Fatalf("unexpected redirect %+v", redirect)
	}
	script := doc.Entries[1]
	if script.Kind != dataset.KindScript || script.SourceKey != "aa" || script.SourceMapKey != "bb" || script.Status != 200 {
		t.Fatalf("unexpected script %+v", script)
	}
	if doc.Entries[2].SourceMapKey != "" || !doc.Entries[2].HasSource() {
		t.Fatalf("unexpected map-less script %+v", doc.Entries[2])
	}
}

func TestDecodeErrorMarker(t *testing.T) {
	raw := testsupport.EncodeDocs(t, testsupport.ErrorDoc("broken.example"))
	doc, err := dataset.Decode(bson.Raw(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !doc.Failed() || len(doc.Entries) != 0 {
		t.Fatalf("expected error marker document, got %+v", doc)
	}
}

func TestDecodeRejectsUnsupportedDocuments(t *testing.T) {
	cases := map[string]bson.D{
		"no time":        {{Key: "domain", Value: "v1.example"}, {Key: "meta", Value: bson.A{}}},
		"no meta":        {{Key: "domain", Value: "x"}, {Key: "time", Value: time.Now()}},
		"bad source":     {{Key: "time", Value: time.Now()}, {Key: "meta", Value: bson.A{bson.D{{Key: "type", Value: "js"}, {Key: "source", Value: int32(5)}}}}},
		"scalar in meta": {{Key: "time", Value: time.Now()}, {Key: "meta", Value: bson.A{"oops"}}},
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			raw := testsupport.EncodeDocs(t, doc)
			_, err := dataset.Decode(bson.Raw(raw))
			if !errors.Is(err, services.ErrDocumentParse) {
				t.Fatalf("expected document parse error, got %v", err)
			}
		})
	}
}

func TestDecodeMissingDomainIsUnknown(t *testing.T) {
	raw := testsupport.EncodeDocs(t, bson.D{{Key: "time", Value: time.Now()}, {Key: "meta", Value: bson.A{}}})
	doc, err := dataset.Decode(bson.Raw(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if doc.Domain != dataset.UnknownDomain {
		t.Fatalf("expected unknown domain, got %q", doc.Domain)
	}
}

func TestReaderDetectsTruncation(t *testing.T) {
	buf := testsupport.EncodeDocs(t, testsupport.ErrorDoc("a"), testsupport.ErrorDoc("b"))
	reader := dataset.NewReader(buf[:len(buf)-3])

	if _, err := reader.Next(); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if _, err := reader.Next(); !errors.Is(err, dataset.ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}

	full := dataset.NewReader(buf)
	for i := 0; i < 2; i++ {
		if _, err := full.Next(); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	if _, err := full.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
	if full.Offset() != len(buf) {
		t.Fatalf("offset %d != %d", full.Offset(), len(buf))
	}
}

func TestFileWalkSkipsParseErrors(t *testing.T) {
	path := testsupport.WriteDataset(t, t.TempDir(), "crawl.bson",
		testsupport.CrawlDoc("one.example", testsupport.Script{URL: "https://one.example/a.js", Source: "a1"}),
		bson.D{{Key: "domain", Value: "legacy.example"}, {Key: "meta", Value: bson.A{}}},
		testsupport.ErrorDoc("two.example"),
	)
	file, err := dataset.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer file.Close()

	var domains []string
	var parseErrors []int
	err = file.Walk(dataset.Visitor{
		OnDocument: func(_ int, doc dataset.Document) error {
			domains = append(domains, doc.Domain)
			return nil
		},
		OnError: func(index int, _ error) error {
			parseErrors = append(parseErrors, index)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(domains) != 2 || domains[0] != "one.example" || domains[1] != "two.example" {
		t.Fatalf("unexpected domains %v", domains)
	}
	if len(parseErrors) != 1 || parseErrors[0] != 1 {
		t.Fatalf("unexpected parse errors %v", parseErrors)
	}
}

func TestFileWalkReportsTruncatedTail(t *testing.T) {
	full := testsupport.EncodeDocs(t,
		testsupport.CrawlDoc("one.example", testsupport.Script{URL: "https://one.example/a.js", Source: "a1"}),
		testsupport.CrawlDoc("two.example", testsupport.Script{URL: "https://two.example/b.js", Source: "b1"}),
	)
	first := len(testsupport.EncodeDocs(t,
		testsupport.CrawlDoc("one.example", testsupport.Script{URL: "https://one.example/a.js", Source: "a1"}),
	))
	cut := first + (len(full)-first)/2
	path := filepath.Join(t.TempDir(), "crawl.bson")
	testsupport.WriteBytes(t, path, full[:cut])

	file, err := dataset.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer file.Close()

	var domains []string
	var errs []error
	err = file.Walk(dataset.Visitor{
		OnDocument: func(_ int, doc dataset.Document) error {
			domains = append(domains, doc.Domain)
			return nil
		},
		OnError: func(index int, err error) error {
			if index != 1 {
				t.Errorf("error reported for index %d, want 1", index)
			}
			errs = append(errs, err)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(domains) != 1 || domains[0] != "one.example" {
		t.Fatalf("unexpected domains %v", domains)
	}
	if len(errs) != 1 || !errors.Is(errs[0], services.ErrDocumentParse) || !errors.Is(errs[0], dataset.ErrTruncated) {
		t.Fatalf("expected one truncation parse error, got %v", errs)
	}
}
