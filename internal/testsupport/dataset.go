package testsupport

import (
	"path/filepath"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// Script describes one "js" meta entry of a crawl document.
type Script struct {
	URL       string
	Source    string
	SourceMap string
}

// CrawlDoc builds a version 2 crawl document with the given scripts.
func CrawlDoc(domain string, scripts ...Script) bson.D {
	meta := bson.A{
		bson.D{{Key: "type", Value: "redirect"}, {Key: "url", Value: "http://" + domain + "/"}, {Key: "status", Value: int32(301)}, {Key: "location", Value: "https://" + domain + "/"}},
	}
	for _, s := range scripts {
		entry := bson.D{
			{Key: "type", Value: "js"},
			{Key: "url", Value: s.URL},
			{Key: "status", Value: int32(200)},
			{Key: "source", Value: s.Source},
		}
		if s.SourceMap != "" {
			entry = append(entry, bson.E{Key: "sourceMap", Value: s.SourceMap})
		}
		meta = append(meta, entry)
	}
	return bson.D{
		{Key: "domain", Value: domain},
		{Key: "time", Value: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		{Key: "meta", Value: meta},
	}
}

// ErrorDoc builds a crawl document whose meta payload is an error marker.
func ErrorDoc(domain string) bson.D {
	return bson.D{
		{Key: "domain", Value: domain},
		{Key: "time", Value: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		{Key: "meta", Value: "net::ERR_NAME_NOT_RESOLVED"},
	}
}

// EncodeDocs concatenates the BSON encoding of docs.
func EncodeDocs(t testing.TB, docs ...any) []byte {
	t.Helper()

	var out []byte
	for _, doc := range docs {
		raw, err := bson.Marshal(doc)
		if err != nil {
			t.Fatalf("bson marshal: %v", err)
		}
		out = append(out, raw...)
	}
	return out
}

// WriteDataset writes docs as a concatenated BSON dataset file and returns its path.
func WriteDataset(t testing.TB, dir, name string, docs ...any) string {
	t.Helper()

	path := filepath.Join(dir, name)
	WriteBytes(t, path, EncodeDocs(t, docs...))
	return path
}
