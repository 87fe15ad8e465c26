package dataset

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"

	"bundleeval/internal/services"
)

// EntryKind classifies a crawl meta entry.
type EntryKind string

const (
	// KindScript is a fetched script whose body (and optional source map)
	// was stored in the object store.
	KindScript EntryKind = "js"
	// KindResource is any other fetched resource.
	KindResource EntryKind = "resource"
	// KindRedirect is an HTTP redirect hop.
	KindRedirect EntryKind = "redirect"
)

// UnknownDomain is reported for documents that carry no domain.
const UnknownDomain = "unknown"

// Entry is one normalized meta record.
type Entry struct {
	Kind         EntryKind
	URL          string
	Status       int
	Location     string
	SourceKey    string
	SourceMapKey string
}

// HasSource reports whether the entry references stored content.
func (e Entry) HasSource() bool {
	return e.SourceKey != ""
}

// Document is one normalized crawl result.
type Document struct {
	Domain  string
	Time    time.Time
	Entries []Entry
	// Failure holds the crawler's error marker when the crawl failed; such
	// documents have no entries.
	Failure string
}

// Failed reports whether the document is an error marker.
func (d Document) Failed() bool {
	return d.Failure != ""
}

// Decode normalizes one raw BSON document.
func Decode(raw bson.Raw) (Document, error) {
	if err := raw.Validate(); err != nil {
		return Document{}, parseError("validate", "invalid bson", err)
	}

	timeVal, err := raw.LookupErr("time")
	if err != nil {
		return Document{}, parseError("decode", "unsupported document without time field", nil)
	}

	doc := Document{Domain: UnknownDomain}
	switch timeVal.Type {
	case bsontype.DateTime:
		doc.Time = timeVal.Time().UTC()
	case bsontype.Double:
		f := timeVal.Double()
		doc.Time = time.Unix(0, int64(f*float64(time.Second))).UTC()
	case bsontype.Int64:
		doc.Time = time.Unix(timeVal.Int64(), 0).UTC()
	case bsontype.Int32:
		doc.Time = time.Unix(int64(timeVal.Int32()), 0).UTC()
	}

	if domain, ok := raw.Lookup("domain").StringValueOK(); ok {
		doc.Domain = domain
	}

	meta, err := raw.LookupErr("meta")
	if err != nil {
		return Document{}, parseError("decode", "document has no meta field", nil)
	}
	arr, ok := meta.ArrayOK()
	if !ok {
		doc.Failure = failureText(meta)
		return doc, nil
	}

	values, err := arr.Values()
	if err != nil {
		return Document{}, parseError("decode", "meta array", err)
	}
	doc.Entries = make([]Entry, 0, len(values))
	for i, value := range values {
		entryDoc, ok := value.DocumentOK()
		if !ok {
			return Document{}, parseError("decode", fmt.Sprintf("meta[%d] is %s, not a document", i, value.Type), nil)
		}
		entry, err := decodeEntry(entryDoc)
		if err != nil {
			return Document{}, parseError("decode", fmt.Sprintf("meta[%d]", i), err)
		}
		doc.Entries = append(doc.Entries, entry)
	}
	return doc, nil
}

func decodeEntry(raw bson.Raw) (Entry, error) {
	kind, _ := raw.Lookup("type").StringValueOK()
	entry := Entry{Kind: EntryKind(kind)}
	entry.URL, _ = raw.Lookup("url").StringValueOK()
	entry.Location, _ = raw.Lookup("location").StringValueOK()
	if status, ok := raw.Lookup("status").AsInt64OK(); ok {
		entry.Status = int(status)
	}

	if source, err := raw.LookupErr("source"); err == nil && source.Type != bsontype.Null {
		key, ok := source.StringValueOK()
		if !ok {
			return Entry{}, fmt.Errorf("source has unexpected type %s", source.Type)
		}
		entry.SourceKey = key
	}
	if sourceMap, err := raw.LookupErr("sourceMap"); err == nil && sourceMap.Type != bsontype.Null {
		key, ok := sourceMap.StringValueOK()
		if !ok {
			return Entry{}, fmt.Errorf("sourceMap has unexpected type %s", sourceMap.Type)
		}
		entry.SourceMapKey = key
	}
	return entry, nil
}

func failureText(v bson.RawValue) string {
	if s, ok := v.StringValueOK(); ok && s != "" {
		return s
	}
	if v.Type == bsontype.Null {
		return "null"
	}
	return v.Type.String()
}

func parseError(operation, message string, err error) error {
	return services.Wrap(services.ErrDocumentParse, "dataset", operation, message, err)
}
