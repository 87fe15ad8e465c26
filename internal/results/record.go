package results

import (
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"bundleeval/internal/jobs"
)

// Status is the outcome of one job.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusIgnored Status = "ignored"
	// StatusUnknown marks a record that carries no id.
	StatusUnknown Status = ""
)

// Record is one finished job as written to the output file.
type Record struct {
	ID        string    `bson:"id"`
	Source    string    `bson:"source"`
	Map       string    `bson:"map,omitempty"`
	Domain    string    `bson:"domain,omitempty"`
	Status    Status    `bson:"status"`
	Result    bson.Raw  `bson:"result,omitempty"`
	Error     string    `bson:"error,omitempty"`
	Reason    string    `bson:"reason,omitempty"`
	Worker    int       `bson:"worker"`
	ElapsedMS int64     `bson:"elapsed_ms"`
	Cached    bool      `bson:"cached,omitempty"`
	Time      time.Time `bson:"ts"`
}

func base(job jobs.Job, status Status) Record {
	return Record{
		ID:     job.ID(),
		Source: job.SourceKey,
		Map:    job.SourceMapKey,
		Domain: job.Domain,
		Status: status,
		Time:   time.Now().UTC(),
	}
}

// Success builds a record carrying the service's JSON object payload.
func Success(job jobs.Job, payload []byte) (Record, error) {
	doc, err := JSONToBSON(payload)
	if err != nil {
		return Record{}, err
	}
	rec := base(job, StatusSuccess)
	rec.Result = doc
	return rec, nil
}

// Failure builds an error record.
func Failure(job jobs.Job, message string) Record {
	rec := base(job, StatusError)
	rec.Error = message
	return rec
}

// Ignored builds a record for a job the service or strategy declined.
func Ignored(job jobs.Job, reason string) Record {
	rec := base(job, StatusIgnored)
	rec.Reason = reason
	return rec
}

// JSONToBSON converts a JSON object to a BSON document. Plain JSON is read
// as relaxed extended JSON; payloads that extended JSON rejects (for example
// keys starting with "$") fall back to a generic decode.
func JSONToBSON(payload []byte) (bson.Raw, error) {
	var doc bson.D
	if err := bson.UnmarshalExtJSON(payload, false, &doc); err == nil {
		raw, err := bson.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		return raw, nil
	}

	var generic map[string]any
	if err := json.Unmarshal(payload, &generic); err != nil {
		return nil, fmt.Errorf("decode result: response is not a JSON object: %w", err)
	}
	raw, err := bson.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return raw, nil
}

// StatusOf classifies a raw output record. Records written by earlier
// tooling have no status field; for those an "error" field means an error
// and an "ignore" flag means ignored. A record without an id, including a
// nil one, has StatusUnknown.
func StatusOf(raw bson.Raw) Status {
	if _, ok := raw.Lookup("id").StringValueOK(); !ok {
		return StatusUnknown
	}
	if s, ok := raw.Lookup("status").StringValueOK(); ok && s != "" {
		return Status(s)
	}
	if _, err := raw.LookupErr("error"); err == nil {
		return StatusError
	}
	if ignore, ok := raw.Lookup("ignore").BooleanOK(); ok && ignore {
		return StatusIgnored
	}
	return StatusSuccess
}
