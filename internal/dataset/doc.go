// Package dataset reads crawl documents out of concatenated BSON files.
//
// A dataset file is mapped read-only and walked record by record; each
// record is validated and decoded in place with bson.Raw lookups, so the
// only allocations are the normalized Document values. Documents without a
// "time" field predate the supported layout and are reported as parse
// errors. A document whose "meta" payload is not an array is an error marker
// left by the crawler and carries no entries.
package dataset
