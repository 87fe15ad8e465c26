// Package sqlitestore opens the SQLite databases bundleeval keeps on disk
// and applies the shared conventions: connection pragmas, retry on
// SQLITE_BUSY, and a schema_version table checked on open.
//
// The run manifest and the request cache both build on it.
package sqlitestore
