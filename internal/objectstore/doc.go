// Package objectstore serves content-addressed blobs out of a tar archive
// held in one shared, read-only buffer (normally a fileutil.Mapping).
//
// BuildIndex walks the tar stream a single time and records where each
// entry's data lives; Store.Resolve decompresses the addressed slice (xz, or
// legacy .lzma) and keeps recently used blobs in a size-bounded LRU.
package objectstore
