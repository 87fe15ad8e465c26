package objectstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

var (
	// ErrNotFound reports a content hash missing from the index.
	ErrNotFound = errors.New("object not found")
	// ErrCorruptBlob reports a blob that failed to decompress.
	ErrCorruptBlob = errors.New("corrupt blob")
)

var xzMagic = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}

// Store resolves content hashes against an indexed archive buffer.
type Store struct {
	buf   []byte
	index Index
	cache *blobCache
}

// New returns a Store over buf. cacheBytes bounds the decompressed blob
// cache; zero disables caching.
func New(buf []byte, index Index, cacheBytes int64) *Store {
	return &Store{buf: buf, index: index, cache: newBlobCache(cacheBytes)}
}

// Has reports whether key is present in the index.
func (s *Store) Has(key string) bool {
	return s.index.Has(key)
}

// Len returns the number of indexed blobs.
func (s *Store) Len() int {
	return len(s.index)
}

// Raw returns the compressed bytes addressed by key without copying.
func (s *Store) Raw(key string) ([]byte, error) {
	entry, ok := s.index[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return s.buf[entry.Offset : entry.Offset+entry.Size], nil
}

// Resolve returns the decompressed blob for key. The returned slice is
// shared with the cache and must not be modified.
func (s *Store) Resolve(key string) ([]byte, error) {
	if data, ok := s.cache.get(key); ok {
		return data, nil
	}
	raw, err := s.Raw(key)
	if err != nil {
		return nil, err
	}
	data, err := Decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptBlob, key, err)
	}
	s.cache.add(key, data)
	return data, nil
}

// CacheStats returns the number of cached blobs and their total size.
func (s *Store) CacheStats() (entries int, bytes int64) {
	return s.cache.stats()
}

// Decompress inflates an xz stream, falling back to the legacy LZMA alone
// format when the xz magic is absent.
func Decompress(raw []byte) ([]byte, error) {
	var (
		r   io.Reader
		err error
	)
	if bytes.HasPrefix(raw, xzMagic) {
		r, err = xz.NewReader(bytes.NewReader(raw))
	} else {
		r, err = lzma.NewReader(bytes.NewReader(raw))
	}
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if _, err := io.Copy(&out, r); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
