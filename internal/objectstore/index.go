package objectstore

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
)

// Entry locates one blob inside the archive buffer.
type Entry struct {
	Offset int64
	Size   int64
}

// Index maps content hashes to their location in the archive buffer.
type Index map[string]Entry

// Has reports whether key is indexed.
func (i Index) Has(key string) bool {
	_, ok := i[key]
	return ok
}

// BuildIndex performs one forward pass over the tar archive held in buf and
// records, for every regular entry, the trailing path component of its name
// and the offset and size of its data. A later entry with the same key
// replaces an earlier one.
func BuildIndex(buf []byte) (Index, error) {
	reader := bytes.NewReader(buf)
	tr := tar.NewReader(reader)
	index := make(Index)

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar header after %d entries: %w", len(index), err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		key := path.Base(hdr.Name)
		if key == "." || key == "/" || key == "" {
			continue
		}
		offset := reader.Size() - int64(reader.Len())
		if offset+hdr.Size > int64(len(buf)) {
			return nil, fmt.Errorf("tar entry %s: data [%d,+%d) beyond archive end %d", hdr.Name, offset, hdr.Size, len(buf))
		}
		index[key] = Entry{Offset: offset, Size: hdr.Size}
	}
	return index, nil
}
