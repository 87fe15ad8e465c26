package dataset

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson"

	"bundleeval/internal/fileutil"
)

// minDocumentSize is the encoded size of an empty BSON document.
const minDocumentSize = 5

// ErrTruncated reports a record whose length prefix runs past the end of the
// buffer.
var ErrTruncated = errors.New("truncated bson record")

// Reader walks concatenated BSON records in a byte buffer without copying.
type Reader struct {
	buf    []byte
	offset int
}

// NewReader returns a Reader over buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Offset returns the byte position of the next record.
func (r *Reader) Offset() int {
	return r.offset
}

// Next returns the next record as a view into the buffer. It returns io.EOF
// once the buffer is exhausted and ErrTruncated when the remaining bytes do
// not hold a complete record.
func (r *Reader) Next() (bson.Raw, error) {
	remaining := len(r.buf) - r.offset
	if remaining == 0 {
		return nil, io.EOF
	}
	if remaining < 4 {
		return nil, fmt.Errorf("%w: %d trailing bytes at offset %d", ErrTruncated, remaining, r.offset)
	}
	size := int(int32(binary.LittleEndian.Uint32(r.buf[r.offset:])))
	if size < minDocumentSize {
		return nil, fmt.Errorf("%w: invalid length %d at offset %d", ErrTruncated, size, r.offset)
	}
	if size > remaining {
		return nil, fmt.Errorf("%w: record of %d bytes at offset %d, %d available", ErrTruncated, size, r.offset, remaining)
	}
	raw := bson.Raw(r.buf[r.offset : r.offset+size])
	r.offset += size
	return raw, nil
}

// File is a memory-mapped dataset file.
type File struct {
	Path    string
	mapping *fileutil.Mapping
}

// Open maps a dataset file for reading.
func Open(path string) (*File, error) {
	mapping, err := fileutil.Map(path)
	if err != nil {
		return nil, err
	}
	return &File{Path: path, mapping: mapping}, nil
}

// Reader returns a new record reader positioned at the start of the file.
func (f *File) Reader() *Reader {
	return NewReader(f.mapping.Bytes())
}

// Size returns the file size in bytes.
func (f *File) Size() int {
	return f.mapping.Len()
}

// Close unmaps the file.
func (f *File) Close() error {
	return f.mapping.Close()
}

// Visitor receives each decoded document in file order. Documents that fail
// to decode, and a truncated record at the end of the file, are passed to
// OnError instead; returning a non-nil error from either callback stops the
// walk.
type Visitor struct {
	OnDocument func(index int, doc Document) error
	OnError    func(index int, err error) error
}

// Walk decodes every record in the file in order.
func (f *File) Walk(v Visitor) error {
	reader := f.Reader()
	for index := 0; ; index++ {
		raw, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, ErrTruncated) {
			// Nothing past a damaged length prefix can be framed; keep what
			// was read so far.
			if v.OnError != nil {
				return v.OnError(index, parseError("read", f.Path, err))
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", f.Path, err)
		}
		doc, err := Decode(raw)
		if err != nil {
			if v.OnError != nil {
				if err := v.OnError(index, err); err != nil {
					return err
				}
			}
			continue
		}
		if v.OnDocument != nil {
			if err := v.OnDocument(index, doc); err != nil {
				return err
			}
		}
	}
}
