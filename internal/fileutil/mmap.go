package fileutil

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Mapping is a read-only shared memory mapping of a file.
type Mapping struct {
	path string
	data []byte
}

// Map maps path read-only with MAP_SHARED.
func Map(path string) (*Mapping, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("map %s: is a directory", path)
	}
	size := info.Size()
	if size == 0 {
		return &Mapping{path: path}, nil
	}
	if int64(int(size)) != size {
		return nil, fmt.Errorf("map %s: size %d exceeds address space", path, size)
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &Mapping{path: path, data: data}, nil
}

// Bytes returns the mapped region. The slice must not be written to and is
// invalid after Close.
func (m *Mapping) Bytes() []byte {
	if m == nil {
		return nil
	}
	return m.data
}

// Len returns the mapped size in bytes.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.data)
}

// Path returns the mapped file path.
func (m *Mapping) Path() string {
	if m == nil {
		return ""
	}
	return m.path
}

// AdviseRandom hints the kernel that access will be scattered.
func (m *Mapping) AdviseRandom() error {
	if m == nil || len(m.data) == 0 {
		return nil
	}
	return unix.Madvise(m.data, unix.MADV_RANDOM)
}

// Close unmaps the region.
func (m *Mapping) Close() error {
	if m == nil || m.data == nil {
		return nil
	}
	data := m.data
	m.data = nil
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap %s: %w", m.path, err)
	}
	return nil
}
