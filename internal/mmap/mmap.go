package mmap

import (
	"errors"
	"io"
	"os"
)

// File is a read-only view of a file's contents.
type File struct {
	data   []byte
	mapped bool
	f      *os.File
}

// Open maps the file at path into memory as read-only.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	size := fi.Size()
	if size < 0 {
		_ = f.Close()
		return nil, errors.New("mmap: file size is negative")
	}
	if size == 0 {
		return &File{f: f}, nil
	}

	data, err := mmap(f, int(size))
	if err == nil {
		return &File{data: data, mapped: true, f: f}, nil
	}

	// Mapping refused: read into the heap instead.
	data = make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &File{data: data, f: f}, nil
}

// Bytes returns the file contents. The slice is invalid after Close.
func (m *File) Bytes() []byte { return m.data }

// Len returns the file size in bytes.
func (m *File) Len() int { return len(m.data) }

// Mapped reports whether the contents are backed by a memory mapping.
func (m *File) Mapped() bool { return m.mapped }

// ReadAt implements io.ReaderAt.
func (m *File) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Close unmaps the memory and closes the underlying file.
func (m *File) Close() error {
	if m == nil {
		return nil
	}
	var err error
	if m.mapped && m.data != nil {
		err = munmap(m.data)
	}
	m.data = nil
	m.mapped = false
	if m.f != nil {
		if cerr := m.f.Close(); cerr != nil && err == nil {
			err = cerr
		}
		m.f = nil
	}
	return err
}
