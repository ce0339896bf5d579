package blobstore

import (
	"context"
	"fmt"
	"io"

	"github.com/hupe1980/vecforge/errs"
)

// ErrNotFound is returned when a blob does not exist. It is errs.ErrNotFound,
// so callers can match it without importing this package.
var ErrNotFound = errs.ErrNotFound

// Store reads and writes immutable blobs.
type Store interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
	// Create starts a streaming write. The blob becomes visible on Close.
	Create(ctx context.Context, name string) (WritableBlob, error)
	// Put writes a blob in one call.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a stored blob.
type Blob interface {
	io.Closer
	// ReadAt reads len(p) bytes at off. It returns io.EOF when fewer bytes remain.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	// ReadRange streams length bytes starting at off.
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)
	// Size returns the size of the blob in bytes.
	Size() int64
}

// WritableBlob is a blob under construction.
type WritableBlob interface {
	io.WriteCloser
	// Sync flushes buffered data where the backend supports it.
	Sync() error
}

// Mappable is implemented by blobs whose contents are addressable in memory.
type Mappable interface {
	// Bytes returns the contents. The slice is valid until the Blob is closed.
	Bytes() []byte
}

// Buckets resolves a bucket name to the Store holding its blobs.
type Buckets func(bucket string) (Store, error)

// Single returns Buckets that serves every bucket from s.
func Single(s Store) Buckets {
	return func(string) (Store, error) { return s, nil }
}

// Upload streams r into name and returns the number of bytes written.
func Upload(ctx context.Context, s Store, name string, r io.Reader) (int64, error) {
	w, err := s.Create(ctx, name)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(w, r)
	if err != nil {
		if a, ok := w.(interface{ Abort() error }); ok {
			_ = a.Abort()
		} else {
			_ = w.Close()
		}
		return n, err
	}
	return n, w.Close()
}

// ReadAll returns the full contents of name.
func ReadAll(ctx context.Context, s Store, name string) ([]byte, error) {
	b, err := s.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = b.Close() }()

	if m, ok := b.(Mappable); ok {
		return append([]byte(nil), m.Bytes()...), nil
	}
	data := make([]byte, b.Size())
	if len(data) == 0 {
		return data, nil
	}
	n, err := b.ReadAt(ctx, data, 0)
	if err != nil && !(err == io.EOF && n == len(data)) {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("blobstore: short read of %q: %d of %d bytes", name, n, len(data))
	}
	return data, nil
}

func notFound(name string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, name)
}

// readAt copies from data at off with io.ReaderAt semantics.
func readAt(data []byte, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("blobstore: negative offset %d", off)
	}
	if off >= int64(len(data)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// rangeOf clamps [off, off+length) to size.
func rangeOf(size, off, length int64) (int64, int64) {
	if off < 0 {
		off = 0
	}
	if off > size {
		off = size
	}
	end := off + length
	if length < 0 || end > size {
		end = size
	}
	return off, end
}
