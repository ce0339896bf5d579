package persistence

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/idmap"
	"github.com/hupe1980/vecforge/internal/mmap"
)

// Save writes m to path. The file appears under its final name only once it
// is complete and synced.
func Save(path string, m *idmap.Map, optFns ...func(o *Options)) (err error) {
	opts := newOptions(optFns)
	start := time.Now()
	var written int64
	defer func() {
		opts.Logger.LogSave(context.Background(), path, written, err)
		opts.Metrics.RecordSave(written, time.Since(start), err)
	}()

	if _, err := check("persistence.save", m, opts); err != nil {
		return err
	}

	err = saveToFile(path, func(w *bufio.Writer) error {
		n, err := encode(w, m, opts)
		written = n
		return err
	})
	return err
}

// saveToFile writes through a temp file in the same directory and renames
// it over path.
func saveToFile(path string, write func(w *bufio.Writer) error) error {
	const op = "persistence.save"
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return errs.IO(op, path, err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	_ = tmp.Chmod(0o644)

	buf := bufio.NewWriterSize(tmp, 256*1024)
	if err := write(buf); err != nil {
		if errs.CodeOf(err) != "" {
			return err
		}
		return errs.IO(op, path, err)
	}
	if err := buf.Flush(); err != nil {
		return errs.IO(op, path, err)
	}
	if err := tmp.Sync(); err != nil {
		return errs.IO(op, path, err)
	}
	if err := tmp.Close(); err != nil {
		return errs.IO(op, path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return errs.IO(op, path, err)
	}
	tmpName = ""

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// Load reads the index at path. The file is memory-mapped while decoding;
// the returned index owns copies of its arrays.
func Load(path string, optFns ...func(o *Options)) (m *idmap.Map, err error) {
	opts := newOptions(optFns)
	start := time.Now()
	var size int64
	defer func() {
		n := 0
		if m != nil {
			n = m.Len()
		}
		opts.Logger.LogLoad(context.Background(), path, n, err)
		opts.Metrics.RecordLoad(size, time.Since(start), err)
	}()

	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	size = int64(f.Len())

	return decode(f.Bytes())
}

// Inspect decodes the header and prelude of the file at path.
func Inspect(path string) (Info, error) {
	f, err := openFile(path)
	if err != nil {
		return Info{}, err
	}
	defer func() { _ = f.Close() }()
	return inspect(f.Bytes())
}

func openFile(path string) (*mmap.File, error) {
	f, err := mmap.Open(path)
	if err != nil {
		return nil, errs.IO("persistence.load", path, err)
	}
	return f, nil
}
