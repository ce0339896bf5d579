package persistence

import (
	"bufio"
	"context"
	"time"

	"github.com/hupe1980/vecforge/blobstore"
	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/idmap"
)

// SaveBlob encodes m into the blob name of store. The blob is only
// committed when encoding succeeds.
func SaveBlob(ctx context.Context, store blobstore.Store, name string, m *idmap.Map, optFns ...func(o *Options)) (err error) {
	const op = "persistence.save_blob"
	opts := newOptions(optFns)
	start := time.Now()
	var written int64
	defer func() {
		opts.Logger.LogSave(ctx, name, written, err)
		opts.Metrics.RecordSave(written, time.Since(start), err)
	}()

	if _, err := check(op, m, opts); err != nil {
		return err
	}

	w, err := store.Create(ctx, name)
	if err != nil {
		return errs.IO(op, name, err)
	}
	buf := bufio.NewWriterSize(w, 256*1024)
	written, err = encode(buf, m, opts)
	if err == nil {
		err = buf.Flush()
	}
	if err != nil {
		if a, ok := w.(interface{ Abort() error }); ok {
			_ = a.Abort()
		} else {
			_ = w.Close()
		}
		return errs.IO(op, name, err)
	}
	if err := w.Close(); err != nil {
		return errs.IO(op, name, err)
	}
	return nil
}

// LoadBlob decodes the index stored in blob name.
func LoadBlob(ctx context.Context, store blobstore.Store, name string, optFns ...func(o *Options)) (m *idmap.Map, err error) {
	const op = "persistence.load_blob"
	opts := newOptions(optFns)
	start := time.Now()
	var size int64
	defer func() {
		n := 0
		if m != nil {
			n = m.Len()
		}
		opts.Logger.LogLoad(ctx, name, n, err)
		opts.Metrics.RecordLoad(size, time.Since(start), err)
	}()

	data, err := blobstore.ReadAll(ctx, store, name)
	if err != nil {
		return nil, errs.IO(op, name, err)
	}
	size = int64(len(data))
	return decode(data)
}
