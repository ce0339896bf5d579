package service

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/hupe1980/vecforge/blobstore"
	"github.com/hupe1980/vecforge/dataset"
	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/internal/resource"
	"github.com/hupe1980/vecforge/jobs"
	"github.com/hupe1980/vecforge/logging"
	"github.com/hupe1980/vecforge/persistence"
)

// IndexSuffix is appended to the source object name, followed by the device type.
const IndexSuffix = persistence.Extension + "."

// IndexLocation returns the object name an index built from object on
// deviceType is uploaded to.
func IndexLocation(object, deviceType string) string {
	return object + IndexSuffix + deviceType
}

// run executes one build request and returns its result.
func (s *Service) run(ctx context.Context, log *logging.Logger, req jobs.Request) (*jobs.Result, error) {
	const op = "service.run"
	total := time.Now()
	devType := s.DeviceType()
	res := &jobs.Result{
		Bucket:        req.BucketName,
		IndexLocation: IndexLocation(req.ObjectLocation, devType),
		DeviceType:    devType,
		Vectors:       req.NumberOfVectors,
		Dimensions:    req.Dimensions,
	}

	store, err := s.buckets(req.BucketName)
	if err != nil {
		return nil, err
	}

	phase := time.Now()
	ds, err := s.download(ctx, store, req)
	if err != nil {
		return nil, err
	}
	res.Stats.DownloadSeconds = time.Since(phase).Seconds()
	log.DebugContext(ctx, "dataset downloaded", "seconds", res.Stats.DownloadSeconds)

	m, timings, err := s.pipeline.Build(ctx, ds)
	if err != nil {
		return nil, err
	}
	res.Stats.BuildSeconds = timings.Build.Seconds()
	res.Stats.TransferSeconds = timings.Transfer.Seconds()

	// Jobs on objects with the same base name must not share a temp file.
	dir, err := os.MkdirTemp(s.opts.TempDir, "vecforge-job-*")
	if err != nil {
		return nil, errs.IO(op, s.opts.TempDir, err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.WarnContext(ctx, "removing temp index failed", "path", dir, "error", err)
		}
	}()
	local := filepath.Join(dir, path.Base(req.ObjectLocation)+IndexSuffix+devType)

	phase = time.Now()
	err = persistence.Save(local, m, func(o *persistence.Options) {
		o.Compression = s.opts.Compression
		o.Logger = log
		o.Metrics = s.opts.Metrics
	})
	if err != nil {
		return nil, err
	}
	res.Stats.WriteSeconds = time.Since(phase).Seconds()

	phase = time.Now()
	f, err := os.Open(local)
	if err != nil {
		return nil, errs.IO(op, local, err)
	}
	defer func() { _ = f.Close() }()
	n, err := blobstore.Upload(ctx, store, res.IndexLocation, resource.NewReader(ctx, f, s.rc))
	if err != nil {
		return nil, errs.IO(op, req.BucketName+"/"+res.IndexLocation, err)
	}
	res.IndexBytes = n
	res.Stats.UploadSeconds = time.Since(phase).Seconds()
	res.Stats.TotalSeconds = time.Since(total).Seconds()
	return res, nil
}

// download checks that the object holds exactly N*D float32 values and
// parses it with ids 0..N-1.
func (s *Service) download(ctx context.Context, store blobstore.Store, req jobs.Request) (*dataset.Dataset, error) {
	const op = "service.download"
	name := req.ObjectLocation

	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = blob.Close() }()

	want := dataset.RawSize(req.NumberOfVectors, req.Dimensions)
	if blob.Size() != want {
		return nil, errs.Configuration(op, "numberOfVectors",
			"object %s holds %d bytes, %d vectors of dimension %d need %d", name, blob.Size(), req.NumberOfVectors, req.Dimensions, want)
	}

	r, err := blob.ReadRange(ctx, 0, want)
	if err != nil {
		return nil, errs.IO(op, name, err)
	}
	defer func() { _ = r.Close() }()

	ds, err := dataset.ReadRaw(resource.NewReader(ctx, r, s.rc), req.NumberOfVectors, req.Dimensions)
	if err != nil {
		if errs.CodeOf(err) != "" {
			return nil, err
		}
		return nil, errs.IO(op, name, fmt.Errorf("reading vectors: %w", err))
	}
	return ds, nil
}
