// Package service runs index builds as background jobs.
//
// A job downloads a raw little-endian float32 file from object storage,
// builds a graph index on the configured device, saves it to a temp file and
// uploads it next to the source object under "<object>.vfg.<device>". Up to
// MaxWorkers jobs run at once; the rest wait for a slot in submission order.
package service

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/hupe1980/vecforge"
	"github.com/hupe1980/vecforge/blobstore"
	"github.com/hupe1980/vecforge/builder"
	"github.com/hupe1980/vecforge/device"
	"github.com/hupe1980/vecforge/distance"
	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/graph"
	"github.com/hupe1980/vecforge/internal/resource"
	"github.com/hupe1980/vecforge/jobs"
	"github.com/hupe1980/vecforge/logging"
	"github.com/hupe1980/vecforge/metrics"
	"github.com/hupe1980/vecforge/persistence"
)

// DefaultMaxWorkers is the number of jobs that run concurrently.
const DefaultMaxWorkers = 5

// Options configures a Service.
type Options struct {
	// Device is where indexes are built. An accelerator build is converted
	// to the portable layout before it is saved.
	Device      device.Device
	Metric      distance.Metric
	Params      graph.Params
	IVFPQ       builder.IVFPQ
	Compression persistence.Compression
	// TempDir holds index files between save and upload.
	TempDir    string
	MaxWorkers int
	// BytesPerSec throttles downloads and uploads. 0 means unlimited.
	BytesPerSec int64
	Logger      *logging.Logger
	Metrics     metrics.Collector
}

// Service accepts build jobs and runs them in the background.
type Service struct {
	opts     Options
	buckets  blobstore.Buckets
	store    jobs.Store
	pipeline *vecforge.Pipeline
	rc       *resource.Controller

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	done   map[string]chan struct{}
	closed bool
}

// New creates a service that reads and writes objects through buckets and
// tracks jobs in store.
func New(buckets blobstore.Buckets, store jobs.Store, optFns ...func(o *Options)) (*Service, error) {
	opts := Options{
		Device:     device.HostDevice(),
		Metric:     distance.MetricL2,
		Params:     graph.DefaultParams(),
		IVFPQ:      builder.DefaultIVFPQ(),
		TempDir:    os.TempDir(),
		MaxWorkers: DefaultMaxWorkers,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoop(opts.Logger)
	opts.Metrics = metrics.OrNoop(opts.Metrics)

	const op = "service.new"
	if buckets == nil {
		return nil, errs.Configuration(op, "storage", "no blob store configured")
	}
	if store == nil {
		return nil, errs.Configuration(op, "jobs", "no job store configured")
	}
	if opts.MaxWorkers <= 0 {
		return nil, errs.Configuration(op, "max_workers", "must be positive, got %d", opts.MaxWorkers)
	}
	if !opts.Compression.Valid() {
		return nil, errs.Configuration(op, "compression", "unknown compression %d", opts.Compression)
	}
	if opts.BytesPerSec < 0 {
		return nil, errs.Configuration(op, "bytes_per_sec", "must not be negative, got %d", opts.BytesPerSec)
	}

	// Host builds share the machine; an accelerator admits one build at a time.
	sessions := 1
	if opts.Device.Kind == device.Host {
		sessions = min(opts.MaxWorkers, runtime.GOMAXPROCS(0))
	}
	p, err := vecforge.New(func(o *vecforge.Options) {
		o.Device = opts.Device
		o.Metric = opts.Metric
		o.Params = opts.Params
		o.IVFPQ = opts.IVFPQ
		o.Sessions = sessions
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		opts:     opts,
		buckets:  buckets,
		store:    store,
		pipeline: p,
		rc: resource.NewController(resource.Config{
			Slots:       int64(opts.MaxWorkers),
			BytesPerSec: opts.BytesPerSec,
		}),
		ctx:    ctx,
		cancel: cancel,
		done:   make(map[string]chan struct{}),
	}, nil
}

// DeviceType returns "cpu" or "gpu".
func (s *Service) DeviceType() string { return s.opts.Device.Kind.String() }

// Submit validates req, records a submitted job and schedules it.
func (s *Service) Submit(ctx context.Context, req jobs.Request) (*jobs.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	j := jobs.New(req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errs.InvalidState("service.submit", "service is shut down")
	}
	if err := s.store.Create(ctx, j); err != nil {
		return nil, err
	}
	done := make(chan struct{})
	s.done[j.ID] = done

	s.opts.Logger.WithJob(j.ID).InfoContext(ctx, "job submitted",
		"bucket", req.BucketName,
		"object", req.ObjectLocation,
		"vectors", req.NumberOfVectors,
		"dimensions", req.Dimensions,
	)

	out := j.Clone()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			close(done)
			s.mu.Lock()
			delete(s.done, j.ID)
			s.mu.Unlock()
		}()
		s.execute(j)
	}()
	return out, nil
}

// Get returns the job with id.
func (s *Service) Get(ctx context.Context, id string) (*jobs.Job, error) {
	return s.store.Get(ctx, id)
}

// List returns every job, oldest first.
func (s *Service) List(ctx context.Context) ([]*jobs.Job, error) {
	return s.store.List(ctx)
}

// Wait blocks until the job with id has finished or ctx is done, and returns
// its final record. Finished jobs and jobs submitted before a restart are
// returned as stored.
func (s *Service) Wait(ctx context.Context, id string) (*jobs.Job, error) {
	s.mu.Lock()
	done, ok := s.done[id]
	s.mu.Unlock()
	if ok {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.store.Get(ctx, id)
}

// Shutdown stops accepting jobs and waits for running ones. When ctx ends
// first, running jobs are canceled and fail.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-finished
		return ctx.Err()
	}
}

// execute moves j through its lifecycle and persists every transition.
func (s *Service) execute(j *jobs.Job) {
	log := s.opts.Logger.WithJob(j.ID)
	// Status writes must land even when the service is being canceled.
	storeCtx := context.WithoutCancel(s.ctx)

	if err := s.rc.AcquireSlot(s.ctx); err != nil {
		s.fail(storeCtx, log, j, 0, err)
		return
	}
	defer s.rc.ReleaseSlot()

	start := time.Now()
	if err := j.Transition(jobs.StatusRunning); err != nil {
		log.ErrorContext(storeCtx, "job transition failed", "error", err)
		return
	}
	if err := s.store.Update(storeCtx, j); err != nil {
		log.ErrorContext(storeCtx, "job update failed", "error", err)
	}
	log.InfoContext(storeCtx, "job started", "device", s.DeviceType())

	res, err := s.run(s.ctx, log, j.Request)
	if err != nil {
		s.fail(storeCtx, log, j, time.Since(start), err)
		return
	}

	_ = j.Transition(jobs.StatusCompleted)
	j.Result = res
	if err := s.store.Update(storeCtx, j); err != nil {
		log.ErrorContext(storeCtx, "job update failed", "error", err)
	}
	s.opts.Metrics.RecordJob(string(jobs.StatusCompleted), time.Since(start))
	log.InfoContext(storeCtx, "job completed",
		"index", res.IndexLocation,
		"bytes", res.IndexBytes,
		"total_seconds", res.Stats.TotalSeconds,
	)
}

func (s *Service) fail(ctx context.Context, log *logging.Logger, j *jobs.Job, elapsed time.Duration, cause error) {
	if err := j.Transition(jobs.StatusFailed); err != nil {
		log.ErrorContext(ctx, "job transition failed", "error", err)
		return
	}
	j.Error = cause.Error()
	if err := s.store.Update(ctx, j); err != nil {
		log.ErrorContext(ctx, "job update failed", "error", err)
	}
	s.opts.Metrics.RecordJob(string(jobs.StatusFailed), elapsed)
	log.ErrorContext(ctx, "job failed", "error", cause, "code", string(errs.CodeOf(cause)))
}
