package vecforge

import (
	"context"
	"time"

	"github.com/hupe1980/vecforge/builder"
	"github.com/hupe1980/vecforge/dataset"
	"github.com/hupe1980/vecforge/device"
	"github.com/hupe1980/vecforge/distance"
	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/graph"
	"github.com/hupe1980/vecforge/idmap"
	"github.com/hupe1980/vecforge/logging"
	"github.com/hupe1980/vecforge/metrics"
	"github.com/hupe1980/vecforge/transfer"
)

// Options configures a Pipeline.
type Options struct {
	// Device is where the graph is built. Defaults to the host.
	Device device.Device
	Metric distance.Metric
	Params graph.Params
	IVFPQ  builder.IVFPQ
	// Sessions is the number of concurrent builds admitted on Device.
	Sessions int
	Logger   *logging.Logger
	Metrics  metrics.Collector
}

// DefaultOptions builds on the host with the default parameters.
func DefaultOptions() Options {
	return Options{
		Device:   device.HostDevice(),
		Metric:   distance.MetricL2,
		Params:   graph.DefaultParams(),
		IVFPQ:    builder.DefaultIVFPQ(),
		Sessions: 1,
	}
}

// WithDevice selects the build device.
func WithDevice(dev device.Device) func(o *Options) {
	return func(o *Options) { o.Device = dev }
}

// WithParams sets the graph parameters.
func WithParams(p graph.Params) func(o *Options) {
	return func(o *Options) { o.Params = p }
}

// WithMetric sets the distance metric.
func WithMetric(m distance.Metric) func(o *Options) {
	return func(o *Options) { o.Metric = m }
}

// WithLogger sets the logger shared by every stage.
func WithLogger(l *logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// WithMetrics sets the collector shared by every stage.
func WithMetrics(c metrics.Collector) func(o *Options) {
	return func(o *Options) { o.Metrics = c }
}

// Timings are the wall-clock phases of one Pipeline.Build.
type Timings struct {
	Build    time.Duration
	Transfer time.Duration
}

// Pipeline builds a graph on one device, attaches identifiers and returns
// a portable index ready to be saved.
type Pipeline struct {
	opts     Options
	builder  *builder.Builder
	transfer *transfer.Unit
}

// New creates a pipeline.
func New(optFns ...func(o *Options)) (*Pipeline, error) {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoop(opts.Logger)
	opts.Metrics = metrics.OrNoop(opts.Metrics)

	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}
	if !opts.Metric.Valid() {
		return nil, errs.Configuration("vecforge.new", "metric", "unsupported metric %v", opts.Metric)
	}

	res := device.NewResources(opts.Device, func(o *device.ResourceOptions) {
		o.Sessions = max(opts.Sessions, 1)
	})
	p := &Pipeline{
		opts: opts,
		builder: builder.New(res, func(o *builder.Options) {
			o.IVFPQ = opts.IVFPQ
			o.Logger = opts.Logger
			o.Metrics = opts.Metrics
		}),
	}
	if opts.Device.Kind == device.Accelerator {
		p.transfer = transfer.New(res, func(o *transfer.Options) {
			o.Logger = opts.Logger
			o.Metrics = opts.Metrics
		})
	}
	return p, nil
}

// Device returns the build device.
func (p *Pipeline) Device() device.Device { return p.builder.Device() }

// Build trains an index over ds. Rows without identifiers are numbered
// 0..N-1. An accelerator build is converted to the portable representation
// before it is returned.
func (p *Pipeline) Build(ctx context.Context, ds *dataset.Dataset) (*idmap.Map, Timings, error) {
	var t Timings
	if ds == nil {
		return nil, t, errs.Configuration("vecforge.build", "dataset", "dataset is nil")
	}

	empty, err := p.builder.NewIndex(ds.Dim(), p.opts.Metric, p.opts.Params)
	if err != nil {
		return nil, t, err
	}
	m, err := idmap.Wrap(empty)
	if err != nil {
		return nil, t, err
	}

	start := time.Now()
	if ds.Len() > 0 {
		if err := m.AddWithIds(ctx, ds.Vectors(), ds.IDs()); err != nil {
			return nil, t, err
		}
	}
	t.Build = time.Since(start)

	if p.transfer == nil {
		return m, t, nil
	}
	start = time.Now()
	portable, err := p.transfer.ToPortableMap(ctx, m)
	t.Transfer = time.Since(start)
	if err != nil {
		return nil, t, err
	}
	return portable, t, nil
}
